package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// AdminFlagsHandler exposes the sentiment review queue to the admin UI.
type AdminFlagsHandler struct {
	flags  *conversation.FlagStore
	logger *logging.Logger
}

// NewAdminFlagsHandler creates the flags handler.
func NewAdminFlagsHandler(flags *conversation.FlagStore, logger *logging.Logger) *AdminFlagsHandler {
	if flags == nil {
		panic("handlers: flag store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminFlagsHandler{flags: flags, logger: logger}
}

// ListPending handles GET /admin/flags.
func (h *AdminFlagsHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	flags, err := h.flags.Pending(r.Context())
	if err != nil {
		h.logger.Error("admin flags: list failed", "error", err)
		http.Error(w, "failed to list flags", http.StatusInternalServerError)
		return
	}
	if flags == nil {
		flags = []conversation.ReviewFlag{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"flags": flags,
		"count": len(flags),
	})
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

// MarkReviewed handles POST /admin/flags/{flagID}/review.
func (h *AdminFlagsHandler) MarkReviewed(w http.ResponseWriter, r *http.Request) {
	flagID := chi.URLParam(r, "flagID")
	if flagID == "" {
		http.Error(w, "missing flagID", http.StatusBadRequest)
		return
	}

	var req reviewRequest
	if r.Body != nil {
		// Empty bodies are fine; notes are optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ok, err := h.flags.MarkReviewed(r.Context(), flagID, req.Notes)
	if err != nil {
		h.logger.Error("admin flags: review failed", "error", err, "flag_id", flagID)
		http.Error(w, "failed to mark reviewed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "flag not found or expired", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"reviewed": true, "flag_id": flagID})
}
