package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// AdminConversationsHandler exposes the live conversation cache to the
// admin UI: transcripts, extracted context and channel stats.
type AdminConversationsHandler struct {
	cache  *conversation.Cache
	logger *logging.Logger
}

// NewAdminConversationsHandler creates the conversations handler.
func NewAdminConversationsHandler(cache *conversation.Cache, logger *logging.Logger) *AdminConversationsHandler {
	if cache == nil {
		panic("handlers: cache cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{cache: cache, logger: logger}
}

// List handles GET /admin/conversations, returning the active
// conversation keys and per-channel counts.
func (h *AdminConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	keys := h.cache.ActiveConversations(r.Context())
	stats := h.cache.ConversationStats(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"conversations": keys,
		"stats":         stats,
	})
}

// Transcript handles GET /admin/conversations/{channel}/{phone}.
func (h *AdminConversationsHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	channel := conversation.ParseChannel(chi.URLParam(r, "channel"))
	phone := chi.URLParam(r, "phone")
	if phone == "" {
		http.Error(w, "missing phone", http.StatusBadRequest)
		return
	}

	messages := h.cache.Transcript(r.Context(), phone, channel)
	attrs := h.cache.Context(r.Context(), phone)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"channel":  channel,
		"phone":    phone,
		"messages": messages,
		"context":  attrs,
	})
}

// Clear handles DELETE /admin/conversations/{channel}/{phone}, dropping
// the rolling history and extracted context for a number.
func (h *AdminConversationsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	channel := conversation.ParseChannel(chi.URLParam(r, "channel"))
	phone := chi.URLParam(r, "phone")
	if phone == "" {
		http.Error(w, "missing phone", http.StatusBadRequest)
		return
	}

	h.cache.Clear(r.Context(), phone, channel)
	h.logger.Info("conversation cleared by admin", "channel", channel, "phone", phone)
	w.WriteHeader(http.StatusNoContent)
}
