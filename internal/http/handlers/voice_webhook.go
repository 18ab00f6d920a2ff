package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// VoiceWebhookHandler receives events from the phone platform: it records
// in-call turns to the shared conversation cache and enqueues end-of-call
// transcripts for summary and qualification.
type VoiceWebhookHandler struct {
	cache     *conversation.Cache
	publisher *conversation.Publisher
	logger    *logging.Logger
}

// NewVoiceWebhookHandler creates the voice webhook handler.
func NewVoiceWebhookHandler(cache *conversation.Cache, publisher *conversation.Publisher, logger *logging.Logger) *VoiceWebhookHandler {
	if cache == nil {
		panic("handlers: cache cannot be nil")
	}
	if publisher == nil {
		panic("handlers: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceWebhookHandler{cache: cache, publisher: publisher, logger: logger}
}

type voiceTurnRequest struct {
	Phone   string `json:"phone"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn handles POST /webhooks/voice/turn, appending one spoken exchange to
// the rolling history so a later WhatsApp conversation sees it.
func (h *VoiceWebhookHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req voiceTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Content) == "" {
		http.Error(w, "phone and content required", http.StatusBadRequest)
		return
	}
	role := req.Role
	if role != "user" && role != "assistant" {
		role = "user"
	}

	h.cache.AppendMessage(r.Context(), req.Phone, role, req.Content, conversation.ChannelPhone)
	w.WriteHeader(http.StatusNoContent)
}

type callEndedRequest struct {
	Phone      string `json:"phone"`
	Transcript string `json:"transcript"`
}

// CallEnded handles POST /webhooks/voice/call-ended.
func (h *VoiceWebhookHandler) CallEnded(w http.ResponseWriter, r *http.Request) {
	var req callEndedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		http.Error(w, "phone required", http.StatusBadRequest)
		return
	}

	err := h.publisher.EnqueueCallEnd(r.Context(), conversation.CallEndJob{
		Phone:      req.Phone,
		Transcript: req.Transcript,
	})
	if err != nil {
		h.logger.Error("voice webhook: enqueue failed", "error", err)
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
