package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/internal/whatsapp"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// WhatsAppWebhookHandler receives inbound WhatsApp messages from the
// Business API gateway and enqueues them for the worker. The webhook must
// respond inside the provider's timeout, so no pipeline work happens here.
type WhatsAppWebhookHandler struct {
	publisher *conversation.Publisher
	logger    *logging.Logger
}

// NewWhatsAppWebhookHandler creates the webhook handler.
func NewWhatsAppWebhookHandler(publisher *conversation.Publisher, logger *logging.Logger) *WhatsAppWebhookHandler {
	if publisher == nil {
		panic("handlers: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{publisher: publisher, logger: logger}
}

// Receive handles POST /webhooks/whatsapp.
func (h *WhatsAppWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload whatsapp.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("whatsapp webhook: malformed payload", "error", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	enqueued := 0
	for _, in := range payload.Flatten() {
		var err error
		switch {
		case in.AudioMediaID != "":
			err = h.publisher.EnqueueVoiceNote(r.Context(), conversation.VoiceNoteJob{
				Phone:        in.From,
				MediaID:      in.AudioMediaID,
				CustomerName: in.CustomerName,
			})
		case in.Text != "":
			err = h.publisher.EnqueueMessage(r.Context(), conversation.InboundMessage{
				Phone:        in.From,
				Channel:      conversation.ChannelWhatsApp,
				Content:      in.Text,
				CustomerName: in.CustomerName,
				Metadata:     map[string]string{"provider_message_id": in.MessageID},
			})
		default:
			h.logger.Debug("whatsapp webhook: skipping unsupported message type", "message_id", in.MessageID)
			continue
		}
		if err != nil {
			h.logger.Error("whatsapp webhook: enqueue failed", "error", err, "message_id", in.MessageID)
			http.Error(w, "enqueue failed", http.StatusInternalServerError)
			return
		}
		enqueued++
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int{"accepted": enqueued})
}
