package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const (
	jobTypeMessage   jobType = "message"
	jobTypeVoiceNote jobType = "voice_note"
	jobTypeCallEnd   jobType = "call_end"
)

// VoiceNoteJob asks the worker to fetch and transcribe a WhatsApp voice
// note before running the message pipeline on the transcript.
type VoiceNoteJob struct {
	Phone        string `json:"phone"`
	MediaID      string `json:"media_id"`
	CustomerName string `json:"customer_name,omitempty"`
}

// CallEndJob carries the final transcript of a completed phone call.
type CallEndJob struct {
	Phone      string `json:"phone"`
	Transcript string `json:"transcript"`
}

type queuePayload struct {
	ID        string          `json:"id"`
	Kind      jobType         `json:"kind"`
	Message   *InboundMessage `json:"message,omitempty"`
	VoiceNote *VoiceNoteJob   `json:"voice_note,omitempty"`
	CallEnd   *CallEndJob     `json:"call_end,omitempty"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}
