package conversation

import (
	"context"
	"fmt"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// Publisher enqueues conversation jobs for asynchronous processing, so
// webhook handlers can acknowledge the provider before the pipeline runs.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueMessage publishes an inbound text message job.
func (p *Publisher) EnqueueMessage(ctx context.Context, msg InboundMessage) error {
	return p.enqueue(ctx, queuePayload{Kind: jobTypeMessage, Message: &msg})
}

// EnqueueVoiceNote publishes a voice note transcription job.
func (p *Publisher) EnqueueVoiceNote(ctx context.Context, job VoiceNoteJob) error {
	return p.enqueue(ctx, queuePayload{Kind: jobTypeVoiceNote, VoiceNote: &job})
}

// EnqueueCallEnd publishes an end-of-call transcript job.
func (p *Publisher) EnqueueCallEnd(ctx context.Context, job CallEndJob) error {
	return p.enqueue(ctx, queuePayload{Kind: jobTypeCallEnd, CallEnd: &job})
}

func (p *Publisher) enqueue(ctx context.Context, payload queuePayload) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "kind", payload.Kind)
	return nil
}
