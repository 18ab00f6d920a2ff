package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// ReplyMessenger delivers pipeline replies back to the customer's channel.
type ReplyMessenger interface {
	SendText(ctx context.Context, phone, text string) error
	SendAudio(ctx context.Context, phone, audioURL string) error
}

// MediaTranscriber fetches a provider media object and returns its
// transcript.
type MediaTranscriber interface {
	TranscribeMedia(ctx context.Context, mediaID string) (string, error)
}

// VoiceSynthesizer turns reply text into a publicly fetchable audio URL.
type VoiceSynthesizer interface {
	SynthesizeToURL(ctx context.Context, text string) (string, error)
}

// Worker consumes conversation jobs from the queue, runs the message
// pipeline and delivers the reply.
type Worker struct {
	service     *Service
	queue       queueClient
	messenger   ReplyMessenger
	transcriber MediaTranscriber
	synthesizer VoiceSynthesizer
	logger      *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	transcriber      MediaTranscriber
	synthesizer      VoiceSynthesizer
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithTranscriber wires a speech-to-text client for voice note jobs.
func WithTranscriber(t MediaTranscriber) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.transcriber = t
	}
}

// WithVoiceSynthesizer wires a text-to-speech client so voice note
// replies also go out as audio.
func WithVoiceSynthesizer(s VoiceSynthesizer) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.synthesizer = s
	}
}

// NewWorker constructs a queue consumer around the message pipeline.
// messenger may be nil for worker processes that only ingest call
// transcripts.
func NewWorker(service *Service, queue queueClient, messenger ReplyMessenger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		service:     service,
		queue:       queue,
		messenger:   messenger,
		transcriber: cfg.transcriber,
		synthesizer: cfg.synthesizer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleJob(ctx, msg)
		}
	}
}

func (w *Worker) handleJob(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing job", "job_id", payload.ID, "kind", payload.Kind, "msg_id", msg.ID)

	var err error
	switch payload.Kind {
	case jobTypeMessage:
		err = w.handleTextJob(ctx, payload)
	case jobTypeVoiceNote:
		err = w.handleVoiceNoteJob(ctx, payload)
	case jobTypeCallEnd:
		err = w.handleCallEndJob(ctx, payload)
	default:
		err = fmt.Errorf("conversation: unknown job type %q", payload.Kind)
	}

	if err != nil {
		w.logger.Error("conversation job failed", "error", err, "job_id", payload.ID, "kind", payload.Kind)
	} else {
		w.logger.Debug("conversation job processed", "job_id", payload.ID, "kind", payload.Kind)
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) handleTextJob(ctx context.Context, payload queuePayload) error {
	if payload.Message == nil {
		return errors.New("conversation: message job missing payload")
	}

	reply := w.service.HandleMessage(ctx, *payload.Message)
	return w.sendReply(ctx, payload.Message.Phone, reply, false)
}

func (w *Worker) handleVoiceNoteJob(ctx context.Context, payload queuePayload) error {
	job := payload.VoiceNote
	if job == nil {
		return errors.New("conversation: voice note job missing payload")
	}
	if w.transcriber == nil {
		return errors.New("conversation: no transcriber configured for voice note job")
	}

	transcript, err := w.transcriber.TranscribeMedia(ctx, job.MediaID)
	if err != nil {
		w.logger.Warn("voice note transcription failed", "error", err, "media_id", job.MediaID)
		if w.messenger != nil {
			sendErr := w.messenger.SendText(ctx, job.Phone, "Sorry, I couldn't make out that voice note. Could you type it instead?")
			if sendErr != nil {
				w.logger.Error("failed to send transcription apology", "error", sendErr)
			}
		}
		return nil
	}

	reply := w.service.HandleMessage(ctx, InboundMessage{
		Phone:        job.Phone,
		Channel:      ChannelWhatsApp,
		Content:      transcript,
		CustomerName: job.CustomerName,
	})
	return w.sendReply(ctx, job.Phone, reply, true)
}

func (w *Worker) handleCallEndJob(ctx context.Context, payload queuePayload) error {
	if payload.CallEnd == nil {
		return errors.New("conversation: call end job missing payload")
	}
	w.service.HandleCallEnd(ctx, payload.CallEnd.Phone, payload.CallEnd.Transcript)
	return nil
}

// sendReply delivers the pipeline reply. For voice note conversations the
// reply also goes out as audio when a synthesizer is wired; audio failures
// fall back to the text that was already sent.
func (w *Worker) sendReply(ctx context.Context, phone string, reply *Reply, voice bool) error {
	if w.messenger == nil || reply == nil || reply.Text == "" {
		return nil
	}

	if err := w.messenger.SendText(ctx, phone, reply.Text); err != nil {
		return fmt.Errorf("conversation: failed to send reply: %w", err)
	}

	if voice && w.synthesizer != nil {
		audioURL, err := w.synthesizer.SynthesizeToURL(ctx, reply.Text)
		if err != nil {
			w.logger.Warn("voice reply synthesis failed", "error", err)
			return nil
		}
		if err := w.messenger.SendAudio(ctx, phone, audioURL); err != nil {
			w.logger.Warn("voice reply delivery failed", "error", err)
		}
	}
	return nil
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
