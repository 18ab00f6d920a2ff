package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// TranscriptRecord is the archived form of a finished conversation.
type TranscriptRecord struct {
	ConversationID string    `json:"conversation_id"`
	Channel        string    `json:"channel"`
	Phone          string    `json:"phone"`
	Transcript     []string  `json:"transcript"`
	Sentiment      string    `json:"sentiment,omitempty"`
	HandoffReason  string    `json:"handoff_reason,omitempty"`
	LeadTier       string    `json:"lead_tier,omitempty"`
	ArchivedAt     time.Time `json:"archived_at"`
}

// TranscriptArchive writes finished conversation transcripts to S3 for
// audit and later review.
type TranscriptArchive struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewTranscriptArchive creates a TranscriptArchive. If bucket is empty,
// all operations are no-ops.
func NewTranscriptArchive(s3Client S3API, bucket string, logger *logging.Logger) *TranscriptArchive {
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptArchive{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (a *TranscriptArchive) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// Archive writes the record as JSON under a dated key.
func (a *TranscriptArchive) Archive(ctx context.Context, record *TranscriptRecord) error {
	if !a.Enabled() {
		return nil
	}

	if record.ArchivedAt.IsZero() {
		record.ArchivedAt = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("storage: marshal transcript: %w", err)
	}

	now := record.ArchivedAt
	key := fmt.Sprintf("transcripts/v1/%d/%02d/%02d/%s.json",
		now.Year(), now.Month(), now.Day(), record.ConversationID)

	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("storage: s3 put %s: %w", key, err)
	}

	a.logger.Info("transcript archived", "conversation_id", record.ConversationID, "s3_key", key)
	return nil
}
