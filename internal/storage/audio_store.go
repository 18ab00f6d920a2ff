package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// S3API is the subset of the S3 client used by the stores.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AudioStore hosts synthesized voice replies in S3 so the WhatsApp
// gateway can fetch them by URL.
type AudioStore struct {
	bucket   string
	region   string
	s3Client S3API
	logger   *logging.Logger
}

// NewAudioStore creates an AudioStore. If bucket is empty, all operations
// are no-ops.
func NewAudioStore(s3Client S3API, bucket, region string, logger *logging.Logger) *AudioStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &AudioStore{bucket: bucket, region: region, s3Client: s3Client, logger: logger}
}

// Enabled returns true if audio hosting is configured.
func (s *AudioStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// UploadAudio stores the audio bytes under a dated key and returns the
// public object URL. Objects are keyed by UUID; the bucket lifecycle rule
// expires them.
func (s *AudioStore) UploadAudio(ctx context.Context, data []byte, contentType string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("storage: audio store not configured")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("storage: empty audio payload")
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("voice-replies/%d/%02d/%02d/%s.mp3",
		now.Year(), now.Month(), now.Day(), uuid.NewString())

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storage: s3 put %s: %w", key, err)
	}

	s.logger.Debug("voice reply uploaded", "s3_key", key, "bytes", len(data))
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}
