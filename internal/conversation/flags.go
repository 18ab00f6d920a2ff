package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

const (
	flagTTL         = 7 * 24 * time.Hour
	pendingFlagsKey = "flags:pending"
	// pendingFlagsMax bounds the review queue to the most recent entries.
	pendingFlagsMax = 100
)

// FlagUrgency ranks how quickly a flagged conversation needs review.
type FlagUrgency string

const (
	FlagUrgencyUrgent FlagUrgency = "urgent"
	FlagUrgencyHigh   FlagUrgency = "high"
	FlagUrgencyNormal FlagUrgency = "normal"
)

// flagUrgencyFor derives review urgency from the sentiment that raised the
// flag.
func flagUrgencyFor(s Sentiment) FlagUrgency {
	switch s {
	case SentimentAngry:
		return FlagUrgencyUrgent
	case SentimentFrustrated, SentimentPriceShocked:
		return FlagUrgencyHigh
	default:
		return FlagUrgencyNormal
	}
}

// ReviewFlag marks a conversation that needs human attention. Flags live in
// Redis hashes for seven days and are queued, newest first, in a bounded
// pending list.
type ReviewFlag struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Phone          string      `json:"phone"`
	CustomerName   string      `json:"customer_name"`
	Reason         string      `json:"flag_reason"`
	Sentiment      Sentiment   `json:"sentiment"`
	Signals        []string    `json:"signals"`
	Confidence     float64     `json:"confidence"`
	Urgency        FlagUrgency `json:"urgency"`
	CreatedAt      time.Time   `json:"created_at"`
	Reviewed       bool        `json:"reviewed"`
	ReviewedAt     time.Time   `json:"reviewed_at,omitempty"`
	Notes          string      `json:"notes,omitempty"`
}

// FlagStore persists review flags in Redis.
type FlagStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	logger *logging.Logger
}

// NewFlagStore wraps the provided Redis client.
func NewFlagStore(redisClient *redis.Client, logger *logging.Logger) *FlagStore {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FlagStore{
		redis:  redisClient,
		tracer: otel.Tracer("voiceagent.internal.conversation.flags"),
		logger: logger,
	}
}

func flagKey(id string) string {
	return fmt.Sprintf("flag:%s", id)
}

// Create stores a new flag from a sentiment result and queues it for
// review. Returns the short flag id.
func (s *FlagStore) Create(ctx context.Context, conversationID, phone, customerName string, res SentimentResult) (string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.flag_for_review")
	defer span.End()

	id := uuid.NewString()[:8]
	if customerName == "" {
		customerName = "Unknown"
	}

	fields := map[string]any{
		"conversation_id": conversationID,
		"phone":           phone,
		"customer_name":   customerName,
		"flag_reason":     fmt.Sprintf("Sentiment: %s", res.Sentiment),
		"sentiment":       string(res.Sentiment),
		"signals":         strings.Join(res.Signals, ","),
		"confidence":      strconv.FormatFloat(res.Confidence, 'g', -1, 64),
		"urgency":         string(flagUrgencyFor(res.Sentiment)),
		"created_at":      time.Now().UTC().Format(time.RFC3339),
		"reviewed":        "false",
	}

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, flagKey(id), fields)
	pipe.Expire(ctx, flagKey(id), flagTTL)
	pipe.LPush(ctx, pendingFlagsKey, id)
	pipe.LTrim(ctx, pendingFlagsKey, 0, pendingFlagsMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: failed to create review flag: %w", err)
	}

	s.logger.Info("conversation flagged for review",
		"flag_id", id,
		"sentiment", res.Sentiment,
		"urgency", fields["urgency"],
	)
	return id, nil
}

// Pending returns queued flags not yet reviewed, newest first. Flags whose
// hash has expired are skipped.
func (s *FlagStore) Pending(ctx context.Context) ([]ReviewFlag, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.pending_flags")
	defer span.End()

	ids, err := s.redis.LRange(ctx, pendingFlagsKey, 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to list pending flags: %w", err)
	}

	out := make([]ReviewFlag, 0, len(ids))
	for _, id := range ids {
		fields, err := s.redis.HGetAll(ctx, flagKey(id)).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		if fields["reviewed"] != "false" {
			continue
		}
		out = append(out, flagFromFields(id, fields))
	}
	return out, nil
}

// MarkReviewed marks a flag as handled. Returns false if the flag no
// longer exists.
func (s *FlagStore) MarkReviewed(ctx context.Context, id, notes string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.mark_flag_reviewed")
	defer span.End()

	exists, err := s.redis.Exists(ctx, flagKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("conversation: failed to check flag: %w", err)
	}
	if exists == 0 {
		return false, nil
	}

	fields := map[string]any{
		"reviewed":    "true",
		"reviewed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if notes != "" {
		fields["notes"] = notes
	}
	if err := s.redis.HSet(ctx, flagKey(id), fields).Err(); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("conversation: failed to mark flag reviewed: %w", err)
	}
	return true, nil
}

func flagFromFields(id string, fields map[string]string) ReviewFlag {
	flag := ReviewFlag{
		ID:             id,
		ConversationID: fields["conversation_id"],
		Phone:          fields["phone"],
		CustomerName:   fields["customer_name"],
		Reason:         fields["flag_reason"],
		Sentiment:      Sentiment(fields["sentiment"]),
		Urgency:        FlagUrgency(fields["urgency"]),
		Notes:          fields["notes"],
	}
	if v := fields["signals"]; v != "" {
		flag.Signals = strings.Split(v, ",")
	}
	if v := fields["confidence"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			flag.Confidence = f
		}
	}
	if v := fields["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			flag.CreatedAt = t
		}
	}
	if v := fields["reviewed_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			flag.ReviewedAt = t
		}
	}
	flag.Reviewed = fields["reviewed"] == "true"
	return flag
}
