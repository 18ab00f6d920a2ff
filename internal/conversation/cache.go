package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

const (
	// messageWindow bounds the rolling per-phone history list. Oldest
	// entries are evicted on append.
	messageWindow = 20

	defaultConversationTTL = 24 * time.Hour
)

// Message is one turn of a conversation as stored in the rolling window.
type Message struct {
	Time    string `json:"time"` // HH:MM, local to the process
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Cache is the Redis-backed short-term conversation memory: a rolling
// message window per phone+channel plus a free-form attribute hash per
// phone.
//
// The cache is best-effort by contract. Every method degrades to an empty
// result with a logged warning when Redis is unreachable; errors are never
// returned to callers, and no operation retries. Message flow must survive
// cache loss.
type Cache struct {
	redis  *redis.Client
	tracer trace.Tracer
	logger *logging.Logger
	ttl    time.Duration
}

// NewCache wraps the provided Redis client. A zero ttl falls back to 24h.
func NewCache(redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultConversationTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		redis:  redisClient,
		tracer: otel.Tracer("voiceagent.internal.conversation.cache"),
		logger: logger,
		ttl:    ttl,
	}
}

// cleanPhone strips the formatting characters that vary between webhook
// providers so one customer maps to one key.
func cleanPhone(phone string) string {
	return strings.NewReplacer("+", "", " ", "").Replace(phone)
}

func historyKey(phone string, channel Channel) string {
	return fmt.Sprintf("conversation:%s:%s", channel, cleanPhone(phone))
}

func contextKey(phone string) string {
	return fmt.Sprintf("context:%s", cleanPhone(phone))
}

// AppendMessage pushes one timestamped, role-prefixed line to the front of
// the window, trims to the most recent entries and refreshes the TTL.
func (c *Cache) AppendMessage(ctx context.Context, phone string, role, content string, channel Channel) {
	ctx, span := c.tracer.Start(ctx, "conversation.append_message")
	defer span.End()

	line := formatLine(time.Now(), role, content)
	key := historyKey(phone, channel)

	pipe := c.redis.TxPipeline()
	pipe.LPush(ctx, key, line)
	pipe.LTrim(ctx, key, 0, messageWindow-1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		c.logger.Warn("conversation cache: append skipped", "error", err, "phone", cleanPhone(phone))
	}
}

// History returns up to max formatted lines in chronological order. Storage
// is newest-first, so the range is reversed before returning. Any backing
// store failure returns an empty slice.
func (c *Cache) History(ctx context.Context, phone string, channel Channel, max int) []string {
	ctx, span := c.tracer.Start(ctx, "conversation.get_history")
	defer span.End()

	if max <= 0 {
		max = messageWindow
	}
	lines, err := c.redis.LRange(ctx, historyKey(phone, channel), 0, int64(max)-1).Result()
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("conversation cache: history unavailable", "error", err, "phone", cleanPhone(phone))
		return []string{}
	}

	out := make([]string, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		out = append(out, lines[i])
	}
	return out
}

// UpdateContext merges key/value pairs into the phone's attribute hash and
// refreshes the TTL. An empty update is a no-op.
func (c *Cache) UpdateContext(ctx context.Context, phone string, updates map[string]string) {
	if len(updates) == 0 {
		return
	}

	ctx, span := c.tracer.Start(ctx, "conversation.update_context")
	defer span.End()

	key := contextKey(phone)
	flat := make([]any, 0, len(updates)*2)
	for k, v := range updates {
		flat = append(flat, k, v)
	}

	pipe := c.redis.TxPipeline()
	pipe.HSet(ctx, key, flat...)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		c.logger.Warn("conversation cache: context update skipped", "error", err, "phone", cleanPhone(phone))
	}
}

// Context returns every known attribute for the phone, or an empty map.
func (c *Cache) Context(ctx context.Context, phone string) map[string]string {
	ctx, span := c.tracer.Start(ctx, "conversation.get_context")
	defer span.End()

	values, err := c.redis.HGetAll(ctx, contextKey(phone)).Result()
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("conversation cache: context unavailable", "error", err, "phone", cleanPhone(phone))
		return map[string]string{}
	}
	if values == nil {
		return map[string]string{}
	}
	return values
}

// SetStatus records the conversation status as a context attribute.
func (c *Cache) SetStatus(ctx context.Context, phone, status string) {
	c.UpdateContext(ctx, phone, map[string]string{"status": status})
}

// Clear removes both the message window and the attribute hash. Used for
// conversation resets.
func (c *Cache) Clear(ctx context.Context, phone string, channel Channel) {
	ctx, span := c.tracer.Start(ctx, "conversation.clear")
	defer span.End()

	if err := c.redis.Del(ctx, historyKey(phone, channel), contextKey(phone)).Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("conversation cache: clear skipped", "error", err, "phone", cleanPhone(phone))
	}
}

// Transcript parses the stored window back into structured messages, oldest
// first. Lines that don't match the stored format are kept as content-only
// entries rather than dropped.
func (c *Cache) Transcript(ctx context.Context, phone string, channel Channel) []Message {
	lines := c.History(ctx, phone, channel, messageWindow)
	out := make([]Message, 0, len(lines))
	for _, line := range lines {
		out = append(out, parseLine(line))
	}
	return out
}

// Stats summarizes live conversations per channel.
type Stats struct {
	WhatsApp int `json:"whatsapp"`
	Phone    int `json:"phone"`
	Total    int `json:"total"`
}

// ActiveConversations enumerates the history keys currently alive in Redis.
func (c *Cache) ActiveConversations(ctx context.Context) []string {
	ctx, span := c.tracer.Start(ctx, "conversation.active_conversations")
	defer span.End()

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.redis.Scan(ctx, cursor, "conversation:*", 100).Result()
		if err != nil {
			span.RecordError(err)
			c.logger.Warn("conversation cache: scan failed", "error", err)
			return []string{}
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if keys == nil {
		keys = []string{}
	}
	return keys
}

// ConversationStats counts live conversations by channel.
func (c *Cache) ConversationStats(ctx context.Context) Stats {
	var stats Stats
	for _, key := range c.ActiveConversations(ctx) {
		switch {
		case strings.HasPrefix(key, "conversation:whatsapp:"):
			stats.WhatsApp++
		case strings.HasPrefix(key, "conversation:phone:"):
			stats.Phone++
		}
	}
	stats.Total = stats.WhatsApp + stats.Phone
	return stats
}

func formatLine(at time.Time, role, content string) string {
	return fmt.Sprintf("[%s] %s: %s", at.Format("15:04"), titleRole(role), content)
}

func titleRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + strings.ToLower(role[1:])
}

func parseLine(line string) Message {
	rest := line
	var msg Message
	if strings.HasPrefix(rest, "[") {
		if idx := strings.Index(rest, "] "); idx > 0 {
			msg.Time = rest[1:idx]
			rest = rest[idx+2:]
		}
	}
	if idx := strings.Index(rest, ": "); idx > 0 {
		msg.Role = rest[:idx]
		msg.Content = rest[idx+2:]
	} else {
		msg.Content = rest
	}
	return msg
}
