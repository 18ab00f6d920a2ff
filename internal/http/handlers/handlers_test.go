package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/internal/leads"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// queuedJob mirrors the wire shape of an enqueued conversation job so
// webhook tests can assert on what reached the queue.
type queuedJob struct {
	ID        string                       `json:"id"`
	Kind      string                       `json:"kind"`
	Message   *conversation.InboundMessage `json:"message"`
	VoiceNote *conversation.VoiceNoteJob   `json:"voice_note"`
	CallEnd   *conversation.CallEndJob     `json:"call_end"`
}

func drainJobs(t *testing.T, q *conversation.MemoryQueue) []queuedJob {
	t.Helper()

	msgs, err := q.Receive(context.Background(), 10, 0)
	require.NoError(t, err)

	jobs := make([]queuedJob, 0, len(msgs))
	for _, m := range msgs {
		var job queuedJob
		require.NoError(t, json.Unmarshal([]byte(m.Body), &job))
		jobs = append(jobs, job)
	}
	return jobs
}

func newTestCache(t *testing.T) (*conversation.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return conversation.NewCache(rdb, time.Hour, logging.Default()), mr
}

func whatsAppBody(messages string) string {
	return `{
		"entry": [{
			"changes": [{
				"value": {
					"contacts": [{"profile": {"name": "Sarah Mitchell"}, "wa_id": "447700900123"}],
					"messages": [` + messages + `]
				}
			}]
		}]
	}`
}

func TestWhatsAppWebhookReceiveText(t *testing.T) {
	queue := conversation.NewMemoryQueue(16)
	h := NewWhatsAppWebhookHandler(conversation.NewPublisher(queue, logging.Default()), logging.Default())

	body := whatsAppBody(`{"id": "wamid.1", "from": "447700900123", "type": "text", "text": {"body": "How much for a loft conversion?"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["accepted"])

	jobs := drainJobs(t, queue)
	require.Len(t, jobs, 1)
	assert.Equal(t, "message", jobs[0].Kind)
	require.NotNil(t, jobs[0].Message)
	assert.Equal(t, "447700900123", jobs[0].Message.Phone)
	assert.Equal(t, conversation.ChannelWhatsApp, jobs[0].Message.Channel)
	assert.Equal(t, "How much for a loft conversion?", jobs[0].Message.Content)
	assert.Equal(t, "Sarah Mitchell", jobs[0].Message.CustomerName)
	assert.Equal(t, "wamid.1", jobs[0].Message.Metadata["provider_message_id"])
}

func TestWhatsAppWebhookReceiveVoiceNote(t *testing.T) {
	queue := conversation.NewMemoryQueue(16)
	h := NewWhatsAppWebhookHandler(conversation.NewPublisher(queue, logging.Default()), logging.Default())

	body := whatsAppBody(`{"id": "wamid.2", "from": "447700900123", "type": "audio", "audio": {"id": "media-42", "mime_type": "audio/ogg"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	jobs := drainJobs(t, queue)
	require.Len(t, jobs, 1)
	assert.Equal(t, "voice_note", jobs[0].Kind)
	require.NotNil(t, jobs[0].VoiceNote)
	assert.Equal(t, "447700900123", jobs[0].VoiceNote.Phone)
	assert.Equal(t, "media-42", jobs[0].VoiceNote.MediaID)
	assert.Equal(t, "Sarah Mitchell", jobs[0].VoiceNote.CustomerName)
}

func TestWhatsAppWebhookSkipsUnsupportedTypes(t *testing.T) {
	queue := conversation.NewMemoryQueue(16)
	h := NewWhatsAppWebhookHandler(conversation.NewPublisher(queue, logging.Default()), logging.Default())

	body := whatsAppBody(`
		{"id": "wamid.3", "from": "447700900123", "type": "sticker"},
		{"id": "wamid.4", "from": "447700900123", "type": "text", "text": {"body": "hello"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["accepted"])

	jobs := drainJobs(t, queue)
	require.Len(t, jobs, 1)
	assert.Equal(t, "message", jobs[0].Kind)
}

func TestWhatsAppWebhookMalformedPayload(t *testing.T) {
	queue := conversation.NewMemoryQueue(16)
	h := NewWhatsAppWebhookHandler(conversation.NewPublisher(queue, logging.Default()), logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWhatsAppWebhookEnqueueFailure(t *testing.T) {
	// Fill a single-slot queue so the next Send blocks, then hand the
	// handler an already-cancelled request context.
	queue := conversation.NewMemoryQueue(1)
	require.NoError(t, queue.Send(context.Background(), "occupied"))

	h := NewWhatsAppWebhookHandler(conversation.NewPublisher(queue, logging.Default()), logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := whatsAppBody(`{"id": "wamid.5", "from": "447700900123", "type": "text", "text": {"body": "hello"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVoiceWebhookTurn(t *testing.T) {
	cache, _ := newTestCache(t)
	queue := conversation.NewMemoryQueue(16)
	h := NewVoiceWebhookHandler(cache, conversation.NewPublisher(queue, logging.Default()), logging.Default())

	body := `{"phone": "+447700900123", "role": "assistant", "content": "Happy to talk through the extension."}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Turn(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	messages := cache.Transcript(context.Background(), "+447700900123", conversation.ChannelPhone)
	require.Len(t, messages, 1)
	assert.Equal(t, "Assistant", messages[0].Role)
	assert.Equal(t, "Happy to talk through the extension.", messages[0].Content)
}

func TestVoiceWebhookTurnNormalizesUnknownRole(t *testing.T) {
	cache, _ := newTestCache(t)
	h := NewVoiceWebhookHandler(cache, conversation.NewPublisher(conversation.NewMemoryQueue(16), logging.Default()), logging.Default())

	body := `{"phone": "+447700900123", "role": "agent", "content": "We want a basement dig."}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Turn(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	messages := cache.Transcript(context.Background(), "+447700900123", conversation.ChannelPhone)
	require.Len(t, messages, 1)
	assert.Equal(t, "User", messages[0].Role)
}

func TestVoiceWebhookTurnValidation(t *testing.T) {
	cache, _ := newTestCache(t)
	h := NewVoiceWebhookHandler(cache, conversation.NewPublisher(conversation.NewMemoryQueue(16), logging.Default()), logging.Default())

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: "{nope"},
		{name: "missing phone", body: `{"content": "hello"}`},
		{name: "missing content", body: `{"phone": "+447700900123"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			h.Turn(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestVoiceWebhookCallEnded(t *testing.T) {
	cache, _ := newTestCache(t)
	queue := conversation.NewMemoryQueue(16)
	h := NewVoiceWebhookHandler(cache, conversation.NewPublisher(queue, logging.Default()), logging.Default())

	body := `{"phone": "+447700900123", "transcript": "User: hello\nAssistant: hi"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/call-ended", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.CallEnded(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	jobs := drainJobs(t, queue)
	require.Len(t, jobs, 1)
	assert.Equal(t, "call_end", jobs[0].Kind)
	require.NotNil(t, jobs[0].CallEnd)
	assert.Equal(t, "+447700900123", jobs[0].CallEnd.Phone)
	assert.Contains(t, jobs[0].CallEnd.Transcript, "User: hello")
}

func TestVoiceWebhookCallEndedMissingPhone(t *testing.T) {
	cache, _ := newTestCache(t)
	h := NewVoiceWebhookHandler(cache, conversation.NewPublisher(conversation.NewMemoryQueue(16), logging.Default()), logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/call-ended", strings.NewReader(`{"transcript": "hi"}`))
	rec := httptest.NewRecorder()

	h.CallEnded(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func newFlagsRouter(t *testing.T) (chi.Router, *conversation.FlagStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	flags := conversation.NewFlagStore(rdb, logging.Default())
	h := NewAdminFlagsHandler(flags, logging.Default())

	r := chi.NewRouter()
	r.Get("/admin/flags", h.ListPending)
	r.Post("/admin/flags/{flagID}/review", h.MarkReviewed)
	return r, flags
}

func TestAdminFlagsListEmpty(t *testing.T) {
	r, _ := newFlagsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/flags", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Flags []conversation.ReviewFlag `json:"flags"`
		Count int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Flags)
}

func TestAdminFlagsListAndReview(t *testing.T) {
	r, flags := newFlagsRouter(t)

	id, err := flags.Create(context.Background(), "whatsapp:447700900123", "+447700900123", "Sarah Mitchell", conversation.SentimentResult{
		Sentiment:      conversation.SentimentAngry,
		Confidence:     0.9,
		Signals:        []string{"furious"},
		RequiresReview: true,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/flags", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Flags []conversation.ReviewFlag `json:"flags"`
		Count int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Equal(t, 1, listResp.Count)
	assert.Equal(t, id, listResp.Flags[0].ID)

	req = httptest.NewRequest(http.MethodPost, "/admin/flags/"+id+"/review", strings.NewReader(`{"notes": "called them back"}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	pending, err := flags.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAdminFlagsReviewNotFound(t *testing.T) {
	r, _ := newFlagsRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/flags/deadbeef/review", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func newConversationsRouter(t *testing.T) (chi.Router, *conversation.Cache) {
	t.Helper()

	cache, _ := newTestCache(t)
	h := NewAdminConversationsHandler(cache, logging.Default())

	r := chi.NewRouter()
	r.Get("/admin/conversations", h.List)
	r.Get("/admin/conversations/{channel}/{phone}", h.Transcript)
	r.Delete("/admin/conversations/{channel}/{phone}", h.Clear)
	return r, cache
}

func TestAdminConversationsList(t *testing.T) {
	r, cache := newConversationsRouter(t)
	ctx := context.Background()

	cache.AppendMessage(ctx, "+447700900123", "user", "hello", conversation.ChannelWhatsApp)
	cache.AppendMessage(ctx, "+447700900456", "user", "hi", conversation.ChannelPhone)

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []string           `json:"conversations"`
		Stats         conversation.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Conversations, 2)
	assert.Equal(t, 2, resp.Stats.Total)
}

func TestAdminConversationsTranscript(t *testing.T) {
	r, cache := newConversationsRouter(t)
	ctx := context.Background()

	cache.AppendMessage(ctx, "+447700900123", "user", "How much for a loft?", conversation.ChannelWhatsApp)
	cache.UpdateContext(ctx, "+447700900123", map[string]string{"postcode": "NW3 2QG"})

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations/whatsapp/447700900123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Channel  string                 `json:"channel"`
		Phone    string                 `json:"phone"`
		Messages []conversation.Message `json:"messages"`
		Context  map[string]string      `json:"context"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "whatsapp", resp.Channel)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "How much for a loft?", resp.Messages[0].Content)
	assert.Equal(t, "NW3 2QG", resp.Context["postcode"])
}

func TestAdminConversationsClear(t *testing.T) {
	r, cache := newConversationsRouter(t)
	ctx := context.Background()

	cache.AppendMessage(ctx, "+447700900123", "user", "hello", conversation.ChannelWhatsApp)

	req := httptest.NewRequest(http.MethodDelete, "/admin/conversations/whatsapp/447700900123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, cache.Transcript(ctx, "+447700900123", conversation.ChannelWhatsApp))
}

func newLeadsRouter(t *testing.T) (chi.Router, *leads.InMemoryRepository) {
	t.Helper()

	repo := leads.NewInMemoryRepository()
	h := NewAdminLeadsHandler(repo, logging.Default())

	r := chi.NewRouter()
	r.Get("/admin/leads", h.List)
	r.Post("/admin/leads", h.Create)
	r.Get("/admin/leads/{leadID}", h.Get)
	return r, repo
}

func TestAdminLeadsCreateAndGet(t *testing.T) {
	r, _ := newLeadsRouter(t)

	body := `{"name": "Sarah Mitchell", "phone": "+447700900123", "message": "Loft conversion quote", "source": "website"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/leads", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created leads.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Sarah Mitchell", created.Name)

	req = httptest.NewRequest(http.MethodGet, "/admin/leads/"+created.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var fetched leads.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestAdminLeadsCreateValidation(t *testing.T) {
	r, _ := newLeadsRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/leads", strings.NewReader(`{"name": "", "phone": "+447700900123"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminLeadsGetNotFound(t *testing.T) {
	r, _ := newLeadsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/leads/missing-id", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminLeadsList(t *testing.T) {
	r, repo := newLeadsRouter(t)

	require.NoError(t, repo.Upsert(context.Background(), &leads.Lead{Name: "Sarah Mitchell", Phone: "+447700900123"}))

	req := httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Leads []*leads.Lead `json:"leads"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := NewHealthHandler(rdb)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Check(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "ok", resp["cache"])
}

func TestHealthCheckCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	h := NewHealthHandler(rdb)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Check(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "unreachable", resp["cache"])
}

func TestHealthCheckNoRedis(t *testing.T) {
	h := NewHealthHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Check(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	_, hasCache := resp["cache"]
	assert.False(t, hasCache)
}
