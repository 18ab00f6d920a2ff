package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hampstead-renovations/voice-agent/internal/leads"
	"github.com/hampstead-renovations/voice-agent/internal/storage"
)

type fakeCRM struct {
	synced []*leads.Lead
	calls  []string
}

func (f *fakeCRM) SyncLead(_ context.Context, lead *leads.Lead) error {
	f.synced = append(f.synced, lead)
	return nil
}

func (f *fakeCRM) LogCall(_ context.Context, phone, summary string) error {
	f.calls = append(f.calls, phone+": "+summary)
	return nil
}

type serviceFixture struct {
	service  *Service
	cache    *Cache
	flags    *FlagStore
	replyLLM *stubLLM
	deepLLM  *stubLLM
	notifier *recordingNotifier
	crm      *fakeCRM
	repo     *leads.InMemoryRepository
}

func newServiceFixture(t *testing.T, opts ...ServiceOption) *serviceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &serviceFixture{
		cache:    NewCache(client, time.Hour, nil),
		flags:    NewFlagStore(client, nil),
		replyLLM: &stubLLM{responses: []LLMResponse{{Text: "Lovely, tell me more about the project."}}},
		deepLLM:  &stubLLM{responses: []LLMResponse{{Text: `{"requires_escalation": false}`}}},
		notifier: &recordingNotifier{},
		crm:      &fakeCRM{},
		repo:     leads.NewInMemoryRepository(),
	}
	engine := NewEngine(NewTriggerDetector(), f.deepLLM, "model-id", f.notifier, nil)
	responder := NewResponder(f.replyLLM, "model-id", nil)
	aggregator := leads.NewAggregator(f.repo, nil)

	opts = append([]ServiceOption{WithCRM(f.crm)}, opts...)
	f.service = NewService(f.cache, NewSentimentClassifier(nil), engine, f.flags, responder, aggregator, nil, opts...)
	return f
}

func TestHandleMessageReplies(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	reply := f.service.HandleMessage(ctx, InboundMessage{
		Phone:        "+44 7700 900123",
		Channel:      ChannelWhatsApp,
		Content:      "Hi, we're thinking about redoing the kitchen",
		CustomerName: "Sarah",
	})

	require.NotNil(t, reply)
	assert.Equal(t, "whatsapp:447700900123", reply.ConversationID)
	assert.Equal(t, "Lovely, tell me more about the project.", reply.Text)
	assert.False(t, reply.Handoff)
	assert.Equal(t, SentimentNeutral, reply.Sentiment)

	history := f.cache.History(ctx, "+447700900123", ChannelWhatsApp, 0)
	require.Len(t, history, 2)
	assert.Contains(t, history[0], "redoing the kitchen")
	assert.Contains(t, history[1], "Lovely, tell me more")

	attrs := f.cache.Context(ctx, "+447700900123")
	assert.Equal(t, "1", attrs["messages_count"])
	assert.Equal(t, "Sarah", attrs["name"])
	assert.Equal(t, string(SentimentNeutral), attrs["sentiment"])
	assert.NotEmpty(t, attrs["last_message_at"])
}

func TestHandleMessageFastPathHandoff(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	reply := f.service.HandleMessage(ctx, InboundMessage{
		Phone:   "+447700900123",
		Channel: ChannelWhatsApp,
		Content: "I'd rather speak to Ross directly please",
	})

	require.True(t, reply.Handoff)
	assert.Equal(t, ReasonExplicitRequest, reply.Reason)
	assert.Equal(t, UrgencyImmediate, reply.Urgency)
	assert.Equal(t, CustomerMessage(ReasonExplicitRequest), reply.Text)

	// No model call on the fast path.
	assert.Zero(t, f.replyLLM.calls)
	assert.Zero(t, f.deepLLM.calls)

	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, "whatsapp:447700900123", f.notifier.alerts[0].ConversationID)

	attrs := f.cache.Context(ctx, "+447700900123")
	assert.Equal(t, "handoff", attrs["status"])

	// Handoff turns still land in the transcript.
	history := f.cache.History(ctx, "+447700900123", ChannelWhatsApp, 0)
	assert.Len(t, history, 2)
}

func TestHandleMessageDeepPathHandoff(t *testing.T) {
	f := newServiceFixture(t)
	f.deepLLM.responses = []LLMResponse{{
		Text: `{"requires_escalation": true, "reason": "ready_to_commit", "urgency": "immediate", "rationale": "Wants to pay a deposit."}`,
	}}
	ctx := context.Background()

	reply := f.service.HandleMessage(ctx, InboundMessage{
		Phone:   "+447700900123",
		Channel: ChannelWhatsApp,
		Content: "We've decided to go ahead, what's the next step?",
	})

	require.True(t, reply.Handoff)
	assert.Equal(t, ReasonHighValue, reply.Reason)
	assert.Equal(t, UrgencyImmediate, reply.Urgency)
	// The generated reply is replaced by the handoff message.
	assert.Equal(t, CustomerMessage(ReasonHighValue), reply.Text)
	assert.Equal(t, 1, f.replyLLM.calls)
	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, "Wants to pay a deposit.", f.notifier.alerts[0].Rationale)
}

func TestHandleMessageFallbackOnModelFailure(t *testing.T) {
	f := newServiceFixture(t)
	// Empty completions are rejected without retry.
	f.replyLLM.responses = []LLMResponse{{Text: ""}}
	ctx := context.Background()

	reply := f.service.HandleMessage(ctx, InboundMessage{
		Phone:   "+447700900123",
		Channel: ChannelWhatsApp,
		Content: "Hello?",
	})

	require.NotNil(t, reply)
	assert.Equal(t, fallbackReply, reply.Text)
	assert.False(t, reply.Handoff)
	// The deep path is skipped when generation already failed.
	assert.Zero(t, f.deepLLM.calls)

	history := f.cache.History(ctx, "+447700900123", ChannelWhatsApp, 0)
	require.Len(t, history, 2)
	assert.Contains(t, history[1], fallbackReply)
}

func TestHandleMessageRaisesReviewFlag(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	reply := f.service.HandleMessage(ctx, InboundMessage{
		Phone:        "+447700900123",
		Channel:      ChannelWhatsApp,
		Content:      "That's expensive, way more than we expected",
		CustomerName: "Sarah",
	})

	assert.Equal(t, SentimentPriceShocked, reply.Sentiment)

	flags, err := f.flags.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, SentimentPriceShocked, flags[0].Sentiment)
	assert.Equal(t, "Sarah", flags[0].CustomerName)
}

func TestHandleMessageQualifiesEveryThirdMessage(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.replyLLM.responses = []LLMResponse{{Text: "Noted!"}}

	send := func(content string) {
		f.service.HandleMessage(ctx, InboundMessage{
			Phone:   "+447700900123",
			Channel: ChannelWhatsApp,
			Content: content,
		})
	}

	send("Hi, looking at a loft conversion")
	send("We're in NW3")
	assert.Empty(t, f.crm.synced)

	// Third message triggers extraction; queue the qualification payload
	// behind the reply.
	f.replyLLM.responses = []LLMResponse{
		{Text: "Great, thanks!"},
		{Text: `{
			"contact": {"name": "Sarah Mitchell", "postcode": "NW3 2QG"},
			"project": {"type": "loft conversion", "budget_range": "£80k-£100k"},
			"qualification": {"lead_score": 72, "lead_tier": "warm"},
			"next_steps": {}
		}`},
	}
	f.replyLLM.calls = 0
	send("Budget is around 80 to 100 thousand")

	require.Len(t, f.crm.synced, 1)
	lead := f.crm.synced[0]
	assert.Equal(t, "Sarah Mitchell", lead.Name)
	assert.Equal(t, "loft conversion", lead.ProjectType)
	assert.Equal(t, 72, lead.Score)
	assert.Equal(t, "warm", lead.Tier)

	stored, err := f.repo.GetByPhone(ctx, "+447700900123")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Mitchell", stored.Name)

	attrs := f.cache.Context(ctx, "+447700900123")
	assert.Equal(t, "warm", attrs["lead_tier"])
	assert.Equal(t, "72", attrs["lead_score"])
	assert.Equal(t, "NW3 2QG", attrs["postcode"])
}

func TestHandleMessageDefaultsChannel(t *testing.T) {
	f := newServiceFixture(t)

	reply := f.service.HandleMessage(context.Background(), InboundMessage{
		Phone:   "+447700900123",
		Content: "hello",
	})
	assert.True(t, strings.HasPrefix(reply.ConversationID, "whatsapp:"))
}

func TestHandleCallEnd(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.replyLLM.responses = []LLMResponse{
		{Text: "Sarah called about a loft conversion and booked a survey."},
		{Text: `{
			"contact": {"name": "Sarah Mitchell"},
			"project": {"type": "loft conversion"},
			"qualification": {"lead_score": 60, "lead_tier": "warm"},
			"next_steps": {}
		}`},
	}

	f.service.HandleCallEnd(ctx, "+447700900123", "User: hi\nAssistant: hello\nUser: loft conversion please")

	history := f.cache.History(ctx, "+447700900123", ChannelPhone, 0)
	require.Len(t, history, 1)
	assert.Contains(t, history[0], "Call ended. Sarah called about a loft conversion")

	attrs := f.cache.Context(ctx, "+447700900123")
	assert.Equal(t, "call_ended", attrs["status"])

	require.Len(t, f.crm.calls, 1)
	assert.Contains(t, f.crm.calls[0], "Sarah called about a loft conversion")

	stored, err := f.repo.GetByPhone(ctx, "+447700900123")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Mitchell", stored.Name)
}

func TestConversationID(t *testing.T) {
	assert.Equal(t, "whatsapp:447700900123", ConversationID("+44 7700 900123", ChannelWhatsApp))
	assert.Equal(t, "phone:447700900123", ConversationID("447700900123", ChannelPhone))
}

type recordingArchiver struct {
	records []*storage.TranscriptRecord
}

func (r *recordingArchiver) Archive(_ context.Context, record *storage.TranscriptRecord) error {
	r.records = append(r.records, record)
	return nil
}

func TestHandleMessageArchivesHandoff(t *testing.T) {
	archiver := &recordingArchiver{}
	f := newServiceFixture(t, WithArchiver(archiver))
	ctx := context.Background()

	f.service.HandleMessage(ctx, InboundMessage{
		Phone:   "+447700900123",
		Channel: ChannelWhatsApp,
		Content: "Can I speak to a human please",
	})

	require.Len(t, archiver.records, 1)
	record := archiver.records[0]
	assert.Equal(t, "whatsapp:447700900123", record.ConversationID)
	assert.Equal(t, "whatsapp", record.Channel)
	assert.Equal(t, "447700900123", record.Phone)
	assert.Equal(t, string(ReasonExplicitRequest), record.HandoffReason)
	require.Len(t, record.Transcript, 2)
	assert.Contains(t, record.Transcript[0], "speak to a human")
}

func TestHandleMessageDoesNotArchiveReplies(t *testing.T) {
	archiver := &recordingArchiver{}
	f := newServiceFixture(t, WithArchiver(archiver))

	f.service.HandleMessage(context.Background(), InboundMessage{
		Phone:   "+447700900123",
		Content: "Morning, just looking for a rough idea of cost",
	})

	assert.Empty(t, archiver.records)
}

func TestHandleCallEndArchivesTranscript(t *testing.T) {
	archiver := &recordingArchiver{}
	f := newServiceFixture(t, WithArchiver(archiver))
	f.replyLLM.responses = []LLMResponse{
		{Text: "Short survey call."},
		{Text: `{"contact": {}, "project": {}, "qualification": {}, "next_steps": {}}`},
	}

	f.service.HandleCallEnd(context.Background(), "+447700900123", "User: hi")

	require.Len(t, archiver.records, 1)
	assert.Equal(t, "phone:447700900123", archiver.records[0].ConversationID)
	assert.Equal(t, "phone", archiver.records[0].Channel)
}

type recordingLeadNotifier struct {
	leads []*leads.Lead
}

func (r *recordingLeadNotifier) NotifyNewLead(_ context.Context, lead *leads.Lead) error {
	r.leads = append(r.leads, lead)
	return nil
}

func TestHandleMessageNotifiesFirstQualifiedLead(t *testing.T) {
	alerts := &recordingLeadNotifier{}
	f := newServiceFixture(t, WithLeadNotifier(alerts))
	ctx := context.Background()
	f.replyLLM.responses = []LLMResponse{{Text: "Noted!"}}

	send := func(content string) {
		f.service.HandleMessage(ctx, InboundMessage{
			Phone:   "+447700900123",
			Channel: ChannelWhatsApp,
			Content: content,
		})
	}

	send("Hi, looking at a rear extension")
	send("We're in NW6")
	assert.Empty(t, alerts.leads)

	qualification := `{
		"contact": {"name": "Tom Harper"},
		"project": {"type": "rear extension"},
		"qualification": {"lead_score": 65, "lead_tier": "warm"},
		"next_steps": {}
	}`
	f.replyLLM.responses = []LLMResponse{{Text: "Great!"}, {Text: qualification}}
	f.replyLLM.calls = 0
	send("Budget is flexible")

	require.Len(t, alerts.leads, 1)
	assert.Equal(t, "Tom Harper", alerts.leads[0].Name)
	assert.Equal(t, "warm", alerts.leads[0].Tier)

	// A later extraction for the same number must not re-alert.
	f.replyLLM.responses = []LLMResponse{{Text: "Ok"}, {Text: qualification}}
	f.replyLLM.calls = 0
	send("Fourth message")
	send("Fifth message")
	send("Sixth message")

	assert.Len(t, alerts.leads, 1)
}

func TestHandleMessagePromptUsesStoredContext(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.cache.UpdateContext(ctx, "+447700900123", map[string]string{
		"name":           "Sarah",
		"project_type":   "loft conversion",
		"budget_range":   "£80k-£100k",
		"lead_tier":      "WARM",
		"messages_count": "not-a-number",
	})

	reply := f.service.HandleMessage(ctx, InboundMessage{
		Phone:   "+447700900123",
		Channel: ChannelWhatsApp,
		Content: "When could a survey happen?",
	})
	require.NotNil(t, reply)

	require.Equal(t, 1, f.replyLLM.calls)
	prompt := f.replyLLM.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "Name: Sarah")
	assert.Contains(t, prompt, "Project: loft conversion")
	assert.Contains(t, prompt, "Budget: £80k-£100k")
	assert.Contains(t, prompt, "Lead tier: warm")

	// A mangled counter resets rather than poisoning the turn count.
	attrs := f.cache.Context(ctx, "+447700900123")
	assert.Equal(t, "1", attrs["messages_count"])
}
