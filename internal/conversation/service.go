package conversation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/hampstead-renovations/voice-agent/internal/leads"
	"github.com/hampstead-renovations/voice-agent/internal/observability/metrics"
	"github.com/hampstead-renovations/voice-agent/internal/storage"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

var serviceTracer = otel.Tracer("voiceagent/conversation-service")

// qualificationInterval controls how often the qualification extraction
// runs: every Nth customer message once a conversation is underway.
const qualificationInterval = 3

const fallbackReply = "Sorry - I'm having a little trouble at the moment. Could you send that again in a minute? If it's urgent, Ross is on 020 7946 0958."

// InboundMessage is one customer message entering the pipeline.
type InboundMessage struct {
	Phone        string            `json:"phone"`
	Channel      Channel           `json:"channel"`
	Content      string            `json:"content"`
	CustomerName string            `json:"customer_name,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Reply is the pipeline's answer for one inbound message.
type Reply struct {
	ConversationID string        `json:"conversation_id"`
	Text           string        `json:"text"`
	Handoff        bool          `json:"handoff"`
	Reason         HandoffReason `json:"reason,omitempty"`
	Urgency        Urgency       `json:"urgency,omitempty"`
	Sentiment      Sentiment     `json:"sentiment"`
	Timestamp      time.Time     `json:"timestamp"`
}

// CRMSyncer pushes merged lead state to the CRM. Sync failures are logged
// by the service, never surfaced to the customer path.
type CRMSyncer interface {
	SyncLead(ctx context.Context, lead *leads.Lead) error
	LogCall(ctx context.Context, phone, summary string) error
}

// TranscriptArchiver persists finished conversation transcripts for later
// review. Archival is best-effort and never blocks the customer path.
type TranscriptArchiver interface {
	Archive(ctx context.Context, record *storage.TranscriptRecord) error
}

// LeadNotifier alerts operators the first time a conversation produces a
// qualified lead.
type LeadNotifier interface {
	NotifyNewLead(ctx context.Context, lead *leads.Lead) error
}

// Service runs the per-message pipeline: history fetch, fast-path
// escalation, reply generation, sentiment classification, deep-path
// escalation, cache writeback and periodic qualification merge.
//
// Per-phone state is deliberately unsynchronized: concurrent messages from
// the same number interleave with last-write-wins semantics, matching the
// low per-customer traffic this serves.
type Service struct {
	cache      *Cache
	classifier *SentimentClassifier
	engine     *Engine
	flags      *FlagStore
	responder  *Responder
	aggregator *leads.Aggregator
	crm        CRMSyncer
	archiver   TranscriptArchiver
	leadAlerts LeadNotifier
	metrics    *metrics.ConversationMetrics
	logger     *logging.Logger
}

// ServiceOption customizes optional service collaborators.
type ServiceOption func(*Service)

// WithCRM wires a CRM syncer for qualification and call-log pushes.
func WithCRM(crm CRMSyncer) ServiceOption {
	return func(s *Service) { s.crm = crm }
}

// WithArchiver wires a transcript archiver; handoffs and ended calls are
// archived when set.
func WithArchiver(a TranscriptArchiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// WithLeadNotifier wires operator alerts for newly qualified leads.
func WithLeadNotifier(n LeadNotifier) ServiceOption {
	return func(s *Service) { s.leadAlerts = n }
}

// WithMetrics wires pipeline metrics.
func WithMetrics(m *metrics.ConversationMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the pipeline. cache, classifier, engine, flags and
// responder are required; the aggregator may be nil to disable
// qualification merging.
func NewService(cache *Cache, classifier *SentimentClassifier, engine *Engine, flags *FlagStore, responder *Responder, aggregator *leads.Aggregator, logger *logging.Logger, opts ...ServiceOption) *Service {
	if cache == nil {
		panic("conversation: cache cannot be nil")
	}
	if classifier == nil {
		panic("conversation: classifier cannot be nil")
	}
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if flags == nil {
		panic("conversation: flag store cannot be nil")
	}
	if responder == nil {
		panic("conversation: responder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		cache:      cache,
		classifier: classifier,
		engine:     engine,
		flags:      flags,
		responder:  responder,
		aggregator: aggregator,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConversationID derives the stable id for a phone+channel pair.
func ConversationID(phone string, channel Channel) string {
	return string(channel) + ":" + cleanPhone(phone)
}

// HandleMessage processes one inbound customer message end to end and
// always returns a usable reply; internal failures degrade to the generic
// fallback text rather than an error.
func (s *Service) HandleMessage(ctx context.Context, msg InboundMessage) *Reply {
	ctx, span := serviceTracer.Start(ctx, "conversation.handle_message")
	defer span.End()
	started := time.Now()

	if msg.Channel == "" {
		msg.Channel = ChannelWhatsApp
	}
	convID := ConversationID(msg.Phone, msg.Channel)

	history := s.cache.History(ctx, msg.Phone, msg.Channel, messageWindow)
	cc := ContextFromMap(s.cache.Context(ctx, msg.Phone))
	customerName := msg.CustomerName
	if customerName == "" {
		customerName = cc.Name
	}

	sentiment := s.classifier.Classify(ctx, msg.Content)
	s.metrics.ObserveSentiment(string(sentiment.Sentiment))
	if sentiment.RequiresReview {
		s.raiseFlag(ctx, convID, msg.Phone, customerName, sentiment)
	}

	reply := &Reply{
		ConversationID: convID,
		Sentiment:      sentiment.Sentiment,
		Timestamp:      time.Now().UTC(),
	}

	decision := s.engine.EvaluateFast(msg.Content)
	outcome := "replied"
	if decision.ShouldHandoff {
		reply.Text = s.handoff(ctx, decision, convID, msg, customerName)
		reply.Handoff = true
		reply.Reason = decision.Reason
		reply.Urgency = decision.Urgency
		outcome = "handoff"
	} else {
		llmStart := time.Now()
		text, err := s.responder.GenerateReply(ctx, strings.Join(history, "\n"), cc, msg.Content)
		s.metrics.ObserveLLMLatency("generate_reply", time.Since(llmStart).Seconds())
		if err != nil {
			s.logger.Error("reply generation failed", "error", err, "conversation_id", convID)
			text = fallbackReply
			outcome = "fallback"
		} else if deep := s.engine.EvaluateDeep(ctx, msg.Content, history); deep.ShouldHandoff {
			// The model judged this conversation needs a human even though
			// no keyword fired; the handoff message replaces the reply.
			text = s.handoff(ctx, deep, convID, msg, customerName)
			reply.Handoff = true
			reply.Reason = deep.Reason
			reply.Urgency = deep.Urgency
			outcome = "handoff"
		}
		reply.Text = text
	}

	s.writeBack(ctx, msg, cc, sentiment, reply)
	s.maybeQualify(ctx, msg, history, cc)
	if reply.Handoff {
		s.archive(ctx, convID, msg.Phone, msg.Channel, string(sentiment.Sentiment), string(reply.Reason))
	}

	s.metrics.ObserveMessage(string(msg.Channel), outcome)
	s.metrics.ObservePipelineLatency(string(msg.Channel), time.Since(started).Seconds())
	return reply
}

// HandleCallEnd ingests an end-of-call transcript from the phone channel:
// it records the call outcome, extracts qualification from the full
// transcript and logs the call summary to the CRM.
func (s *Service) HandleCallEnd(ctx context.Context, phone, transcript string) {
	ctx, span := serviceTracer.Start(ctx, "conversation.handle_call_end")
	defer span.End()

	convID := ConversationID(phone, ChannelPhone)
	summary, err := s.responder.SummarizeCall(ctx, transcript)
	if err != nil {
		s.logger.Warn("call summary unavailable", "error", err, "conversation_id", convID)
		summary = ""
	}

	s.cache.AppendMessage(ctx, phone, "assistant", strings.TrimSpace("Call ended. "+summary), ChannelPhone)
	s.cache.SetStatus(ctx, phone, "call_ended")
	s.archive(ctx, convID, phone, ChannelPhone, "", "")

	if q, err := s.responder.ExtractQualification(ctx, transcript, ""); err == nil {
		s.mergeQualification(ctx, phone, q)
	} else {
		s.logger.Warn("call qualification extraction failed", "error", err, "conversation_id", convID)
	}

	if s.crm != nil && summary != "" {
		if err := s.crm.LogCall(ctx, phone, summary); err != nil {
			s.logger.Error("crm call log failed", "error", err, "conversation_id", convID)
		}
	}
}

func (s *Service) handoff(ctx context.Context, decision Decision, convID string, msg InboundMessage, customerName string) string {
	s.metrics.ObserveHandoff(string(decision.Reason), string(decision.Urgency))
	s.cache.SetStatus(ctx, msg.Phone, "handoff")
	return s.engine.ExecuteHandoff(ctx, decision, HandoffAlert{
		ConversationID: convID,
		Phone:          msg.Phone,
		CustomerName:   customerName,
	})
}

func (s *Service) archive(ctx context.Context, convID, phone string, channel Channel, sentiment, handoffReason string) {
	if s.archiver == nil {
		return
	}
	cc := ContextFromMap(s.cache.Context(ctx, phone))
	record := &storage.TranscriptRecord{
		ConversationID: convID,
		Channel:        string(channel),
		Phone:          cleanPhone(phone),
		Transcript:     s.cache.History(ctx, phone, channel, messageWindow),
		Sentiment:      sentiment,
		HandoffReason:  handoffReason,
		LeadTier:       string(cc.LeadTier),
	}
	if err := s.archiver.Archive(ctx, record); err != nil {
		s.logger.Error("transcript archive failed", "error", err, "conversation_id", convID)
	}
}

func (s *Service) raiseFlag(ctx context.Context, convID, phone, customerName string, res SentimentResult) {
	if _, err := s.flags.Create(ctx, convID, phone, customerName, res); err != nil {
		s.logger.Error("review flag creation failed", "error", err, "conversation_id", convID)
		return
	}
	s.metrics.ObserveFlag()
}

func (s *Service) writeBack(ctx context.Context, msg InboundMessage, cc ConversationContext, sentiment SentimentResult, reply *Reply) {
	s.cache.AppendMessage(ctx, msg.Phone, "user", msg.Content, msg.Channel)
	s.cache.AppendMessage(ctx, msg.Phone, "assistant", reply.Text, msg.Channel)

	next := ConversationContext{
		Phone:         msg.Phone,
		Channel:       msg.Channel,
		Sentiment:     sentiment.Sentiment,
		MessagesCount: cc.MessagesCount + 1,
		LastMessageAt: time.Now().UTC(),
	}
	if msg.CustomerName != "" && cc.Name == "" {
		next.Name = msg.CustomerName
	}
	s.cache.UpdateContext(ctx, msg.Phone, next.ToMap())
}

// maybeQualify runs the extraction on every Nth message. Extraction is
// best-effort; a failed or unparsable extraction skips this turn.
func (s *Service) maybeQualify(ctx context.Context, msg InboundMessage, history []string, cc ConversationContext) {
	if s.aggregator == nil {
		return
	}
	if (cc.MessagesCount+1)%qualificationInterval != 0 {
		return
	}

	llmStart := time.Now()
	q, err := s.responder.ExtractQualification(ctx, strings.Join(history, "\n"), msg.Content)
	s.metrics.ObserveLLMLatency("qualification", time.Since(llmStart).Seconds())
	if err != nil {
		s.logger.Warn("qualification extraction skipped", "error", err, "phone", cleanPhone(msg.Phone))
		return
	}
	s.mergeQualification(ctx, msg.Phone, q)
}

func (s *Service) mergeQualification(ctx context.Context, phone string, q *leads.Qualification) {
	if s.aggregator == nil || q == nil {
		return
	}
	lead, err := s.aggregator.MergeQualification(ctx, phone, q)
	if err != nil {
		s.logger.Error("qualification merge failed", "error", err, "phone", cleanPhone(phone))
		return
	}

	priorTier := ContextFromMap(s.cache.Context(ctx, phone)).LeadTier

	next := ConversationContext{
		Name:               lead.Name,
		Email:              lead.Email,
		Address:            lead.Address,
		Postcode:           lead.Postcode,
		ProjectType:        lead.ProjectType,
		ProjectDescription: lead.Description,
		Timeline:           lead.Timeline,
		BudgetRange:        lead.BudgetRange,
		PropertyType:       lead.PropertyType,
		LeadScore:          lead.Score,
		LeadScoreSet:       lead.ScoreSet,
		LeadTier:           ParseLeadTier(lead.Tier),
	}
	s.cache.UpdateContext(ctx, phone, next.ToMap())

	if s.leadAlerts != nil && priorTier == "" && next.LeadTier != "" {
		if err := s.leadAlerts.NotifyNewLead(ctx, lead); err != nil {
			s.logger.Error("new lead alert failed", "error", err, "phone", cleanPhone(phone))
		}
	}

	if s.crm != nil {
		if err := s.crm.SyncLead(ctx, lead); err != nil {
			s.logger.Error("crm lead sync failed", "error", err, "phone", cleanPhone(phone))
		}
	}
}
