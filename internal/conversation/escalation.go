package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

var escalationTracer = otel.Tracer("voiceagent/escalation-engine")

// deepPathTurns is how much history accompanies the current message on the
// LLM deep path.
const deepPathTurns = 10

// Decision is the outcome of one escalation evaluation. It is never
// persisted; only its side effects (ops alert, review flag, cache update)
// survive the request.
type Decision struct {
	ShouldHandoff bool          `json:"should_handoff"`
	Reason        HandoffReason `json:"reason"`
	Urgency       Urgency       `json:"urgency"`
	ContextForOps string        `json:"context_for_ops"`
}

// HandoffAlert is the operator-facing notification raised by a positive
// decision.
type HandoffAlert struct {
	ConversationID string
	Phone          string
	CustomerName   string
	Reason         HandoffReason
	Urgency        Urgency
	Rationale      string
}

// OpsNotifier delivers handoff alerts to the operations channel. Failures
// are logged by the engine, never raised.
type OpsNotifier interface {
	HandoffAlert(ctx context.Context, alert HandoffAlert) error
}

// Engine combines the fast-path keyword checks with an LLM deep path into
// a single handoff decision per inbound message. The fast path always wins
// when it fires; the model is only consulted when every keyword check is
// silent.
type Engine struct {
	detector *TriggerDetector
	llm      LLMClient
	model    string
	notifier OpsNotifier
	logger   *logging.Logger
}

// NewEngine wires the escalation engine. llm may be nil, in which case the
// deep path always declines to escalate.
func NewEngine(detector *TriggerDetector, llm LLMClient, model string, notifier OpsNotifier, logger *logging.Logger) *Engine {
	if detector == nil {
		detector = NewTriggerDetector()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		detector: detector,
		llm:      llm,
		model:    model,
		notifier: notifier,
		logger:   logger,
	}
}

// Evaluate runs the decision tree for one inbound message. history is the
// chronological formatted window from the cache. The returned decision is
// always usable; internal failures degrade to no-handoff.
func (e *Engine) Evaluate(ctx context.Context, message string, history []string) Decision {
	ctx, span := escalationTracer.Start(ctx, "escalation.evaluate")
	defer span.End()

	decision := e.fastPath(message)
	if !decision.ShouldHandoff {
		decision = e.deepPath(ctx, message, history)
	}

	span.SetAttributes(
		attribute.Bool("handoff.should_handoff", decision.ShouldHandoff),
		attribute.String("handoff.reason", string(decision.Reason)),
		attribute.String("handoff.urgency", string(decision.Urgency)),
	)
	if decision.ShouldHandoff {
		e.logger.Info("handoff decision",
			"reason", decision.Reason,
			"urgency", decision.Urgency,
			"rationale", decision.ContextForOps,
		)
	}
	return decision
}

// EvaluateFast runs only the keyword decision tree, for callers that want
// to short-circuit before paying for model generation.
func (e *Engine) EvaluateFast(message string) Decision {
	return e.fastPath(message)
}

// EvaluateDeep runs only the LLM deep path. Intended for after the fast
// path stayed silent and a reply has been generated.
func (e *Engine) EvaluateDeep(ctx context.Context, message string, history []string) Decision {
	return e.deepPath(ctx, message, history)
}

func (e *Engine) fastPath(message string) Decision {
	switch e.detector.DetectTrigger(message) {
	case TriggerExplicitRequest:
		return Decision{
			ShouldHandoff: true,
			Reason:        ReasonExplicitRequest,
			Urgency:       UrgencyImmediate,
			ContextForOps: "Customer asked to speak with a person directly.",
		}
	case TriggerComplaint:
		return Decision{
			ShouldHandoff: true,
			Reason:        ReasonComplaint,
			Urgency:       UrgencyImmediate,
			ContextForOps: "Complaint or legal language detected in the latest message.",
		}
	case TriggerFrustration:
		return Decision{
			ShouldHandoff: true,
			Reason:        ReasonNegativeSentiment,
			Urgency:       UrgencySameDay,
			ContextForOps: "Customer sounds frustrated with the automated conversation.",
		}
	}

	if amount, ok := e.detector.DetectHighValue(message); ok {
		return Decision{
			ShouldHandoff: true,
			Reason:        ReasonHighValue,
			Urgency:       UrgencySameDay,
			ContextForOps: fmt.Sprintf("High-value project mentioned: approximately £%s.", formatAmount(amount)),
		}
	}

	return Decision{Reason: ReasonNone, Urgency: UrgencyNextAvailable}
}

const deepPathSystemPrompt = `You review one message from a renovation company's customer conversation and decide whether a human should take over. Escalate only when one of these holds:
1. Negative sentiment beyond a simple price concern.
2. Complex planning-permission or building-regulations questions.
3. The customer is comparing us with a competitor and needs persuading.
4. Structural or technical questions that need an expert.
5. The customer is ready to sign a contract or pay a deposit.

Respond with JSON only:
{"requires_escalation": true|false, "reason": "negative_sentiment"|"complex_planning"|"competitor_mention"|"technical_question"|"ready_to_commit"|"none", "urgency": "immediate"|"same-day"|"next-day"|"none", "rationale": "<one sentence for the operator>"}`

type deepPathVerdict struct {
	RequiresEscalation bool   `json:"requires_escalation"`
	Reason             string `json:"reason"`
	Urgency            string `json:"urgency"`
	Rationale          string `json:"rationale"`
}

// deepPath asks the model to judge the conversation when no keyword fired.
// Model failure or unparsable output defaults to no-handoff; a missed
// escalation is preferred over a crashed request.
func (e *Engine) deepPath(ctx context.Context, message string, history []string) Decision {
	noHandoff := Decision{Reason: ReasonNone, Urgency: UrgencyNextAvailable}
	if e.llm == nil {
		return noHandoff
	}

	if len(history) > deepPathTurns {
		history = history[len(history)-deepPathTurns:]
	}
	var prompt strings.Builder
	if len(history) > 0 {
		prompt.WriteString("Recent conversation:\n")
		prompt.WriteString(strings.Join(history, "\n"))
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("Latest customer message:\n")
	prompt.WriteString(message)

	resp, err := e.llm.Complete(ctx, LLMRequest{
		Model:       e.model,
		System:      []string{deepPathSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt.String()}},
		MaxTokens:   300,
		Temperature: 0,
	})
	if err != nil {
		e.logger.Warn("escalation deep path unavailable", "error", err)
		return noHandoff
	}

	var verdict deepPathVerdict
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Text)), &verdict); err != nil {
		e.logger.Warn("escalation deep path returned unparsable output", "error", err)
		return noHandoff
	}
	if !verdict.RequiresEscalation {
		return noHandoff
	}

	return Decision{
		ShouldHandoff: true,
		Reason:        deepPathReason(verdict.Reason),
		Urgency:       deepPathUrgency(verdict.Urgency),
		ContextForOps: verdict.Rationale,
	}
}

func deepPathReason(s string) HandoffReason {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "complex_planning", "technical_question":
		return ReasonComplexPlanning
	case "competitor_mention":
		return ReasonCompetitorMention
	case "ready_to_commit":
		return ReasonHighValue
	default:
		return ReasonNegativeSentiment
	}
}

func deepPathUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return UrgencyImmediate
	case "same-day", "same_day":
		return UrgencySameDay
	default:
		return UrgencyNextAvailable
	}
}

// CustomerMessage renders the decision into the canned customer-facing
// reply for its reason. Unset or unknown reasons get the generic message.
func CustomerMessage(reason HandoffReason) string {
	switch reason {
	case ReasonExplicitRequest:
		return "Of course - I'll ask Ross to get in touch with you directly. He'll call you as soon as he's free, usually within the hour during working hours."
	case ReasonComplaint:
		return "I'm really sorry to hear that. I've flagged this for Ross straight away and he'll call you personally to put things right."
	case ReasonNegativeSentiment:
		return "I'm sorry this hasn't been as smooth as it should be. Let me hand you over to Ross, who'll pick this up with you today."
	case ReasonHighValue:
		return "That sounds like a fantastic project. For something of this scale Ross likes to talk things through personally - he'll give you a call today to discuss it properly."
	case ReasonComplexPlanning:
		return "That's a great question, and planning rules can be tricky. Ross has handled plenty of these locally, so I'll have him give you a call to talk it through."
	case ReasonCompetitorMention:
		return "It's always worth comparing quotes. Ross would be happy to walk you through exactly what's included in ours - I'll ask him to give you a ring."
	default:
		return "Thanks for your message - I'll ask one of the team to get back to you shortly."
	}
}

// ExecuteHandoff performs the side effects of a positive decision: an ops
// channel alert (plus, for immediate urgency, a short SMS handled by the
// notifier) and returns the customer-facing message. Alert failures are
// logged, never raised.
func (e *Engine) ExecuteHandoff(ctx context.Context, decision Decision, alert HandoffAlert) string {
	ctx, span := escalationTracer.Start(ctx, "escalation.execute_handoff")
	defer span.End()

	alert.Reason = decision.Reason
	alert.Urgency = decision.Urgency
	if alert.Rationale == "" {
		alert.Rationale = decision.ContextForOps
	}

	if e.notifier != nil {
		if err := e.notifier.HandoffAlert(ctx, alert); err != nil {
			span.RecordError(err)
			e.logger.Error("handoff alert failed", "error", err, "conversation_id", alert.ConversationID)
		}
	}

	return CustomerMessage(decision.Reason)
}

func formatAmount(amount float64) string {
	n := int64(amount)
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}
