package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hampstead-renovations/voice-agent/internal/leads"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

const (
	llmMaxAttempts  = 3
	llmInitialDelay = time.Second
)

var errEmptyCompletion = errors.New("conversation: model returned empty completion")

const replySystemPrompt = `You are the friendly assistant for Hampstead Renovations, a family-run renovation company in North West London led by Ross. You answer WhatsApp messages and phone enquiries about kitchen, bathroom, loft and full-house renovations.

Guidelines:
- Be warm, concise and British in tone. Two to four sentences per reply.
- Gather the customer's name, address or postcode, project type, rough budget and timeline naturally over the conversation, never as a form.
- Offer a free home survey once the project sounds concrete.
- Never invent prices. For detailed quotes, explain that Ross prepares those after a survey.
- Never give structural or planning advice; offer to have Ross call instead.`

const qualificationSystemPrompt = `Extract lead qualification data from the renovation company conversation below. Respond with JSON only, using null for anything not mentioned:
{
  "contact": {"name": null, "email": null, "phone": null, "address": null, "postcode": null},
  "project": {"type": null, "description": null, "timeline": null, "budget_range": null, "property_type": null},
  "qualification": {"lead_score": 0, "lead_tier": "hot|warm|cold|unqualified", "decision_maker": null, "urgency": null, "in_service_area": null},
  "next_steps": {"recommended_action": null, "survey_recommended": null}
}
lead_score is 0-100: budget clarity, timeline urgency, decision-making authority and service-area fit each contribute.`

const summarySystemPrompt = `Summarize this renovation enquiry phone call in three to five sentences for the company owner. Cover who called, what project they want, any budget or timeline mentioned, and the agreed next step.`

// Responder drives every LLM interaction for the message pipeline: reply
// generation, qualification extraction and call summaries. Transient model
// failures are retried with exponential backoff before surfacing.
type Responder struct {
	llm    LLMClient
	model  string
	logger *logging.Logger
}

// NewResponder wires the responder to an LLM client.
func NewResponder(llm LLMClient, model string, logger *logging.Logger) *Responder {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{llm: llm, model: model, logger: logger}
}

// GenerateReply produces the next assistant turn given the chronological
// history block, the known conversation context and the inbound message.
func (r *Responder) GenerateReply(ctx context.Context, history string, cc ConversationContext, message string) (string, error) {
	var prompt strings.Builder
	if block := contextBlock(cc); block != "" {
		prompt.WriteString("What we know about this customer:\n")
		prompt.WriteString(block)
		prompt.WriteString("\n\n")
	}
	if history != "" {
		prompt.WriteString("Conversation so far:\n")
		prompt.WriteString(history)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("Customer: ")
	prompt.WriteString(message)

	resp, err := r.complete(ctx, LLMRequest{
		Model:       r.model,
		System:      []string{replySystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt.String()}},
		MaxTokens:   400,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ExtractQualification asks the model for the structured qualification
// payload covering the whole conversation. Markdown fences around the JSON
// are tolerated; anything else unparsable is an error the caller treats as
// "no extraction this turn".
func (r *Responder) ExtractQualification(ctx context.Context, history string, message string) (*leads.Qualification, error) {
	transcript := history
	if message != "" {
		if transcript != "" {
			transcript += "\n"
		}
		transcript += "Customer: " + message
	}

	resp, err := r.complete(ctx, LLMRequest{
		Model:       r.model,
		System:      []string{qualificationSystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: transcript}},
		MaxTokens:   600,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var q leads.Qualification
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Text)), &q); err != nil {
		return nil, fmt.Errorf("conversation: qualification parse failed: %w", err)
	}
	return &q, nil
}

// SummarizeCall condenses a phone-call transcript for the CRM engagement
// log and the ops channel.
func (r *Responder) SummarizeCall(ctx context.Context, transcript string) (string, error) {
	resp, err := r.complete(ctx, LLMRequest{
		Model:       r.model,
		System:      []string{summarySystemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: transcript}},
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// complete calls the model with a bounded retry. The cache layer never
// retries; model calls do, since a dropped completion costs a whole turn.
func (r *Responder) complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	delay := llmInitialDelay
	var lastErr error
	for attempt := 1; attempt <= llmMaxAttempts; attempt++ {
		resp, err := r.llm.Complete(ctx, req)
		if err == nil {
			if strings.TrimSpace(resp.Text) == "" {
				return LLMResponse{}, errEmptyCompletion
			}
			return resp, nil
		}
		lastErr = err
		if attempt == llmMaxAttempts {
			break
		}
		r.logger.Warn("model call failed, retrying",
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return LLMResponse{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return LLMResponse{}, fmt.Errorf("conversation: model call failed after %d attempts: %w", llmMaxAttempts, lastErr)
}

func contextBlock(cc ConversationContext) string {
	fields := []struct{ label, value string }{
		{"Name", cc.Name},
		{"Postcode", cc.Postcode},
		{"Address", cc.Address},
		{"Project", cc.ProjectType},
		{"Budget", cc.BudgetRange},
		{"Timeline", cc.Timeline},
		{"Property", cc.PropertyType},
		{"Lead tier", string(cc.LeadTier)},
	}
	var b strings.Builder
	for _, f := range fields {
		if f.value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.label, f.value)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
