package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hampstead-renovations/voice-agent/internal/conversation"
	"github.com/hampstead-renovations/voice-agent/internal/leads"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// SMSSender sends SMS messages to operators.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Config holds the static recipients for operator notifications.
type Config struct {
	CompanyName string
	OpsPhone    string
	OpsEmail    string
}

// Service fans escalation and lead alerts out to Slack, SMS and email.
// It satisfies the escalation engine's OpsNotifier interface.
type Service struct {
	slack  *SlackClient
	sms    SMSSender
	email  EmailSender
	cfg    Config
	logger *logging.Logger
}

// NewService creates a notification service. Any of slack, sms and email
// may be nil; configured channels are tried independently.
func NewService(slack *SlackClient, sms SMSSender, email EmailSender, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.CompanyName == "" {
		cfg.CompanyName = "Hampstead Renovations"
	}
	return &Service{
		slack:  slack,
		sms:    sms,
		email:  email,
		cfg:    cfg,
		logger: logger,
	}
}

// HandoffAlert notifies the operators that a conversation needs a human.
// Slack and email go out for every urgency; SMS only when the handoff is
// immediate.
func (s *Service) HandoffAlert(ctx context.Context, alert conversation.HandoffAlert) error {
	var errs []error

	name := alert.CustomerName
	if name == "" {
		name = "Unknown customer"
	}

	if s.slack != nil {
		msg := SlackMessage{
			Text: fmt.Sprintf("%s Customer handoff needed: %s", urgencyEmoji(alert.Urgency), name),
			Attachments: []SlackAttachment{{
				Color: urgencyColor(alert.Urgency),
				Fields: []SlackField{
					{Title: "Customer", Value: name, Short: true},
					{Title: "Phone", Value: alert.Phone, Short: true},
					{Title: "Reason", Value: humanReason(alert.Reason), Short: true},
					{Title: "Urgency", Value: string(alert.Urgency), Short: true},
					{Title: "Conversation", Value: alert.ConversationID, Short: false},
				},
			}},
		}
		if alert.Rationale != "" {
			msg.Attachments[0].Text = alert.Rationale
		}
		if err := s.slack.Post(ctx, msg); err != nil {
			s.logger.Error("notify: slack handoff alert failed", "error", err, "conversation_id", alert.ConversationID)
			errs = append(errs, err)
		}
	}

	if s.sms != nil && s.cfg.OpsPhone != "" && alert.Urgency == conversation.UrgencyImmediate {
		body := fmt.Sprintf("URGENT handoff: %s (%s). Reason: %s. Please call them now.",
			name, alert.Phone, humanReason(alert.Reason))
		if err := s.sms.SendSMS(ctx, s.cfg.OpsPhone, body); err != nil {
			s.logger.Error("notify: sms handoff alert failed", "error", err, "conversation_id", alert.ConversationID)
			errs = append(errs, err)
		}
	}

	if s.email != nil && s.cfg.OpsEmail != "" {
		subject := fmt.Sprintf("Handoff needed (%s): %s", alert.Urgency, name)
		body := fmt.Sprintf(`A conversation needs a human follow-up.

Customer: %s
Phone: %s
Reason: %s
Urgency: %s
Conversation: %s
%s
— %s assistant`, name, alert.Phone, humanReason(alert.Reason), alert.Urgency, alert.ConversationID, rationaleLine(alert.Rationale), s.cfg.CompanyName)

		if err := s.email.Send(ctx, EmailMessage{To: s.cfg.OpsEmail, Subject: subject, Body: body}); err != nil {
			s.logger.Error("notify: email handoff alert failed", "error", err, "conversation_id", alert.ConversationID)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d handoff notification(s) failed", len(errs))
	}
	return nil
}

// NotifyNewLead alerts operators when a qualified lead first appears.
func (s *Service) NotifyNewLead(ctx context.Context, lead *leads.Lead) error {
	if lead == nil {
		return nil
	}
	var errs []error

	if s.slack != nil {
		fields := []SlackField{
			{Title: "Name", Value: orDash(lead.Name), Short: true},
			{Title: "Phone", Value: orDash(lead.Phone), Short: true},
			{Title: "Project", Value: orDash(lead.ProjectType), Short: true},
			{Title: "Budget", Value: orDash(lead.BudgetRange), Short: true},
		}
		if lead.Tier != "" {
			fields = append(fields, SlackField{Title: "Tier", Value: lead.Tier, Short: true})
		}
		msg := SlackMessage{
			Text: fmt.Sprintf(":house: New lead: %s", orDash(lead.Name)),
			Attachments: []SlackAttachment{{
				Color:  "#36a64f",
				Fields: fields,
			}},
		}
		if err := s.slack.Post(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if s.email != nil && s.cfg.OpsEmail != "" {
		subject := fmt.Sprintf("New lead: %s", orDash(lead.Name))
		body := fmt.Sprintf(`A new lead has come in.

Name: %s
Phone: %s
Email: %s
Project: %s
Budget: %s
Timeline: %s
Source: %s

— %s assistant`, orDash(lead.Name), orDash(lead.Phone), orDash(lead.Email),
			orDash(lead.ProjectType), orDash(lead.BudgetRange), orDash(lead.Timeline),
			orDash(lead.Source), s.cfg.CompanyName)
		if err := s.email.Send(ctx, EmailMessage{To: s.cfg.OpsEmail, Subject: subject, Body: body}); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d lead notification(s) failed", len(errs))
	}
	return nil
}

func urgencyEmoji(u conversation.Urgency) string {
	switch u {
	case conversation.UrgencyImmediate:
		return ":rotating_light:"
	case conversation.UrgencySameDay:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

func urgencyColor(u conversation.Urgency) string {
	switch u {
	case conversation.UrgencyImmediate:
		return "#e01e5a"
	case conversation.UrgencySameDay:
		return "#ecb22e"
	default:
		return "#2eb67d"
	}
}

func humanReason(r conversation.HandoffReason) string {
	return strings.ReplaceAll(string(r), "_", " ")
}

func rationaleLine(rationale string) string {
	if rationale == "" {
		return ""
	}
	return "Notes: " + rationale + "\n"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// StubSMSSender is a no-op sender for testing.
type StubSMSSender struct {
	logger *logging.Logger
}

// NewStubSMSSender creates a stub SMS sender.
func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

// SendSMS logs but doesn't send.
func (s *StubSMSSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("stub SMS sender: would send", "to", to, "body_preview", truncate(body, 50))
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Ensure interface compliance
var _ SMSSender = (*StubSMSSender)(nil)
var _ conversation.OpsNotifier = (*Service)(nil)
