package crm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hampstead-renovations/voice-agent/internal/leads"
	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// Syncer pushes merged lead state into the CRM. It satisfies the
// conversation pipeline's CRMSyncer interface.
type Syncer struct {
	client *Client
	repo   leads.Repository
	logger *logging.Logger
}

// NewSyncer wires a syncer. repo may be nil; when set, the CRM contact id
// is written back onto the stored lead after an upsert.
func NewSyncer(client *Client, repo leads.Repository, logger *logging.Logger) *Syncer {
	if client == nil {
		panic("crm: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Syncer{client: client, repo: repo, logger: logger}
}

// SyncLead upserts the lead's contact. Only populated fields are sent, so
// a qualification pass that learned nothing new never blanks CRM data.
func (s *Syncer) SyncLead(ctx context.Context, lead *leads.Lead) error {
	if lead == nil || lead.Phone == "" {
		return errors.New("crm: lead with phone required")
	}

	first, last := splitName(lead.Name)
	props := ContactProperties{
		FirstName:          first,
		LastName:           last,
		Email:              lead.Email,
		Phone:              lead.Phone,
		Address:            lead.Address,
		Postcode:           lead.Postcode,
		ProjectType:        lead.ProjectType,
		ProjectDescription: lead.Description,
		Timeline:           lead.Timeline,
		BudgetRange:        lead.BudgetRange,
		PropertyType:       lead.PropertyType,
		LeadTier:           lead.Tier,
		LeadSource:         lead.Source,
	}
	if lead.ScoreSet {
		props.LeadScore = strconv.Itoa(lead.Score)
	}

	contactID, err := s.client.UpsertContact(ctx, props)
	if err != nil {
		return fmt.Errorf("crm: sync lead: %w", err)
	}

	if s.repo != nil && lead.CRMContactID != contactID {
		lead.CRMContactID = contactID
		if err := s.repo.Upsert(ctx, lead); err != nil {
			s.logger.Warn("crm contact id writeback failed", "error", err, "contact_id", contactID)
		}
	}
	return nil
}

// LogCall records a call summary against the contact matching phone,
// creating the contact first when none exists.
func (s *Syncer) LogCall(ctx context.Context, phone, summary string) error {
	contact, err := s.client.SearchByPhone(ctx, phone)
	if errors.Is(err, ErrContactNotFound) {
		contactID, createErr := s.client.UpsertContact(ctx, ContactProperties{Phone: phone, LeadSource: "voice_agent"})
		if createErr != nil {
			return fmt.Errorf("crm: log call: %w", createErr)
		}
		return s.client.LogCall(ctx, contactID, summary)
	}
	if err != nil {
		return fmt.Errorf("crm: log call: %w", err)
	}
	return s.client.LogCall(ctx, contact.ID, summary)
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
