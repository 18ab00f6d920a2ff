package leads

import (
	"context"
	"time"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// Aggregator folds qualification payloads into the per-phone lead record.
// Merging is idempotent: applying the same payload twice leaves the same
// stored state as applying it once.
type Aggregator struct {
	repo   Repository
	logger *logging.Logger
}

// NewAggregator wires the aggregator to a lead repository.
func NewAggregator(repo Repository, logger *logging.Logger) *Aggregator {
	if repo == nil {
		panic("leads: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{repo: repo, logger: logger}
}

// MergeQualification applies a qualification payload to the lead for the
// given phone, creating the lead if it does not exist.
//
// Merge rules:
//   - non-nil contact/project fields overwrite, except email: an existing
//     non-empty email is never cleared or replaced by an absent value
//   - score and tier are last-write-wins, no averaging
//   - score is clamped to [0,100] before storage
func (a *Aggregator) MergeQualification(ctx context.Context, phone string, q *Qualification) (*Lead, error) {
	if q == nil {
		return a.repo.GetByPhone(ctx, phone)
	}

	lead, err := a.repo.GetByPhone(ctx, phone)
	if err != nil && err != ErrLeadNotFound {
		return nil, err
	}
	if lead == nil {
		lead = &Lead{Phone: phone, CreatedAt: time.Now().UTC()}
	}

	applyContact(lead, q)
	applyProject(lead, q)
	applyAssessment(lead, q)
	lead.UpdatedAt = time.Now().UTC()

	if err := a.repo.Upsert(ctx, lead); err != nil {
		return nil, err
	}

	a.logger.Info("lead qualification merged",
		"phone", phone,
		"lead_score", lead.Score,
		"lead_tier", lead.Tier,
	)
	return lead, nil
}

func applyContact(lead *Lead, q *Qualification) {
	setString(&lead.Name, q.Contact.Name)
	setString(&lead.Address, q.Contact.Address)
	setString(&lead.Postcode, q.Contact.Postcode)
	if q.Contact.Phone != nil && *q.Contact.Phone != "" {
		lead.Phone = *q.Contact.Phone
	}
	// Never null out a known email with a missing or empty extraction.
	if q.Contact.Email != nil && *q.Contact.Email != "" {
		lead.Email = *q.Contact.Email
	}
}

func applyProject(lead *Lead, q *Qualification) {
	setString(&lead.ProjectType, q.Project.Type)
	setString(&lead.Description, q.Project.Description)
	setString(&lead.Timeline, q.Project.Timeline)
	setString(&lead.BudgetRange, q.Project.BudgetRange)
	setString(&lead.PropertyType, q.Project.PropertyType)
}

func applyAssessment(lead *Lead, q *Qualification) {
	if q.Assessment.LeadScore != nil {
		lead.Score = clampScore(*q.Assessment.LeadScore)
		lead.ScoreSet = true
	}
	if q.Assessment.LeadTier != nil && *q.Assessment.LeadTier != "" {
		lead.Tier = *q.Assessment.LeadTier
	}
}

func setString(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
