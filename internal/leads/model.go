package leads

import (
	"strings"
	"time"
)

// Lead is a qualified (or in-progress) renovation enquiry.
type Lead struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	Postcode     string    `json:"postcode"`
	ProjectType  string    `json:"project_type"`
	Description  string    `json:"project_description"`
	Timeline     string    `json:"timeline"`
	BudgetRange  string    `json:"budget_range"`
	PropertyType string    `json:"property_type"`
	Score        int       `json:"lead_score"`
	ScoreSet     bool      `json:"-"`
	Tier         string    `json:"lead_tier"`
	Source       string    `json:"source"`
	Channel      string    `json:"channel"`
	CRMContactID string    `json:"crm_contact_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Qualification is the structured payload extracted from a conversation by
// the language model. All leaf fields are optional; merging skips nulls.
type Qualification struct {
	Contact struct {
		Name     *string `json:"name"`
		Email    *string `json:"email"`
		Phone    *string `json:"phone"`
		Address  *string `json:"address"`
		Postcode *string `json:"postcode"`
	} `json:"contact"`
	Project struct {
		Type         *string `json:"type"`
		Description  *string `json:"description"`
		Timeline     *string `json:"timeline"`
		BudgetRange  *string `json:"budget_range"`
		PropertyType *string `json:"property_type"`
	} `json:"project"`
	Assessment struct {
		LeadScore     *int    `json:"lead_score"`
		LeadTier      *string `json:"lead_tier"`
		DecisionMaker *bool   `json:"decision_maker"`
		Urgency       *string `json:"urgency"`
		InServiceArea *bool   `json:"in_service_area"`
	} `json:"qualification"`
	NextSteps struct {
		RecommendedAction *string `json:"recommended_action"`
		SurveyRecommended *bool   `json:"survey_recommended"`
	} `json:"next_steps"`
}

// CreateLeadRequest is the payload for registering a lead directly (web
// form or admin entry) rather than through conversation extraction.
type CreateLeadRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	return nil
}
