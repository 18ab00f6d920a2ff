package conversation

import (
	"strconv"
	"strings"
	"time"
)

// Channel identifies how the customer is talking to us.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPhone    Channel = "phone"
)

// ParseChannel maps a wire string onto a known channel, defaulting to WhatsApp.
func ParseChannel(s string) Channel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ChannelPhone):
		return ChannelPhone
	default:
		return ChannelWhatsApp
	}
}

// Sentiment is the coarse per-message classification bucket.
type Sentiment string

const (
	SentimentPriceShocked Sentiment = "price_shocked"
	SentimentFrustrated   Sentiment = "frustrated"
	SentimentAngry        Sentiment = "angry"
	SentimentPositive     Sentiment = "positive"
	SentimentConcerned    Sentiment = "concerned"
	SentimentNeutral      Sentiment = "neutral"
)

// LeadTier is the coarse sales-readiness bucket.
type LeadTier string

const (
	TierHot         LeadTier = "hot"
	TierWarm        LeadTier = "warm"
	TierCold        LeadTier = "cold"
	TierUnqualified LeadTier = "unqualified"
)

// ParseLeadTier maps a wire string onto a known tier; unknown values come
// back as empty so callers can tell "unset" from "unqualified".
func ParseLeadTier(s string) LeadTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TierHot):
		return TierHot
	case string(TierWarm):
		return TierWarm
	case string(TierCold):
		return TierCold
	case string(TierUnqualified):
		return TierUnqualified
	default:
		return ""
	}
}

// HandoffReason explains why a conversation is being routed to a human.
type HandoffReason string

const (
	ReasonNone              HandoffReason = "none"
	ReasonExplicitRequest   HandoffReason = "explicit_request"
	ReasonComplaint         HandoffReason = "complaint"
	ReasonNegativeSentiment HandoffReason = "negative_sentiment"
	ReasonHighValue         HandoffReason = "high_value"
	ReasonComplexPlanning   HandoffReason = "complex_planning"
	ReasonCompetitorMention HandoffReason = "competitor_mention"
)

// Urgency ranks how quickly a human needs to pick up a handoff.
type Urgency string

const (
	UrgencyImmediate     Urgency = "immediate"
	UrgencySameDay       Urgency = "same_day"
	UrgencyNextAvailable Urgency = "next_available"
)

// ConversationContext is everything we know about one phone number on one
// channel. It lives in a Redis hash keyed by the cleaned phone number and
// expires with the conversation TTL.
type ConversationContext struct {
	Phone              string
	Channel            Channel
	Name               string
	Email              string
	Address            string
	Postcode           string
	ProjectType        string
	ProjectDescription string
	Timeline           string
	BudgetRange        string
	PropertyType       string
	MessagesCount      int
	LastMessageAt      time.Time
	Sentiment          Sentiment
	Status             string
	LeadScore          int
	LeadScoreSet       bool
	LeadTier           LeadTier
	CRMContactID       string
	SurveyBooked       bool
	SurveyDate         string
	SurveyTime         string
	CalendarEventID    string
}

// ToMap flattens the context into the string map stored in Redis. Zero
// values are omitted so partial updates never clobber existing fields.
func (c *ConversationContext) ToMap() map[string]string {
	out := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put("phone", c.Phone)
	put("channel", string(c.Channel))
	put("name", c.Name)
	put("email", c.Email)
	put("address", c.Address)
	put("postcode", c.Postcode)
	put("project_type", c.ProjectType)
	put("project_description", c.ProjectDescription)
	put("timeline", c.Timeline)
	put("budget_range", c.BudgetRange)
	put("property_type", c.PropertyType)
	put("sentiment", string(c.Sentiment))
	put("status", c.Status)
	put("lead_tier", string(c.LeadTier))
	put("hubspot_contact_id", c.CRMContactID)
	put("survey_date", c.SurveyDate)
	put("survey_time", c.SurveyTime)
	put("calendar_event_id", c.CalendarEventID)
	if c.MessagesCount > 0 {
		out["messages_count"] = strconv.Itoa(c.MessagesCount)
	}
	if !c.LastMessageAt.IsZero() {
		out["last_message_at"] = c.LastMessageAt.UTC().Format(time.RFC3339)
	}
	if c.LeadScoreSet {
		out["lead_score"] = strconv.Itoa(c.LeadScore)
	}
	if c.SurveyBooked {
		out["survey_booked"] = "true"
	}
	return out
}

// ContextFromMap rebuilds a typed context from the Redis hash wire format.
// Unknown or malformed fields degrade to their zero values.
func ContextFromMap(m map[string]string) ConversationContext {
	c := ConversationContext{
		Phone:              m["phone"],
		Name:               m["name"],
		Email:              m["email"],
		Address:            m["address"],
		Postcode:           m["postcode"],
		ProjectType:        m["project_type"],
		ProjectDescription: m["project_description"],
		Timeline:           m["timeline"],
		BudgetRange:        m["budget_range"],
		PropertyType:       m["property_type"],
		Status:             m["status"],
		CRMContactID:       m["hubspot_contact_id"],
		SurveyDate:         m["survey_date"],
		SurveyTime:         m["survey_time"],
		CalendarEventID:    m["calendar_event_id"],
	}
	if v := m["channel"]; v != "" {
		c.Channel = ParseChannel(v)
	}
	if v := m["sentiment"]; v != "" {
		c.Sentiment = Sentiment(v)
	}
	c.LeadTier = ParseLeadTier(m["lead_tier"])
	if v := m["messages_count"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MessagesCount = n
		}
	}
	if v := m["last_message_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.LastMessageAt = t
		}
	}
	if v := m["lead_score"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LeadScore = n
			c.LeadScoreSet = true
		}
	}
	if v := m["survey_booked"]; v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SurveyBooked = b
		}
	}
	return c
}
