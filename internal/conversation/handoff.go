package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

// HandoffTrigger is a fast-path keyword category that forces escalation.
type HandoffTrigger string

const (
	TriggerNone            HandoffTrigger = ""
	TriggerExplicitRequest HandoffTrigger = "explicit_request"
	TriggerComplaint       HandoffTrigger = "complaint"
	TriggerFrustration     HandoffTrigger = "frustration"
)

type triggerRule struct {
	trigger  HandoffTrigger
	keywords []string
}

// TriggerDetector holds the ordered fast-path keyword sets. Explicit
// human requests outrank complaint/legal threats, which outrank general
// frustration; the first matching set wins regardless of what else is in
// the message.
type TriggerDetector struct {
	rules       []triggerRule
	amountRe    *regexp.Regexp
	threshold   float64
}

// highValueThreshold is the minimum detected project value (in pounds)
// that forces a handoff on its own.
const highValueThreshold = 200_000

// NewTriggerDetector builds the detector with its fixed keyword tables.
func NewTriggerDetector() *TriggerDetector {
	return &TriggerDetector{
		rules: []triggerRule{
			{
				trigger: TriggerExplicitRequest,
				keywords: []string{
					"speak to ross", "talk to ross", "speak to a human",
					"talk to a human", "speak to someone", "talk to someone",
					"real person", "speak to a person", "human please",
					"call me back", "can someone call", "speak to the owner",
					"talk to the builder",
				},
			},
			{
				trigger: TriggerComplaint,
				keywords: []string{
					"complaint", "complain", "furious", "disgusted", "appalled",
					"sue", "lawyer", "solicitor", "legal action",
					"trading standards", "report you", "unacceptable",
				},
			},
			{
				trigger: TriggerFrustration,
				keywords: []string{
					"frustrated", "annoying", "ridiculous", "waste of time",
					"not helpful", "useless", "going in circles",
					"not listening", "getting nowhere",
				},
			},
		},
		amountRe:  regexp.MustCompile(`(?i)[£$€]?\s?(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s?(k\b|000\b)?`),
		threshold: highValueThreshold,
	}
}

// DetectTrigger returns the highest-priority matching trigger category, or
// TriggerNone when no keyword matches.
func (d *TriggerDetector) DetectTrigger(message string) HandoffTrigger {
	lower := strings.ToLower(message)
	for _, rule := range d.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.trigger
			}
		}
	}
	return TriggerNone
}

// DetectHighValue extracts the first monetary amount from the message and
// returns it when it meets the high-value threshold. A trailing "k" or
// "000" multiplies the base figure by a thousand; comma grouping is
// stripped. Returns (0, false) when nothing qualifying is found.
func (d *TriggerDetector) DetectHighValue(message string) (float64, bool) {
	for _, m := range d.amountRe.FindAllStringSubmatch(message, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if m[2] != "" {
			amount *= 1000
		}
		if amount >= d.threshold {
			return amount, true
		}
	}
	return 0, false
}
