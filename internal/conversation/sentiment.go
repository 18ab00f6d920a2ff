package conversation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

var sentimentTracer = otel.Tracer("voiceagent/sentiment-classifier")

// SentimentResult is the per-message classification. Ephemeral; feeds a
// review flag when RequiresReview is set.
type SentimentResult struct {
	Sentiment      Sentiment
	Confidence     float64
	Signals        []string
	RequiresReview bool
}

type sentimentRule struct {
	keywords []string
	result   SentimentResult
}

// SentimentClassifier maps a message onto one of six sentiment buckets by
// case-insensitive keyword matching. Rules are evaluated in order and the
// first match wins, so list order is part of the contract: price shock
// outranks frustration outranks anger, positive outranks concern.
type SentimentClassifier struct {
	logger *logging.Logger
	rules  []sentimentRule
}

// NewSentimentClassifier builds the classifier with its fixed rule table.
func NewSentimentClassifier(logger *logging.Logger) *SentimentClassifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &SentimentClassifier{
		logger: logger,
		rules: []sentimentRule{
			{
				keywords: []string{
					"how much?!", "that much", "that's expensive", "can't afford",
					"out of my budget", "way more than", "wasn't expecting",
					"seriously?", "you're joking",
				},
				result: SentimentResult{
					Sentiment:      SentimentPriceShocked,
					Confidence:     0.8,
					Signals:        []string{"price_reaction_detected"},
					RequiresReview: true,
				},
			},
			{
				keywords: []string{
					"frustrated", "annoying", "ridiculous", "waste of time",
					"not helpful", "useless", "terrible", "awful", "pathetic",
				},
				result: SentimentResult{
					Sentiment:      SentimentFrustrated,
					Confidence:     0.85,
					Signals:        []string{"frustration_keywords"},
					RequiresReview: true,
				},
			},
			{
				keywords: []string{
					"furious", "disgusted", "appalled", "sue", "lawyer", "report you",
				},
				result: SentimentResult{
					Sentiment:      SentimentAngry,
					Confidence:     0.9,
					Signals:        []string{"anger_escalation"},
					RequiresReview: true,
				},
			},
			{
				keywords: []string{
					"thank you", "thanks", "great", "excellent", "perfect",
					"brilliant", "wonderful", "amazing", "love it", "sounds good",
				},
				result: SentimentResult{
					Sentiment:  SentimentPositive,
					Confidence: 0.75,
					Signals:    []string{"positive_language"},
				},
			},
			{
				keywords: []string{
					"worried", "concerned", "not sure", "hesitant", "nervous", "uncertain",
				},
				result: SentimentResult{
					Sentiment:  SentimentConcerned,
					Confidence: 0.7,
					Signals:    []string{"concern_detected"},
				},
			},
		},
	}
}

// Classify returns exactly one sentiment bucket for the message. Messages
// matching no rule are neutral with an empty signal set.
func (c *SentimentClassifier) Classify(ctx context.Context, message string) SentimentResult {
	_, span := sentimentTracer.Start(ctx, "sentiment.classify")
	defer span.End()

	lower := strings.ToLower(message)
	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				res := rule.result
				res.Signals = append([]string(nil), rule.result.Signals...)
				span.SetAttributes(
					attribute.String("sentiment.category", string(res.Sentiment)),
					attribute.Float64("sentiment.confidence", res.Confidence),
				)
				if res.RequiresReview {
					c.logger.Info("sentiment flagged for review",
						"sentiment", res.Sentiment,
						"confidence", res.Confidence,
						"keyword", kw,
					)
				}
				return res
			}
		}
	}

	return SentimentResult{
		Sentiment:  SentimentNeutral,
		Confidence: 0.5,
		Signals:    []string{},
	}
}
