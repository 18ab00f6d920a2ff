package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the message pipeline.
type ConversationMetrics struct {
	messagesTotal   *prometheus.CounterVec
	handoffsTotal   *prometheus.CounterVec
	sentimentTotal  *prometheus.CounterVec
	flagsTotal      prometheus.Counter
	pipelineLatency *prometheus.HistogramVec
	llmLatency      *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Total inbound messages processed",
		}, []string{"channel", "outcome"}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "handoffs_total",
			Help:      "Total human handoff decisions",
		}, []string{"reason", "urgency"}),
		sentimentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "sentiment_total",
			Help:      "Messages classified per sentiment bucket",
		}, []string{"sentiment"}),
		flagsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "review_flags_total",
			Help:      "Review flags raised",
		}),
		pipelineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "pipeline_latency_seconds",
			Help:      "End-to-end latency of inbound message processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voiceagent",
			Subsystem: "conversation",
			Name:      "llm_latency_seconds",
			Help:      "Latency of model calls by operation",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.messagesTotal,
		m.handoffsTotal,
		m.sentimentTotal,
		m.flagsTotal,
		m.pipelineLatency,
		m.llmLatency,
	)
	return m
}

func (m *ConversationMetrics) ObserveMessage(channel, outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *ConversationMetrics) ObserveHandoff(reason, urgency string) {
	if m == nil {
		return
	}
	m.handoffsTotal.WithLabelValues(reason, urgency).Inc()
}

func (m *ConversationMetrics) ObserveSentiment(sentiment string) {
	if m == nil {
		return
	}
	m.sentimentTotal.WithLabelValues(sentiment).Inc()
}

func (m *ConversationMetrics) ObserveFlag() {
	if m == nil {
		return
	}
	m.flagsTotal.Inc()
}

func (m *ConversationMetrics) ObservePipelineLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.pipelineLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *ConversationMetrics) ObserveLLMLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(operation).Observe(seconds)
}
