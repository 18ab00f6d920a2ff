package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestConversationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)
	m.ObserveMessage("whatsapp", "replied")
	m.ObserveHandoff("complaint", "immediate")
	m.ObserveSentiment("angry")
	m.ObserveFlag()
	m.ObservePipelineLatency("whatsapp", 0.5)
	m.ObserveLLMLatency("reply", 1.2)
}

func TestConversationMetricsNilSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveMessage("phone", "handoff")
	m.ObserveHandoff("high_value", "same_day")
	m.ObserveSentiment("neutral")
	m.ObserveFlag()
	m.ObservePipelineLatency("phone", 0.1)
	m.ObserveLLMLatency("qualification", 0.1)
}
