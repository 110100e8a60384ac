package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// TriageDecisions counts routing decisions by verdict and next stage.
	// classification is "none" when detection found no email.
	TriageDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_decisions_total",
			Help: "Total number of routing decisions produced by the triage router",
		},
		[]string{"classification", "next"},
	)

	// TriageFailures counts aborted routing passes by failing step.
	TriageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_failures_total",
			Help: "Total number of routing passes aborted by an error",
		},
		[]string{"step"},
	)

	// InferenceDuration tracks structured inference calls (seconds).
	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_call_duration_seconds",
			Help:    "Structured inference call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"step", "status"},
	)

	// ToolCalls counts response stage tool invocations.
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_tool_calls_total",
			Help: "Total number of tool invocations by the response agent",
		},
		[]string{"tool", "status"},
	)
)

// RecordDecision increments the decision counter.
func RecordDecision(classification, next string) {
	if classification == "" {
		classification = "none"
	}
	TriageDecisions.WithLabelValues(classification, next).Inc()
}

// RecordFailure increments the failure counter for a router step.
func RecordFailure(step string) {
	TriageFailures.WithLabelValues(step).Inc()
}

// RecordInference observes one inference call.
func RecordInference(step string, err error, d time.Duration) {
	InferenceDuration.WithLabelValues(step, statusOf(err)).Observe(d.Seconds())
}

// RecordToolCall increments the tool counter.
func RecordToolCall(tool string, err error) {
	ToolCalls.WithLabelValues(tool, statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
