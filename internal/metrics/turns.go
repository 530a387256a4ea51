// Package metrics holds the Prometheus collectors for the chat turn pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for turn metrics.
const (
	OutcomeSuccess        = "success"
	OutcomeClassification = "classification_failure"
	OutcomeStrategy       = "strategy_failure"
	OutcomePersistence    = "persistence_failure"
	OutcomeBusy           = "busy"
	OutcomeRejected       = "rejected"
	OutcomeRateLimited    = "rate_limited"
	OutcomeInternal       = "internal_error"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restaurant_agent_turns_total",
		Help: "Chat turns processed by intent and outcome",
	}, []string{"intent", "outcome"})

	intentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restaurant_agent_intent_fallback_total",
		Help: "Classifier outputs outside the intent set that were coerced to info",
	})

	stateReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restaurant_agent_state_read_failures_total",
		Help: "Conversation state reads that failed and were treated as empty",
	})

	transcriptFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restaurant_agent_transcript_append_failures_total",
		Help: "Durable transcript appends that failed by role",
	}, []string{"role"})

	eventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restaurant_agent_event_publish_failures_total",
		Help: "Best-effort turn events that could not be published",
	})

	strategyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "restaurant_agent_strategy_duration_seconds",
		Help:    "Latency of dialogue strategy calls",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"strategy"})
)

// IncTurn counts a finished turn. intent may be empty when the turn failed
// before classification.
func IncTurn(intent, outcome string) {
	if intent == "" {
		intent = "unknown"
	}
	turnsTotal.WithLabelValues(intent, outcome).Inc()
}

func IncIntentFallback() {
	intentFallbacks.Inc()
}

func IncStateReadFailure() {
	stateReadFailures.Inc()
}

func IncTranscriptFailure(role string) {
	transcriptFailures.WithLabelValues(role).Inc()
}

func IncEventPublishFailure() {
	eventPublishFailures.Inc()
}

// ObserveStrategy records how long a strategy call took.
func ObserveStrategy(strategy string, d time.Duration) {
	strategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
}
