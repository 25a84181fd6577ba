// Package metrics exposes Prometheus collectors for the orchestration core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_messages_total",
			Help: "Total number of processed conversation messages labeled by state and status",
		},
		[]string{"state", "status"},
	)
	handlerDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_handler_duration_seconds",
			Help:    "Duration of state handlers in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of committed state transitions",
		},
		[]string{"from", "to"},
	)
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_updates_total",
			Help: "Total number of inbound transport updates labeled by kind and status",
		},
		[]string{"kind", "status"},
	)
	updateDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transport_update_duration_seconds",
			Help:    "End-to-end duration of inbound update handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	invalidTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalid_transitions_total",
			Help: "Total number of rejected state transitions",
		},
		[]string{"from", "to"},
	)
	sagaExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_executions_total",
			Help: "Total number of saga executions by outcome",
		},
		[]string{"status"},
	)
	sagaRollbackStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_rollback_steps_total",
			Help: "Total number of compensating undo attempts by outcome",
		},
		[]string{"outcome"},
	)
	availabilityRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "availability_requests_total",
			Help: "Total number of availability broadcasts",
		},
	)
	availabilityResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "availability_responses_total",
			Help: "Total number of provider responses by classification",
		},
		[]string{"status"},
	)
	availabilityAccepted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "availability_accepted_per_request",
			Help:    "Number of providers that accepted per availability request",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
		},
	)
	availabilityWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "availability_wait_seconds",
			Help:    "Time spent waiting for availability responses",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 90, 120},
		},
	)
	publishRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "availability_publish_retries_total",
			Help: "Total number of re-enqueued availability publishes",
		},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
)

// RecordMessage increments message counters and records handler duration.
func RecordMessage(state, status string, duration time.Duration) {
	if state == "" {
		state = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	messagesTotal.WithLabelValues(state, status).Inc()
	handlerDurationSeconds.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordStateTransition tracks committed FSM transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordInvalidTransition tracks transitions rejected by the graph.
func RecordInvalidTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	invalidTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordSagaExecution tracks a saga run by outcome ("ok" or "rolled_back").
func RecordSagaExecution(status string) {
	if status == "" {
		status = "unknown"
	}

	sagaExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordSagaRollbackStep tracks one compensating undo attempt.
func RecordSagaRollbackStep(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}

	sagaRollbackStepsTotal.WithLabelValues(outcome).Inc()
}

// RecordAvailabilityRequest tracks one availability broadcast.
func RecordAvailabilityRequest() {
	availabilityRequestsTotal.Inc()
}

// RecordAvailabilityResponse tracks one classified provider response.
func RecordAvailabilityResponse(status string) {
	if status == "" {
		status = "unknown"
	}

	availabilityResponsesTotal.WithLabelValues(status).Inc()
}

// RecordAvailabilityResult tracks the outcome of one coordination window.
func RecordAvailabilityResult(accepted int, waited time.Duration) {
	availabilityAccepted.Observe(float64(accepted))
	availabilityWaitSeconds.Observe(waited.Seconds())
}

// RecordPublishRetry tracks one re-enqueued publish attempt.
func RecordPublishRetry() {
	publishRetriesTotal.Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// RecordUpdate counts one inbound transport update and its handling time.
func RecordUpdate(kind, status string, duration time.Duration) {
	updatesTotal.WithLabelValues(kind, status).Inc()
	updateDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}
