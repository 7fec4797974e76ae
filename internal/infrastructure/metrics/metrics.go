package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/procure-approval/internal/domain/event"
)

// Metrics provides observability for the approval workflow.
type Metrics struct {
	// Decision attempts by seat and result
	Decisions *prometheus.CounterVec

	// Time spent holding the requisition lock through commit
	DecisionLatency *prometheus.HistogramVec

	// Published domain events by type
	Events *prometheus.CounterVec

	// Current requisitions by status, refreshed by the status worker
	Requisitions *prometheus.GaugeVec
}

// New creates the workflow metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "procure_decisions_total",
			Help: "Total approval decisions by seat and result",
		}, []string{"seat", "result"}), // result: ok, noop, conflict, forbidden, not_found, invalid, error

		DecisionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procure_decision_duration_seconds",
			Help:    "Duration of a decision including load and conditional save",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"seat"}),

		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "procure_events_total",
			Help: "Total requisition domain events published by type",
		}, []string{"type"}),

		Requisitions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "procure_requisitions",
			Help: "Number of stored requisitions by status",
		}, []string{"status"}),
	}
}

// ObserveDecision records one decision attempt.
func (m *Metrics) ObserveDecision(seat, result string, d time.Duration) {
	if m != nil {
		m.Decisions.WithLabelValues(seat, result).Inc()
		m.DecisionLatency.WithLabelValues(seat).Observe(d.Seconds())
	}
}

// HandleEvent counts a published event. It matches the dispatcher handler signature.
func (m *Metrics) HandleEvent(_ context.Context, evt *event.Event) error {
	if m != nil {
		m.Events.WithLabelValues(evt.Type.String()).Inc()
	}
	return nil
}

// SetRequisitions sets the gauge for one status.
func (m *Metrics) SetRequisitions(status string, n int) {
	if m != nil {
		m.Requisitions.WithLabelValues(status).Set(float64(n))
	}
}
