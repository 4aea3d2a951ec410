package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for pay-equity recomputes and comparisons.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Recomputes         *prometheus.CounterVec
	RecomputeDuration  prometheus.Histogram
	RecomputesRejected prometheus.Counter
	GroupsByStatus     *prometheus.GaugeVec
	ExcludedEmployees  *prometheus.CounterVec
	Comparisons        *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Recomputes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parity_payequity_recomputes_total",
			Help: "Total number of pay group recomputes, by outcome",
		}, []string{"outcome"}),
		RecomputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "parity_payequity_recompute_duration_seconds",
			Help:    "Duration of pay group recomputes including the snapshot swap",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		RecomputesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "parity_payequity_recomputes_rejected_total",
			Help: "Recomputes rejected because another recompute held the company lease",
		}),
		GroupsByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parity_payequity_groups",
			Help: "Pay groups in the latest snapshot, by status",
		}, []string{"status"}),
		ExcludedEmployees: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parity_payequity_excluded_employees_total",
			Help: "Employee records skipped by recomputes, by reason",
		}, []string{"reason"}),
		Comparisons: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parity_payequity_comparisons_total",
			Help: "Employee comparisons served, by confidence",
		}, []string{"confidence"}),
	}
}

func (m *Metrics) IncrementRecompute(outcome string) {
	if m == nil {
		return
	}
	m.Recomputes.WithLabelValues(outcome).Inc()
}

// ObserveRecompute records the duration of a recompute. Call with time.Now()
// at the start of the operation.
func (m *Metrics) ObserveRecompute(start time.Time) {
	if m == nil {
		return
	}
	m.RecomputeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementRejected() {
	if m == nil {
		return
	}
	m.RecomputesRejected.Inc()
}

// SetGroups publishes the status counts of the latest snapshot. Gauges are
// process-wide, so with several companies they reflect the last recompute.
func (m *Metrics) SetGroups(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.GroupsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) IncrementExcluded(reason string) {
	if m == nil {
		return
	}
	m.ExcludedEmployees.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementComparison(lowConfidence bool) {
	if m == nil {
		return
	}
	confidence := "normal"
	if lowConfidence {
		confidence = "low"
	}
	m.Comparisons.WithLabelValues(confidence).Inc()
}
