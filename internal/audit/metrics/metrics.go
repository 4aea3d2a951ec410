package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit trail.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	EntriesAppended   *prometheus.CounterVec
	IdempotentReplays prometheus.Counter
	AppendConflicts   prometheus.Counter
	AppendDuration    prometheus.Histogram
	Exports           *prometheus.CounterVec
	IntegrityFailures prometheus.Counter
	StreamFailures    prometheus.Counter
}

// New creates a new Metrics instance with all audit metrics registered.
func New() *Metrics {
	return &Metrics{
		EntriesAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parity_audit_entries_appended_total",
			Help: "Total number of audit entries appended, by action",
		}, []string{"action"}),
		IdempotentReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "parity_audit_idempotent_replays_total",
			Help: "Appends answered with an existing entry for the same idempotency key",
		}),
		AppendConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "parity_audit_append_conflicts_total",
			Help: "Appends that lost the chain head compare-and-swap",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "parity_audit_append_duration_seconds",
			Help:    "Duration of audit append operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		Exports: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parity_audit_exports_total",
			Help: "Total number of audit exports, by format",
		}, []string{"format"}),
		IntegrityFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "parity_audit_integrity_failures_total",
			Help: "Chain verifications that found at least one broken entry",
		}),
		StreamFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "parity_audit_stream_failures_total",
			Help: "Committed entries that could not be published to the stream",
		}),
	}
}

func (m *Metrics) IncrementAppended(action string) {
	if m == nil {
		return
	}
	m.EntriesAppended.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementReplay() {
	if m == nil {
		return
	}
	m.IdempotentReplays.Inc()
}

func (m *Metrics) IncrementConflict() {
	if m == nil {
		return
	}
	m.AppendConflicts.Inc()
}

// ObserveAppend records the duration of an append. Call with time.Now() at
// the start of the operation.
func (m *Metrics) ObserveAppend(start time.Time) {
	if m == nil {
		return
	}
	m.AppendDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementExport(format string) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(format).Inc()
}

func (m *Metrics) IncrementIntegrityFailure() {
	if m == nil {
		return
	}
	m.IntegrityFailures.Inc()
}

func (m *Metrics) IncrementStreamFailure() {
	if m == nil {
		return
	}
	m.StreamFailures.Inc()
}
