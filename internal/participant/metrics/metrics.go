// Package metrics provides observability for the participant lifecycle
// module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks lifecycle operation counts and durations plus the live
// intake counter mirror.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	MoveDuration  prometheus.Histogram
	IntakeRecords prometheus.Gauge
}

// New registers all participant metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on a caller-supplied registry. Tests use a fresh
// registry per manager to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterd_lifecycle_operations_total",
			Help: "Total lifecycle operations by name",
		}, []string{"op"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterd_lifecycle_failures_total",
			Help: "Total failed lifecycle operations by name",
		}, []string{"op"}),
		MoveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rosterd_move_duration_seconds",
			Help:    "Duration of move-to-permanent transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		IntakeRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rosterd_intake_records",
			Help: "Current number of live intake records",
		}),
	}
}

// ObserveOp records one completed operation.
func (m *Metrics) ObserveOp(op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op).Inc()
	if err != nil {
		m.Failures.WithLabelValues(op).Inc()
	}
}

// ObserveMove records the duration of a move transaction. Call with
// time.Now() taken at the start.
func (m *Metrics) ObserveMove(start time.Time) {
	if m == nil {
		return
	}
	m.MoveDuration.Observe(time.Since(start).Seconds())
}

// SetIntakeRecords mirrors the statistics counter.
func (m *Metrics) SetIntakeRecords(n int64) {
	if m == nil {
		return
	}
	m.IntakeRecords.Set(float64(n))
}
