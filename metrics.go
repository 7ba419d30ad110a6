package singleton

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ------------------------------------------------------------
// METRICS

// Metrics counts lock protocol events. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Acquires *prometheus.CounterVec // Acquire outcomes, labelled by resource and outcome
	Releases *prometheus.CounterVec // Release results, labelled by resource and result
	Reclaims *prometheus.CounterVec // Reclaim actions, labelled by resource and action
	Retries  *prometheus.CounterVec // Retried store calls, labelled by operation
}

// NewMetrics constructs unregistered lock metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "singleton_acquire_total",
			Help: "Lock acquisition attempts by outcome",
		}, []string{"resource", "outcome"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "singleton_release_total",
			Help: "Lock releases by result",
		}, []string{"resource", "result"}),
		Reclaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "singleton_reclaim_total",
			Help: "Stale lock reclaim checks by action taken",
		}, []string{"resource", "action"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "singleton_store_retries_total",
			Help: "Store operations retried after a failure",
		}, []string{"op"}),
	}
}

// Register registers the metrics on reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.Acquires, m.Releases, m.Reclaims, m.Retries)
}

func (m *Metrics) acquire(resource string, o AcquireOutcome) {
	if m != nil {
		m.Acquires.WithLabelValues(resource, o.String()).Inc()
	}
}

func (m *Metrics) release(resource, result string) {
	if m != nil {
		m.Releases.WithLabelValues(resource, result).Inc()
	}
}

func (m *Metrics) reclaim(resource, action string) {
	if m != nil {
		m.Reclaims.WithLabelValues(resource, action).Inc()
	}
}

func (m *Metrics) retry(op string) {
	if m != nil {
		m.Retries.WithLabelValues(op).Inc()
	}
}
