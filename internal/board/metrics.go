package board

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. All recording methods
// are nil-receiver safe so instrumentation stays optional: CLI one-shot
// commands run without it, the watch daemon registers and exposes it.
type Metrics struct {
	mutations        *prometheus.CounterVec
	rollbacks        prometheus.Counter
	refetches        prometheus.Counter
	refetchesDropped prometheus.Counter
	batchAborts      prometheus.Counter
	observerEvents   prometheus.Counter
}

// NewMetrics creates and registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_mutations_total",
			Help: "Mutations settled, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_rollbacks_total",
			Help: "Cache snapshots restored after a failed remote call.",
		}),
		refetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_refetches_total",
			Help: "Background refetches installed into the cache.",
		}),
		refetchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_refetches_dropped_total",
			Help: "Refetch responses dropped because a local write superseded them.",
		}),
		batchAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_batch_aborts_total",
			Help: "Batches stopped early by a failed task.",
		}),
		observerEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_observer_events_total",
			Help: "Invalidation events received from the backend event stream.",
		}),
	}

	reg.MustRegister(
		m.mutations,
		m.rollbacks,
		m.refetches,
		m.refetchesDropped,
		m.batchAborts,
		m.observerEvents,
	)

	return m
}

func (m *Metrics) mutationDone(kind MutationType, outcome string) {
	if m == nil {
		return
	}

	m.mutations.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) rollback() {
	if m == nil {
		return
	}

	m.rollbacks.Inc()
}

func (m *Metrics) refetchDone() {
	if m == nil {
		return
	}

	m.refetches.Inc()
}

func (m *Metrics) refetchDropped() {
	if m == nil {
		return
	}

	m.refetchesDropped.Inc()
}

func (m *Metrics) batchAbort() {
	if m == nil {
		return
	}

	m.batchAborts.Inc()
}

func (m *Metrics) observerEvent() {
	if m == nil {
		return
	}

	m.observerEvents.Inc()
}
