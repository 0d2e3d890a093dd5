// Package telemetry defines prometheus collectors for the scheduling
// core's internal counters. Nothing in this package is ever touched from
// the audio thread, matching the design's rule that the realtime thread
// must never do anything that can block (a std::cout-style print
// included). Within this module only the pool sets a collector
// (ActiveSessions, on session create and release); the others are left
// for the caller to set.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a small bundle of gauges describing one pool's state.
type Metrics struct {
	CatchUpSamples   prometheus.Counter
	MissingBlocks    prometheus.Gauge
	FreeSlots        *prometheus.GaugeVec
	WorkerUtilization prometheus.Gauge
	ActiveSessions   prometheus.Gauge
}

// NewMetrics returns a Metrics bundle under the given namespace without
// registering it; RegisterWith registers its collectors with the
// registerer of the caller's choice (a fresh prometheus.Registry for
// isolated tests, or the default registerer).
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		CatchUpSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "catch_up_samples_total",
			Help: "Samples discarded to catch up with a backlog of completed inference output.",
		}),
		MissingBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "missing_blocks",
			Help: "Number of host blocks currently owed because inference could not keep up.",
		}),
		FreeSlots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "free_slots",
			Help: "Number of free queue slots remaining, by session ID.",
		}, []string{"session_id"}),
		WorkerUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "worker_utilization_ratio",
			Help: "Fraction of pool worker goroutines currently processing a slot.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "Number of sessions currently registered with the pool.",
		}),
	}
	return m
}

// RegisterWith registers every collector in m with the given registerer.
func (m *Metrics) RegisterWith(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.CatchUpSamples, m.MissingBlocks, m.FreeSlots, m.WorkerUtilization, m.ActiveSessions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
