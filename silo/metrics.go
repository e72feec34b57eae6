package silo

import (
	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for silo lifecycle events.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	spawned       *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	finished      *prometheus.CounterVec
	live          *prometheus.GaugeVec
	resources     prometheus.Gauge
}

// NewMetrics creates silo collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		spawned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hayride_silos_spawned_total",
			Help: "Total silos started",
		}, []string{"kind"}),
		spawnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hayride_silo_spawn_failures_total",
			Help: "Total silo spawn attempts that failed",
		}, []string{"kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hayride_silos_finished_total",
			Help: "Total silos that reached a terminal state",
		}, []string{"kind", "state"}),
		live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hayride_silos_live",
			Help: "Silos not yet in a terminal state",
		}, []string{"kind"}),
		resources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hayride_silo_resources_live",
			Help: "Resource handles held across all silos",
		}),
	}
	for _, c := range []prometheus.Collector{m.spawned, m.spawnFailures, m.finished, m.live, m.resources} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) started(kind entities.SiloKind) {
	if m == nil {
		return
	}
	m.spawned.WithLabelValues(string(kind)).Inc()
	m.live.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) spawnFailed(kind entities.SiloKind) {
	if m == nil {
		return
	}
	m.spawnFailures.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ended(kind entities.SiloKind, state entities.SiloState) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(string(kind), string(state)).Inc()
	m.live.WithLabelValues(string(kind)).Dec()
}

func (m *Metrics) resourceDelta(n int) {
	if m == nil {
		return
	}
	m.resources.Add(float64(n))
}
