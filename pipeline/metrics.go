package pipeline

import (
	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for stream lifecycle events.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	openedTotal *prometheus.CounterVec
	closedTotal *prometheus.CounterVec
	live        *prometheus.GaugeVec
}

// NewMetrics creates stream collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		openedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hayride_streams_opened_total",
			Help: "Total streams opened",
		}, []string{"kind"}),
		closedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hayride_streams_closed_total",
			Help: "Total streams closed, by final state",
		}, []string{"kind", "state"}),
		live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hayride_streams_live",
			Help: "Streams currently open",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{m.openedTotal, m.closedTotal, m.live} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) opened(kind entities.StreamKind) {
	if m == nil {
		return
	}
	m.openedTotal.WithLabelValues(string(kind)).Inc()
	m.live.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) closed(kind entities.StreamKind, state entities.StreamState) {
	if m == nil {
		return
	}
	m.closedTotal.WithLabelValues(string(kind), string(state)).Inc()
	m.live.WithLabelValues(string(kind)).Dec()
}
