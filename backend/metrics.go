package backend

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus collectors for the admission pool.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	queued   *prometheus.GaugeVec
	inFlight *prometheus.GaugeVec
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates pool collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hayride_backend_queue_depth",
			Help: "Requests waiting for a backend slot",
		}, []string{"backend"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hayride_backend_in_flight",
			Help: "Requests currently running on a backend",
		}, []string{"backend"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hayride_backend_requests_total",
			Help: "Completed backend requests by outcome",
		}, []string{"backend", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hayride_backend_request_duration_seconds",
			Help:    "Backend request duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"backend"}),
	}
	for _, c := range []prometheus.Collector{m.queued, m.inFlight, m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) waiting(backend string, delta float64) {
	if m == nil {
		return
	}
	m.queued.WithLabelValues(backend).Add(delta)
}

func (m *Metrics) running(backend string, delta float64) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(backend).Add(delta)
}

func (m *Metrics) done(backend, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(backend, outcome).Inc()
	m.duration.WithLabelValues(backend).Observe(seconds)
}
