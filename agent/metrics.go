package agent

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus collectors for the agent loop.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs       *prometheus.CounterVec
	toolCalls  *prometheus.CounterVec
	iterations prometheus.Histogram
}

// NewMetrics creates agent collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hayride_agent_runs_total",
			Help: "Finished agent runs by stop reason",
		}, []string{"reason"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hayride_agent_tool_calls_total",
			Help: "Dispatched tool calls by outcome",
		}, []string{"tool", "outcome"}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hayride_agent_iterations",
			Help:    "Model turns per agent run",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.toolCalls, m.iterations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) finished(reason StopReason, iterations int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(reason)).Inc()
	m.iterations.Observe(float64(iterations))
}

func (m *Metrics) toolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}
