package silo

import (
	"log/slog"
	"time"

	"github.com/hayride-dev/hayride-go/hostfuncs"
)

// DefaultStopTimeout bounds how long teardown waits for a sub-silo.
const DefaultStopTimeout = 5 * time.Second

type managerConfig struct {
	logger      *slog.Logger
	metrics     *Metrics
	threads     ThreadResolver
	envPermit   hostfuncs.EnvPermit
	processOpts []hostfuncs.ProcessOption
	stopTimeout time.Duration
	maxSilos    int
	maxOutput   int
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		logger:      slog.Default(),
		stopTimeout: DefaultStopTimeout,
		maxOutput:   hostfuncs.DefaultMaxOutputSize,
	}
}

// Option configures a Manager.
type Option func(*managerConfig)

// WithLogger sets the logger for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records lifecycle events.
func WithMetrics(m *Metrics) Option {
	return func(c *managerConfig) {
		c.metrics = m
	}
}

// WithThreadResolver enables guest-requested thread silos.
func WithThreadResolver(r ThreadResolver) Option {
	return func(c *managerConfig) {
		c.threads = r
	}
}

// WithEnvPermit grants capability-gated environment variables to process silos.
func WithEnvPermit(permit hostfuncs.EnvPermit) Option {
	return func(c *managerConfig) {
		c.envPermit = permit
	}
}

// WithProcessOptions applies opts to every process silo.
func WithProcessOptions(opts ...hostfuncs.ProcessOption) Option {
	return func(c *managerConfig) {
		c.processOpts = append(c.processOpts, opts...)
	}
}

// WithMaxSilos caps the number of silos not yet in a terminal state.
// Zero means no limit.
func WithMaxSilos(n int) Option {
	return func(c *managerConfig) {
		c.maxSilos = n
	}
}

// WithStopTimeout bounds how long teardown waits for each sub-silo.
func WithStopTimeout(d time.Duration) Option {
	return func(c *managerConfig) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// WithMaxOutputSize bounds captured stdout and stderr per silo.
func WithMaxOutputSize(n int) Option {
	return func(c *managerConfig) {
		if n > 0 {
			c.maxOutput = n
		}
	}
}
