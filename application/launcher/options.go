package launcher

import (
	"log/slog"

	"github.com/hayride-dev/hayride-go/agent"
	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/tetratelabs/wazero"
)

type launcherConfig struct {
	logger           *slog.Logger
	worlds           *contract.Registry
	cache            wazero.CompilationCache
	inference        hostfuncs.InferenceService
	tools            *agent.ToolRegistry
	agentOpts        []agent.Option
	maxOutput        int
	memoryLimitPages uint32
	wasi             bool
}

func defaultLauncherConfig() launcherConfig {
	return launcherConfig{
		logger:    slog.Default(),
		maxOutput: hostfuncs.DefaultMaxOutputSize,
		wasi:      true,
	}
}

// Option configures a Launcher.
type Option func(*launcherConfig)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *launcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWorlds sets the worlds components are validated against.
func WithWorlds(worlds *contract.Registry) Option {
	return func(c *launcherConfig) {
		c.worlds = worlds
	}
}

// WithCompilationCache shares compiled code between launches.
func WithCompilationCache(cache wazero.CompilationCache) Option {
	return func(c *launcherConfig) {
		c.cache = cache
	}
}

// WithInference enables agent runs. opts apply to every orchestrator the
// launcher builds.
func WithInference(svc hostfuncs.InferenceService, opts ...agent.Option) Option {
	return func(c *launcherConfig) {
		c.inference = svc
		c.agentOpts = append(c.agentOpts, opts...)
	}
}

// WithHostTools offers host-native tools to every agent run, next to the
// tools of launched components.
func WithHostTools(tools *agent.ToolRegistry) Option {
	return func(c *launcherConfig) {
		c.tools = tools
	}
}

// WithMaxOutputSize caps the stdout and stderr captured per silo.
func WithMaxOutputSize(n int) Option {
	return func(c *launcherConfig) {
		if n > 0 {
			c.maxOutput = n
		}
	}
}

// WithMemoryLimitPages caps guest linear memory, in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *launcherConfig) {
		c.memoryLimitPages = pages
	}
}

// WithWASI controls whether WASI preview1 is offered to guests.
func WithWASI(enabled bool) Option {
	return func(c *launcherConfig) {
		c.wasi = enabled
	}
}
