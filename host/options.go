package host

import (
	"io"
	"strings"

	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/tetratelabs/wazero"
)

// executorConfig holds configuration for the Executor.
type executorConfig struct {
	registry         *hostfuncs.HandlerRegistry
	worlds           *contract.Registry
	cache            wazero.CompilationCache
	memoryLimitPages uint32
	maxRequestSize   uint32
	wasi             bool
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		maxRequestSize: hostfuncs.DefaultMaxRequestSize,
		wasi:           true,
	}
}

// Option defines a functional option for configuring the Executor.
type Option func(*executorConfig)

// WithHostFunctions configures the executor with a host function registry.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) Option {
	return func(c *executorConfig) {
		c.registry = registry
	}
}

// WithWorldRegistry sets the worlds components are validated against.
func WithWorldRegistry(worlds *contract.Registry) Option {
	return func(c *executorConfig) {
		c.worlds = worlds
	}
}

// WithCompilationCache shares compiled code between executors.
func WithCompilationCache(cache wazero.CompilationCache) Option {
	return func(c *executorConfig) {
		c.cache = cache
	}
}

// WithMemoryLimitPages caps the linear memory of every instance, in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithMaxRequestSize limits the payload a guest may pass to a host function.
func WithMaxRequestSize(size uint32) Option {
	return func(c *executorConfig) {
		c.maxRequestSize = size
	}
}

// WithWASIEnabled controls whether WASI preview1 is offered to guests.
func WithWASIEnabled(enabled bool) Option {
	return func(c *executorConfig) {
		c.wasi = enabled
	}
}

// InstanceOption configures a single instantiation.
type InstanceOption func(*wazero.ModuleConfig)

// WithStdio connects guest stdout and stderr.
func WithStdio(stdout, stderr io.Writer) InstanceOption {
	return func(mc *wazero.ModuleConfig) {
		if stdout != nil {
			*mc = (*mc).WithStdout(stdout)
		}
		if stderr != nil {
			*mc = (*mc).WithStderr(stderr)
		}
	}
}

// WithArgs sets the guest's argv. The first element is the program name.
func WithArgs(args ...string) InstanceOption {
	return func(mc *wazero.ModuleConfig) {
		*mc = (*mc).WithArgs(args...)
	}
}

// WithEnv adds KEY=VALUE pairs to the guest environment. Malformed
// entries are skipped.
func WithEnv(env ...string) InstanceOption {
	return func(mc *wazero.ModuleConfig) {
		for _, kv := range env {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				continue
			}
			*mc = (*mc).WithEnv(k, v)
		}
	}
}
