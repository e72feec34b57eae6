package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/hayride-dev/hayride-go/hostfuncs"
	wazeroadapter "github.com/hayride-dev/hayride-go/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Target receives calls a guest makes into a bound import module.
type Target interface {
	Call(ctx context.Context, fn string, payload []byte) ([]byte, error)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, fn string, payload []byte) ([]byte, error)

// Call implements Target.
func (f TargetFunc) Call(ctx context.Context, fn string, payload []byte) ([]byte, error) {
	return f(ctx, fn, payload)
}

// Executor owns a wazero runtime and the host modules linked into it.
//
// Host module names share one namespace per runtime, so each import module
// is served by exactly one provider for the executor's lifetime: either the
// host registry or a Target bound with Bind.
type Executor struct {
	runtime wazero.Runtime
	loader  *Loader
	config  executorConfig

	mu    sync.Mutex
	bound map[string]struct{}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	// Default registry if not provided
	if cfg.registry == nil {
		reg, err := hostfuncs.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		cfg.registry = reg
	}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.memoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.memoryLimitPages)
	}
	if cfg.cache != nil {
		rc = rc.WithCompilationCache(cfg.cache)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rc)

	if cfg.wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to instantiate wasi: %w", err)
		}
	}

	loaderOpts := []LoaderOption{WithCapabilities(cfg.registry), WithWASI(cfg.wasi)}
	if cfg.worlds != nil {
		loaderOpts = append(loaderOpts, WithWorlds(cfg.worlds))
	}

	return &Executor{
		runtime: rt,
		loader:  NewLoader(rt, loaderOpts...),
		config:  cfg,
		bound:   make(map[string]struct{}),
	}, nil
}

// Loader returns the loader compiling into this executor's runtime.
func (e *Executor) Loader() *Loader {
	return e.loader
}

// Registry returns the host function registry.
func (e *Executor) Registry() *hostfuncs.HandlerRegistry {
	return e.config.registry
}

// Bind serves the import module named module with target. Components
// instantiated afterwards that import module call into target.
func (e *Executor) Bind(ctx context.Context, module string, funcs []string, target Target) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.bound[module]; exists {
		return fmt.Errorf("import module %q already bound", module)
	}
	if err := wazeroadapter.RegisterModule(ctx, e.runtime, module, funcs, target.Call,
		wazeroadapter.WithMaxRequestSize(e.config.maxRequestSize)); err != nil {
		return err
	}
	e.bound[module] = struct{}{}
	return nil
}

// Instantiate links c's imports and creates a running instance called name.
// Imports not already bound are served from the host registry.
func (e *Executor) Instantiate(ctx context.Context, c *Component, name string, opts ...InstanceOption) (*Instance, error) {
	if err := e.linkImports(ctx, c); err != nil {
		return nil, err
	}

	mc := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
	for _, opt := range opts {
		opt(&mc)
	}

	mod, err := e.runtime.InstantiateModule(ctx, c.compiled, mc)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate %s: %w", c.Name, err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	return &Instance{module: mod, component: c}, nil
}

func (e *Executor) linkImports(ctx context.Context, c *Component) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, imp := range c.Imports {
		if imp.WASI {
			continue
		}
		if _, ok := e.bound[imp.Module]; ok {
			continue
		}
		ref, ok := e.config.registry.Resolve(imp.Interface)
		if !ok {
			return fmt.Errorf("%s: no provider for import %s", c.Name, imp.Module)
		}
		if err := wazeroadapter.RegisterInterface(ctx, e.runtime, e.config.registry, imp.Module, ref,
			wazeroadapter.WithMaxRequestSize(e.config.maxRequestSize)); err != nil {
			return err
		}
		e.bound[imp.Module] = struct{}{}
	}
	return nil
}

// Close releases resources held by the executor, including every instance.
func (e *Executor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
