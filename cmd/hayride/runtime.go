package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hayride-dev/hayride-go/agent"
	"github.com/hayride-dev/hayride-go/application/launcher"
	"github.com/hayride-dev/hayride-go/backend"
	"github.com/hayride-dev/hayride-go/config"
	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/db"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/hayride-dev/hayride-go/infrastructure/store"
	"github.com/hayride-dev/hayride-go/pipeline"
	"github.com/hayride-dev/hayride-go/rag"
	"github.com/hayride-dev/hayride-go/silo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero"
)

// hostRuntime is the wired process: registry, silo manager and launcher.
type hostRuntime struct {
	config   config.Config
	logger   *slog.Logger
	store    *store.FileStore
	silos    *silo.Manager
	launcher *launcher.Launcher
	cache    wazero.CompilationCache
}

func newHostRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*hostRuntime, error) {
	siloMetrics, err := silo.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	streamMetrics, err := pipeline.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	backendMetrics, err := backend.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	agentMetrics, err := agent.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	worlds, err := contract.NewRegistry(contract.WithDefaultWorlds())
	if err != nil {
		return nil, err
	}

	cacheDir := filepath.Join(cfg.Paths.OutDir, "cache")
	cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
	if err != nil {
		logger.Warn("compilation cache unavailable, compiling in memory", "dir", cacheDir, "error", err)
		cache = wazero.NewCompilationCache()
	}

	st := store.NewFileStore(cfg.Paths.Registry, store.WithLogger(logger))
	launchOpts := []launcher.Option{
		launcher.WithLogger(logger),
		launcher.WithWorlds(worlds),
		launcher.WithCompilationCache(cache),
		launcher.WithMaxOutputSize(cfg.Silo.MaxOutput),
		launcher.WithWASI(cfg.Features.WASI),
	}

	var ai hostfuncs.AIServices
	if cfg.Features.AI {
		// Model backends are provided by embedders; the stock binary starts
		// with an empty pool so guests get a model-not-found error.
		pool, err := backend.NewPool(nil,
			backend.WithLogger(logger),
			backend.WithMaxConcurrent(cfg.Backend.MaxConcurrent),
			backend.WithStreamCapacity(cfg.Pipeline.DefaultCapacity),
			backend.WithMetrics(backendMetrics),
			backend.WithStreamMetrics(streamMetrics),
		)
		if err != nil {
			_ = cache.Close(ctx)
			return nil, err
		}
		retriever := rag.NewStore(
			rag.WithLogger(logger),
			rag.WithDefaultLimit(cfg.Agent.RagLimit),
			rag.WithStreamMetrics(streamMetrics),
		)
		agentOpts := []agent.Option{
			agent.WithMetrics(agentMetrics),
			agent.WithMaxIterations(cfg.Agent.MaxIterations),
			agent.WithToolTimeout(cfg.Agent.ToolTimeout),
			agent.WithModel(cfg.Agent.Model),
			agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
		}
		if cfg.Agent.RagTable != "" {
			agentOpts = append(agentOpts, agent.WithRetriever(retriever, cfg.Agent.RagTable, cfg.Agent.RagLimit))
		}
		launchOpts = append(launchOpts, launcher.WithInference(pool, agentOpts...))
		ai = hostfuncs.AIServices{
			Inference: pool,
			Models:    backend.NewRepository(cfg.Paths.Models),
			Rag:       retriever,
		}
	}

	l := launcher.New(st, launchOpts...)
	silos := silo.NewManager(
		silo.WithLogger(logger),
		silo.WithMetrics(siloMetrics),
		silo.WithThreadResolver(l),
		silo.WithEnvPermit(cfg.Silo.EnvPermit),
		silo.WithMaxSilos(cfg.Silo.MaxSilos),
		silo.WithStopTimeout(cfg.Silo.StopTimeout),
		silo.WithMaxOutputSize(cfg.Silo.MaxOutput),
		silo.WithProcessOptions(hostfuncs.WithShellAllowed(cfg.Silo.AllowShell)),
	)

	opts := []hostfuncs.RegistryOption{
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.MetricsMiddleware(reg),
			hostfuncs.LoggingMiddleware(logger),
		),
	}
	if cfg.Features.Core {
		opts = append(opts, hostfuncs.WithBundle(hostfuncs.CoreBundle(cfg.Version, logger)))
	}
	if cfg.Features.Silo {
		opts = append(opts, hostfuncs.WithBundle(hostfuncs.SiloBundle(silos)))
	}
	if cfg.Features.Wac {
		opts = append(opts, hostfuncs.WithBundle(hostfuncs.WacBundle(l)))
	}
	if cfg.Features.AI {
		ai.Resources = silos
		ai.Agents = l
		opts = append(opts, hostfuncs.WithBundle(hostfuncs.AIBundle(ai)))
	}
	if cfg.Features.DB {
		connector := db.NewConnector(db.WithLogger(logger))
		opts = append(opts, hostfuncs.WithBundle(hostfuncs.DBBundle(connector, silos)))
	}
	registry, err := hostfuncs.NewRegistry(opts...)
	if err != nil {
		_ = cache.Close(ctx)
		return nil, fmt.Errorf("build host functions: %w", err)
	}
	l.Attach(silos, registry)

	return &hostRuntime{config: cfg, logger: logger, store: st, silos: silos, launcher: l, cache: cache}, nil
}

// Close stops every deployment and silo, then releases compiled code.
func (r *hostRuntime) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.Silo.StopTimeout)
	defer cancel()
	return errors.Join(
		r.launcher.Shutdown(ctx),
		r.silos.Shutdown(ctx),
		r.cache.Close(ctx),
	)
}

// ensureDirs creates the on-disk layout the runtime writes into.
func ensureDirs(cfg config.Config) error {
	for _, dir := range []string{cfg.Paths.Registry, cfg.Paths.Models, cfg.Paths.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
