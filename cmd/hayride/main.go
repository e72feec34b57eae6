// Command hayride hosts WebAssembly components in silos.
//
// Usage:
//
//	hayride [flags] <command> [args]
//
// Commands:
//
//	run [-call fn] [-input data] [-listen addr] <ref>...   launch or serve a composition
//	compose <document.yaml>                                print the instantiation plan
//	install [-manifest file] <ref> <wasm>                  copy a component into the registry
//	uninstall <ref>                                        remove an installed version
//	list                                                   list installed components
//	version                                                print the runtime version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hayride-dev/hayride-go/config"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	hlog "github.com/hayride-dev/hayride-go/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type globalFlags struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func run(args []string, stdout, stderr io.Writer) int {
	var g globalFlags
	fs := flag.NewFlagSet("hayride", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "config file (default $HAYRIDE_CONFIG or ~/.hayride/config.toml)")
	fs.StringVar(&g.logLevel, "log-level", "", "override logging.level")
	fs.StringVar(&g.metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: hayride [flags] run|compose|install|uninstall|list|version [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(g.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "hayride: %v\n", err)
		return 1
	}
	logger, err := newLogger(cfg, g.logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "hayride: %v\n", err)
		return 2
	}
	slog.SetDefault(logger)

	if fs.Arg(0) == "version" {
		fmt.Fprintln(stdout, cfg.Version)
		return 0
	}
	if err := ensureDirs(cfg); err != nil {
		logger.Error("failed to prepare directories", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	if g.metricsAddr != "" {
		srv := serveMetrics(g.metricsAddr, reg, logger)
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	rt, err := newHostRuntime(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("failed to start runtime", "error", err)
		return 1
	}
	defer func() {
		if err := rt.Close(ctx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	cmdArgs := fs.Args()[1:]
	switch fs.Arg(0) {
	case "run":
		err = runCommand(ctx, rt, cmdArgs, stdout)
	case "compose":
		err = composeCommand(ctx, rt, cmdArgs, stdout)
	case "install":
		err = installCommand(rt, cmdArgs, stdout)
	case "uninstall":
		err = uninstallCommand(rt, cmdArgs)
	case "list":
		err = listCommand(rt, stdout)
	default:
		fs.Usage()
		return 2
	}
	return exitCode(logger, err)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	home, err := config.DefaultHome()
	if err != nil {
		return config.Config{}, err
	}
	return config.LoadFile(path, home)
}

func newLogger(cfg config.Config, override string, out io.Writer) (*slog.Logger, error) {
	name := cfg.Logging.Level
	if override != "" {
		name = override
	}
	level, err := hlog.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	return hlog.New(
		hlog.WithLevel(level),
		hlog.WithFormat(cfg.Logging.Format),
		hlog.WithNoColor(cfg.Logging.NoColor),
		hlog.WithOutput(out),
	), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	return srv
}

// exitCode logs err and maps it to a process status: 2 for usage and
// configuration problems, 1 for everything else.
func exitCode(logger *slog.Logger, err error) int {
	if err == nil {
		return 0
	}
	var usage usageError
	if errors.As(err, &usage) {
		logger.Error(usage.Error())
		return 2
	}
	var exit exitStatus
	if errors.As(err, &exit) {
		return int(exit)
	}
	logger.Error("command failed", "error", err, "detail", domainerrors.ToErrorDetail(err))
	var cfgErr *domainerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
