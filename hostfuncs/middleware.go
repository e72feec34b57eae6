package hostfuncs

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Middleware decorates every handler of a registry.
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware turns a handler panic into an INTERNAL_ERROR
// response so that one bad call cannot take the host down.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				slog.ErrorContext(ctx, "host function panicked", "function", functionName(ctx), "panic", r)
				resp, err = NewPanicError(r).ToJSON(), nil
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware returns a middleware that logs host function invocations
// at debug level, and failures at error level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			funcName := functionName(ctx)
			caller := callerOf(ctx)
			logger.DebugContext(ctx, "invoking host function", "function", funcName, "silo", caller)
			start := time.Now()
			resp, err := next(ctx, payload)
			if err != nil {
				logger.ErrorContext(ctx, "host function failed", "function", funcName, "silo", caller, "error", err)
			} else {
				logger.DebugContext(ctx, "host function completed", "function", funcName, "silo", caller,
					"duration", time.Since(start))
			}
			return resp, err
		}
	}
}

// MetricsMiddleware counts invocations and observes latency per function.
// Functions are labelled without their interface version.
// It panics if the collectors cannot be registered, like promauto.
func MetricsMiddleware(reg prometheus.Registerer) Middleware {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hayride",
		Subsystem: "hostfuncs",
		Name:      "calls_total",
		Help:      "Host function invocations by function and outcome.",
	}, []string{"function", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hayride",
		Subsystem: "hostfuncs",
		Name:      "call_duration_seconds",
		Help:      "Host function latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"function"})
	if reg != nil {
		reg.MustRegister(calls, latency)
	}

	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			funcName := metricName(ctx)
			start := time.Now()
			resp, err := next(ctx, payload)
			latency.WithLabelValues(funcName).Observe(time.Since(start).Seconds())
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			calls.WithLabelValues(funcName, outcome).Inc()
			return resp, err
		}
	}
}

func functionName(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.FunctionName()
	}
	return "unknown"
}

func metricName(ctx context.Context) string {
	hc, ok := ctx.(HostContext)
	if !ok {
		return "unknown"
	}
	if fn := hc.Function(); fn.Func != "" {
		return fn.Interface.Key() + "#" + fn.Func
	}
	return hc.FunctionName()
}

func callerOf(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.Caller()
	}
	id, _ := CallerFrom(ctx)
	return id
}
