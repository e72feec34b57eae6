package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"github.com/hayride-dev/hayride-go/pipeline"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent is the per-backend request bound when none is set.
const DefaultMaxConcurrent = 1

type poolConfig struct {
	logger        *slog.Logger
	metrics       *Metrics
	streamMetrics *pipeline.Metrics
	maxConcurrent int64
	capacity      int
}

func defaultPoolConfig() poolConfig {
	return poolConfig{
		logger:        slog.Default(),
		maxConcurrent: DefaultMaxConcurrent,
		capacity:      pipeline.DefaultCapacity,
	}
}

// Option configures a Pool.
type Option func(*poolConfig)

// WithMaxConcurrent bounds concurrent requests per backend.
func WithMaxConcurrent(n int64) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithStreamCapacity sets the buffer size of the inference streams.
func WithStreamCapacity(n int) Option {
	return func(c *poolConfig) {
		c.capacity = n
	}
}

// WithMetrics records admission and request metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *poolConfig) {
		c.metrics = m
	}
}

// WithStreamMetrics records the lifecycle of the streams the pool opens.
func WithStreamMetrics(m *pipeline.Metrics) Option {
	return func(c *poolConfig) {
		c.streamMetrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *poolConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type slot struct {
	backend ports.ModelBackend
	sem     *semaphore.Weighted
}

// Pool routes inference requests to named backends under admission control.
// Backends are fixed at construction.
type Pool struct {
	config   poolConfig
	backends map[string]slot
	names    []string
}

// NewPool creates a Pool over backends. The first backend serves requests
// that do not name a model.
func NewPool(backends []ports.ModelBackend, opts ...Option) (*Pool, error) {
	cfg := defaultPoolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{config: cfg, backends: make(map[string]slot, len(backends))}
	for _, b := range backends {
		name := b.Name()
		if name == "" {
			return nil, errors.New("backend name cannot be empty")
		}
		if _, exists := p.backends[name]; exists {
			return nil, fmt.Errorf("duplicate backend: %q", name)
		}
		p.backends[name] = slot{backend: b, sem: semaphore.NewWeighted(cfg.maxConcurrent)}
		p.names = append(p.names, name)
	}
	return p, nil
}

// Names returns the backend names in registration order.
func (p *Pool) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Infer submits req and returns the stream its output arrives on. The call
// returns immediately; the request waits for a backend slot in the
// background. Closing the stream cancels the request.
func (p *Pool) Infer(ctx context.Context, req entities.InferenceRequest) (*pipeline.InferenceStream, error) {
	name := req.Model
	if name == "" {
		if len(p.names) == 0 {
			return nil, &domainerrors.BackendError{Op: "infer", Err: domainerrors.ErrModelNotFound}
		}
		name = p.names[0]
	}
	s, ok := p.backends[name]
	if !ok {
		return nil, &domainerrors.BackendError{Backend: name, Op: "infer", Err: domainerrors.ErrModelNotFound}
	}

	stream := pipeline.OpenInference(p.config.capacity, pipeline.WithMetrics(p.config.streamMetrics))
	go p.serve(ctx, name, s, req, stream)
	return stream, nil
}

func (p *Pool) serve(ctx context.Context, name string, s slot, req entities.InferenceRequest, stream *pipeline.InferenceStream) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stream.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	p.config.metrics.waiting(name, 1)
	err := s.sem.Acquire(ctx, 1)
	p.config.metrics.waiting(name, -1)
	if err != nil {
		stream.Fail(&domainerrors.BackendError{Backend: name, Op: "admit", Err: err})
		return
	}
	defer s.sem.Release(1)

	p.config.metrics.running(name, 1)
	start := time.Now()
	err = s.backend.Infer(ctx, req, streamSink{stream: stream})
	p.config.metrics.running(name, -1)

	outcome := "success"
	switch {
	case err == nil:
		stream.CloseSend()
	case pipeline.IsClosed(err) || errors.Is(err, context.Canceled):
		outcome = "cancelled"
		_ = stream.Close()
	default:
		outcome = "error"
		p.config.logger.WarnContext(ctx, "backend request failed", "backend", name, "error", err)
		stream.Fail(&domainerrors.BackendError{Backend: name, Op: "infer", Err: err})
	}
	p.config.metrics.done(name, outcome, time.Since(start).Seconds())
}

// streamSink adapts an inference stream to the backend's sink port.
type streamSink struct {
	stream *pipeline.InferenceStream
}

func (s streamSink) Send(ctx context.Context, frag entities.Fragment) error {
	return s.stream.Send(ctx, frag)
}
