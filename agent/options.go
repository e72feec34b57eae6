package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/hayride-dev/hayride-go/pipeline"
)

// Defaults for an Orchestrator.
const (
	DefaultMaxIterations = 10
	DefaultToolTimeout   = 30 * time.Second
	DefaultRagLimit      = 3
)

// GraphRetriever answers a query with a graph stream of retrieval results.
// *rag.Store implements it.
type GraphRetriever interface {
	Retrieve(ctx context.Context, table, query string, limit int) (*pipeline.GraphStream, error)
}

// Suspender pauses and resumes a silo. *silo.Manager implements it.
type Suspender interface {
	Suspend(id string) error
	Resume(id string) error
}

type orchestratorConfig struct {
	logger        *slog.Logger
	metrics       *Metrics
	retriever     GraphRetriever
	suspender     Suspender
	model         string
	systemPrompt  string
	ragTable      string
	options       entities.PromptOptions
	maxIterations int
	ragLimit      int
	toolTimeout   time.Duration
}

func defaultOrchestratorConfig() orchestratorConfig {
	return orchestratorConfig{
		logger:        slog.Default(),
		maxIterations: DefaultMaxIterations,
		toolTimeout:   DefaultToolTimeout,
		ragLimit:      DefaultRagLimit,
	}
}

// Option configures an Orchestrator.
type Option func(*orchestratorConfig)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *orchestratorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records run and tool-call metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *orchestratorConfig) {
		c.metrics = m
	}
}

// WithMaxIterations caps the number of model turns per run.
func WithMaxIterations(n int) Option {
	return func(c *orchestratorConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithToolTimeout bounds each tool dispatch.
func WithToolTimeout(d time.Duration) Option {
	return func(c *orchestratorConfig) {
		if d > 0 {
			c.toolTimeout = d
		}
	}
}

// WithModel selects the backend model. Empty uses the backend default.
func WithModel(name string) Option {
	return func(c *orchestratorConfig) {
		c.model = name
	}
}

// WithPromptOptions tunes every inference request.
func WithPromptOptions(opts entities.PromptOptions) Option {
	return func(c *orchestratorConfig) {
		c.options = opts
	}
}

// WithSystemPrompt opens new conversations with a system message.
func WithSystemPrompt(prompt string) Option {
	return func(c *orchestratorConfig) {
		c.systemPrompt = prompt
	}
}

// WithRetriever enables the retrieval pre-step: the prompt is matched
// against table and every hit read from the resulting graph stream is added
// to the user message.
func WithRetriever(r GraphRetriever, table string, limit int) Option {
	return func(c *orchestratorConfig) {
		c.retriever = r
		c.ragTable = table
		if limit > 0 {
			c.ragLimit = limit
		}
	}
}

// WithSuspender suspends the calling silo while Invoke runs on its behalf.
func WithSuspender(s Suspender) Option {
	return func(c *orchestratorConfig) {
		c.suspender = s
	}
}
