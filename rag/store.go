package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/hayride-dev/hayride-go/pipeline"
)

// DefaultLimit is the number of hits a query returns when the caller does
// not ask for a positive limit.
const DefaultLimit = 3

type storeConfig struct {
	embedder      ports.Embedder
	logger        *slog.Logger
	streamMetrics *pipeline.Metrics
	defaultLimit  int
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		embedder:     NewHashEmbedder(DefaultDimensions),
		logger:       slog.Default(),
		defaultLimit: DefaultLimit,
	}
}

// Option configures a Store.
type Option func(*storeConfig)

// WithEmbedder replaces the hashed-term embedder.
func WithEmbedder(e ports.Embedder) Option {
	return func(c *storeConfig) {
		if e != nil {
			c.embedder = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultLimit sets the hit count used for non-positive limits.
func WithDefaultLimit(n int) Option {
	return func(c *storeConfig) {
		if n > 0 {
			c.defaultLimit = n
		}
	}
}

// WithStreamMetrics records the lifecycle of the graph streams Retrieve opens.
func WithStreamMetrics(m *pipeline.Metrics) Option {
	return func(c *storeConfig) {
		c.streamMetrics = m
	}
}

type document struct {
	metadata map[string]string
	id       string
	text     string
	vector   []float32
}

type table struct {
	docs  map[string]*document
	order []string
}

// Store holds embedded documents grouped into named tables. It is safe for
// concurrent use.
type Store struct {
	config storeConfig
	mu     sync.RWMutex
	tables map[string]*table
}

var (
	_ ports.Retriever      = (*Store)(nil)
	_ hostfuncs.RagService = (*Store)(nil)
)

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{config: cfg, tables: make(map[string]*table)}
}

// Register creates a table. Registering an existing table keeps its
// documents.
func (s *Store) Register(_ context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "table", Err: fmt.Errorf("table name is empty")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = &table{docs: make(map[string]*document)}
		s.config.logger.Debug("rag: table registered", "table", name)
	}
	return nil
}

// Tables returns the registered table names, sorted.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Embed stores text under id in the named table, replacing any document
// with the same id.
func (s *Store) Embed(ctx context.Context, name, id, text string, metadata map[string]string) error {
	if id == "" {
		return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "id", Err: fmt.Errorf("document id is empty")}
	}
	if _, err := s.lookup(name); err != nil {
		return err
	}
	vector, err := s.config.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %s/%s: %w", name, id, err)
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return tableNotFound(name)
	}
	if _, exists := t.docs[id]; !exists {
		t.order = append(t.order, id)
	}
	t.docs[id] = &document{metadata: meta, id: id, text: text, vector: vector}
	return nil
}

// Query returns up to limit documents of the table ranked by similarity to
// query, best first. Ties keep insertion order.
func (s *Store) Query(ctx context.Context, name, query string, limit int) ([]entities.RetrievalHit, error) {
	if limit <= 0 {
		limit = s.config.defaultLimit
	}
	if _, err := s.lookup(name); err != nil {
		return nil, err
	}
	vector, err := s.config.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	t, ok := s.tables[name]
	if !ok {
		s.mu.RUnlock()
		return nil, tableNotFound(name)
	}
	hits := make([]entities.RetrievalHit, 0, len(t.order))
	for _, id := range t.order {
		doc := t.docs[id]
		hits = append(hits, entities.RetrievalHit{
			Metadata: doc.metadata,
			ID:       doc.id,
			Text:     doc.text,
			Score:    CosineSimilarity(vector, doc.vector),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Retrieve runs Query and delivers the hits as a single graph output on a
// closed-for-send stream.
func (s *Store) Retrieve(ctx context.Context, name, query string, limit int) (*pipeline.GraphStream, error) {
	hits, err := s.Query(ctx, name, query, limit)
	if err != nil {
		return nil, err
	}
	var opts []pipeline.Option
	if s.config.streamMetrics != nil {
		opts = append(opts, pipeline.WithMetrics(s.config.streamMetrics))
	}
	stream := pipeline.OpenGraph(1, opts...)
	if err := stream.Send(ctx, entities.GraphOutput{Table: name, Hits: hits}); err != nil {
		_ = stream.Close()
		return nil, err
	}
	stream.CloseSend()
	return stream, nil
}

func (s *Store) lookup(name string) (*table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, tableNotFound(name)
	}
	return t, nil
}

func tableNotFound(name string) error {
	return fmt.Errorf("%w: %q", domainerrors.ErrTableNotFound, name)
}
