package rag

import (
	"context"
	"errors"
	"testing"

	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, f.err }

func seededStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Register(ctx, "docs"))
	require.NoError(t, s.Embed(ctx, "docs", "wasm", "WebAssembly components run inside silos", map[string]string{"topic": "runtime"}))
	require.NoError(t, s.Embed(ctx, "docs", "cook", "Slow cooked beans with garlic and onion", nil))
	require.NoError(t, s.Embed(ctx, "docs", "stream", "Streams deliver fragments from the model backend", nil))
	return s
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(64)
	a, err := e.Embed(ctx, "Hello, World! hello")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "hello world HELLO")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-6)
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	v, err := NewHashEmbedder(0).Embed(context.Background(), "a . !")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimensions)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"silo", "42", "spawns", "über"}, tokenize("Silo-42 spawns a ÜBER!"))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestStore_QueryRanksBySimilarity(t *testing.T) {
	s := seededStore(t)

	hits, err := s.Query(context.Background(), "docs", "which components run in silos", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "wasm", hits[0].ID)
	assert.Equal(t, "runtime", hits[0].Metadata["topic"])
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestStore_DefaultLimit(t *testing.T) {
	s := seededStore(t)
	hits, err := s.Query(context.Background(), "docs", "beans", 0)
	require.NoError(t, err)
	assert.Len(t, hits, DefaultLimit)
	assert.Equal(t, "cook", hits[0].ID)
}

func TestStore_EmbedReplacesDocument(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	require.NoError(t, s.Embed(ctx, "docs", "cook", "silos and components", nil))

	hits, err := s.Query(ctx, "docs", "beans garlic", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	for _, h := range hits {
		if h.ID == "cook" {
			assert.Equal(t, "silos and components", h.Text)
		}
	}
}

func TestStore_UnknownTable(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.Embed(ctx, "missing", "id", "text", nil)
	assert.ErrorIs(t, err, domainerrors.ErrTableNotFound)

	_, err = s.Query(ctx, "missing", "text", 1)
	assert.ErrorIs(t, err, domainerrors.ErrTableNotFound)

	_, err = s.Retrieve(ctx, "missing", "text", 1)
	assert.ErrorIs(t, err, domainerrors.ErrTableNotFound)
}

func TestStore_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var cfgErr *domainerrors.ConfigError
	require.ErrorAs(t, s.Register(ctx, "  "), &cfgErr)
	assert.Equal(t, domainerrors.KindInvalid, cfgErr.Kind)

	require.NoError(t, s.Register(ctx, "b"))
	require.NoError(t, s.Register(ctx, "a"))
	require.NoError(t, s.Register(ctx, "a"))
	assert.Equal(t, []string{"a", "b"}, s.Tables())

	require.ErrorAs(t, s.Embed(ctx, "a", "", "text", nil), &cfgErr)
}

func TestStore_EmbedderFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("embedder offline")
	s := NewStore(WithEmbedder(failingEmbedder{err: boom}))
	require.NoError(t, s.Register(ctx, "docs"))

	assert.ErrorIs(t, s.Embed(ctx, "docs", "id", "text", nil), boom)
	_, err := s.Query(ctx, "docs", "text", 1)
	assert.ErrorIs(t, err, boom)
}

func TestStore_RetrieveStreamsOneOutput(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	stream, err := s.Retrieve(ctx, "docs", "model backend fragments", 1)
	require.NoError(t, err)

	outputs, err := pipeline.Drain(ctx, stream)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "docs", outputs[0].Table)
	require.Len(t, outputs[0].Hits, 1)
	assert.Equal(t, "stream", outputs[0].Hits[0].ID)

	_, err = stream.Receive(ctx)
	assert.True(t, pipeline.IsEndOfStream(err))
}
