package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is the vector width of the hashed embedder.
const DefaultDimensions = 256

// HashEmbedder maps text to a term-frequency vector using feature hashing.
// It is deterministic and needs no model, so equal text always embeds to
// the same vector.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a HashEmbedder. Non-positive dimensions fall back
// to DefaultDimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Dimensions returns the vector width.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the L2-normalized term vector of text. Text without any
// token embeds to the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vector := make([]float32, e.dimensions)
	for _, token := range tokenize(text) {
		vector[e.hashTerm(token)]++
	}
	l2Normalize(vector)
	return vector, nil
}

// hashTerm maps a term to a dimension using FNV-1a.
func (e *HashEmbedder) hashTerm(term string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(e.dimensions)) //nolint:gosec // G115: dimensions is positive
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit. Single-character tokens are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// l2Normalize scales vector to unit length in place.
func l2Normalize(vector []float32) {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range vector {
		vector[i] /= norm
	}
}
