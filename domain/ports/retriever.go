package ports

import (
	"context"

	"github.com/hayride-dev/hayride-go/domain/entities"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the stored entries of a table that best match a query.
type Retriever interface {
	Query(ctx context.Context, table, query string, limit int) ([]entities.RetrievalHit, error)
}
