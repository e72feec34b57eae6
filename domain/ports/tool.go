package ports

import (
	"context"

	"github.com/hayride-dev/hayride-go/domain/entities"
)

// ToolProvider executes tool calls for the agent loop. The returned output
// carries the same ID as input.
type ToolProvider interface {
	Call(ctx context.Context, input *entities.ToolInput) (entities.ToolOutput, error)
}
