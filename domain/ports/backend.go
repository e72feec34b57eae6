package ports

import (
	"context"

	"github.com/hayride-dev/hayride-go/domain/entities"
)

// FragmentSink receives incremental model output. Send blocks under
// backpressure and fails once the consumer has gone away.
type FragmentSink interface {
	Send(ctx context.Context, frag entities.Fragment) error
}

// ModelBackend is a pre-instantiated inference engine. Implementations write
// output fragments to sink in order and return when generation ends. A
// non-nil error is terminal for the request.
type ModelBackend interface {
	// Name identifies the backend for admission control and logging.
	Name() string

	// Infer runs one request.
	Infer(ctx context.Context, req entities.InferenceRequest, sink FragmentSink) error
}
