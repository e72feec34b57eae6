package hostfuncs

import (
	"context"
	"fmt"
	"io"

	"github.com/hayride-dev/hayride-go/pipeline"
)

// ResourceTable tracks host resources owned by silos. Handles are scoped to
// the owning silo; terminating a silo releases everything it still holds.
type ResourceTable interface {
	Attach(siloID string, r io.Closer) (uint32, error)
	Resource(siloID string, handle uint32) (io.Closer, error)
	Detach(siloID string, handle uint32) error
}

// StreamRef names a stream handle held by the caller.
type StreamRef struct {
	Handle uint32 `json:"handle"`
}

// StreamItem is one value received from a stream. Done is set at end of stream.
type StreamItem[T any] struct {
	Item *T   `json:"item,omitempty"`
	Done bool `json:"done"`
}

// streamResource adapts a pipeline stream to the resource table.
type streamResource[T any] struct {
	stream *pipeline.Stream[T]
}

func (r *streamResource[T]) Close() error {
	return r.stream.Close()
}

// attachStream hands ownership of s to the calling silo.
func attachStream[T any](ctx context.Context, table ResourceTable, s *pipeline.Stream[T]) (StreamRef, error) {
	caller, _ := CallerFrom(ctx)
	h, err := table.Attach(caller, &streamResource[T]{stream: s})
	if err != nil {
		_ = s.Close()
		return StreamRef{}, err
	}
	return StreamRef{Handle: h}, nil
}

// lookupStream resolves a handle to a stream of the expected payload type.
func lookupStream[T any](ctx context.Context, table ResourceTable, ref StreamRef) (*pipeline.Stream[T], error) {
	caller, _ := CallerFrom(ctx)
	r, err := table.Resource(caller, ref.Handle)
	if err != nil {
		return nil, err
	}
	sr, ok := r.(*streamResource[T])
	if !ok {
		return nil, fmt.Errorf("handle %d: wrong stream type", ref.Handle)
	}
	return sr.stream, nil
}

// streamNext blocks for the next item of the stream behind the handle.
func streamNext[T any](table ResourceTable) HostFuncE[StreamRef, StreamItem[T]] {
	return func(ctx context.Context, ref StreamRef) (StreamItem[T], error) {
		s, err := lookupStream[T](ctx, table, ref)
		if err != nil {
			return StreamItem[T]{}, err
		}
		item, err := s.Receive(ctx)
		if pipeline.IsEndOfStream(err) {
			return StreamItem[T]{Done: true}, nil
		}
		if err != nil {
			return StreamItem[T]{}, err
		}
		return StreamItem[T]{Item: &item}, nil
	}
}

// streamClose releases the handle and closes the stream.
func streamClose(table ResourceTable) HostFuncE[StreamRef, Empty] {
	return func(ctx context.Context, ref StreamRef) (Empty, error) {
		caller, _ := CallerFrom(ctx)
		return Empty{}, table.Detach(caller, ref.Handle)
	}
}
