package pipeline

import (
	"context"
	"fmt"

	"github.com/hayride-dev/hayride-go/domain/entities"
)

// TensorStream carries raw numeric buffers with shape metadata.
type TensorStream = Stream[entities.Tensor]

// InferenceStream carries incremental model output.
type InferenceStream = Stream[entities.Fragment]

// GraphStream carries structured partial results such as retrieval hits.
type GraphStream = Stream[entities.GraphOutput]

// OpenTensor opens a tensor stream.
func OpenTensor(capacity int, opts ...Option) *TensorStream {
	return Open[entities.Tensor](entities.StreamTensor, capacity, opts...)
}

// OpenInference opens an inference stream.
func OpenInference(capacity int, opts ...Option) *InferenceStream {
	return Open[entities.Fragment](entities.StreamInference, capacity, opts...)
}

// OpenGraph opens a graph stream.
func OpenGraph(capacity int, opts ...Option) *GraphStream {
	return Open[entities.GraphOutput](entities.StreamGraph, capacity, opts...)
}

// SplitTensor slices t along its outermost dimension into chunks of at most
// rows rows each. A tensor without shape is returned as a single chunk.
func SplitTensor(t entities.Tensor, rows int) ([]entities.Tensor, error) {
	if len(t.Shape) == 0 || rows <= 0 || int(t.Shape[0]) <= rows {
		return []entities.Tensor{t}, nil
	}
	elem := t.Type.ElementSize()
	if elem == 0 {
		return nil, fmt.Errorf("tensor type %q has no fixed element size", t.Type)
	}
	if len(t.Data) != t.Elements()*elem {
		return nil, fmt.Errorf("tensor data is %d bytes, shape %v needs %d", len(t.Data), t.Shape, t.Elements()*elem)
	}

	rowBytes := len(t.Data) / int(t.Shape[0])
	var chunks []entities.Tensor
	for start := 0; start < int(t.Shape[0]); start += rows {
		end := min(start+rows, int(t.Shape[0]))
		shape := append([]uint32{uint32(end - start)}, t.Shape[1:]...) //nolint:gosec // G115: bounded by original shape
		chunks = append(chunks, entities.Tensor{
			Type:  t.Type,
			Shape: shape,
			Data:  t.Data[start*rowBytes : end*rowBytes],
		})
	}
	return chunks, nil
}

// StreamTensor opens a tensor stream and feeds it the chunks of t from a
// producer goroutine. The stream ends with EndOfStream after the last chunk.
func StreamTensor(ctx context.Context, t entities.Tensor, rows, capacity int, opts ...Option) (*TensorStream, error) {
	chunks, err := SplitTensor(t, rows)
	if err != nil {
		return nil, err
	}
	s := OpenTensor(capacity, opts...)
	go func() {
		defer s.CloseSend()
		for _, c := range chunks {
			if err := s.Send(ctx, c); err != nil {
				return
			}
		}
	}()
	return s, nil
}

// Drain receives until EndOfStream and returns everything received. Any other
// error is returned together with the items read so far.
func Drain[T any](ctx context.Context, s *Stream[T]) ([]T, error) {
	var out []T
	for {
		item, err := s.Receive(ctx)
		if err != nil {
			if IsEndOfStream(err) {
				return out, nil
			}
			return out, err
		}
		out = append(out, item)
	}
}
