package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
)

// DefaultCapacity is used when Open is given a non-positive capacity.
const DefaultCapacity = 16

// Stream is a bounded single-producer/single-consumer channel.
//
// Send blocks while the buffer is full. Items are delivered in send order.
// Close from either end is idempotent; after it, Send and Receive return
// ErrStreamClosed. Fail moves the stream into its error state and both ends
// observe a *StreamError.
type Stream[T any] struct {
	items    chan T
	done     chan struct{}
	metrics  *Metrics
	err      error
	id       string
	kind     entities.StreamKind
	state    entities.StreamState
	capacity int

	mu         sync.Mutex
	doneOnce   sync.Once
	sendOnce   sync.Once
	sendClosed bool
}

// Option configures a stream at open time.
type Option func(*streamConfig)

type streamConfig struct {
	metrics *Metrics
	id      string
}

// WithMetrics records open/close events for the stream.
func WithMetrics(m *Metrics) Option {
	return func(c *streamConfig) {
		c.metrics = m
	}
}

// WithID overrides the generated stream id.
func WithID(id string) Option {
	return func(c *streamConfig) {
		c.id = id
	}
}

// Open creates a stream of the given kind and buffer capacity.
func Open[T any](kind entities.StreamKind, capacity int, opts ...Option) *Stream[T] {
	cfg := streamConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	s := &Stream[T]{
		items:    make(chan T, capacity),
		done:     make(chan struct{}),
		metrics:  cfg.metrics,
		id:       cfg.id,
		kind:     kind,
		state:    entities.StreamOpen,
		capacity: capacity,
	}
	s.metrics.opened(kind)
	return s
}

// ID returns the stream identifier.
func (s *Stream[T]) ID() string { return s.id }

// Kind returns the payload family.
func (s *Stream[T]) Kind() entities.StreamKind { return s.kind }

// Capacity returns the buffer size.
func (s *Stream[T]) Capacity() int { return s.capacity }

// Len returns the number of buffered items.
func (s *Stream[T]) Len() int { return len(s.items) }

// State returns the current lifecycle state.
func (s *Stream[T]) State() entities.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == entities.StreamDraining && len(s.items) == 0 {
		return entities.StreamClosed
	}
	return s.state
}

// Done is closed once the stream is closed or failed from either end.
func (s *Stream[T]) Done() <-chan struct{} { return s.done }

// Err returns the failure cause once the stream is in its error state.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send enqueues item, blocking while the buffer is full. It returns
// ErrStreamClosed if the stream is closed before or while waiting, the
// stream's error if it failed, or ctx.Err() if ctx ends first.
func (s *Stream[T]) Send(ctx context.Context, item T) error {
	if err := s.terminalErr(); err != nil {
		return err
	}
	s.mu.Lock()
	finished := s.sendClosed
	s.mu.Unlock()
	if finished {
		return domainerrors.ErrStreamClosed
	}

	select {
	case <-s.done:
		return s.terminalErr()
	default:
	}

	select {
	case s.items <- item:
		return nil
	case <-s.done:
		return s.terminalErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next item. After the producer calls CloseSend and the
// buffer drains it returns ErrEndOfStream.
func (s *Stream[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	if err := s.terminalErr(); err != nil {
		return zero, err
	}

	select {
	case item, ok := <-s.items:
		if !ok {
			return zero, domainerrors.ErrEndOfStream
		}
		return item, nil
	case <-s.done:
		return zero, s.terminalErr()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// CloseSend is called by the producer once it has sent its final item.
// Buffered items remain receivable.
func (s *Stream[T]) CloseSend() {
	s.sendOnce.Do(func() {
		s.mu.Lock()
		s.sendClosed = true
		if s.state == entities.StreamOpen {
			s.state = entities.StreamDraining
		}
		s.mu.Unlock()
		close(s.items)
	})
}

// Close cancels the stream from either end. Blocked peers wake with
// ErrStreamClosed. Calling Close more than once is a no-op.
func (s *Stream[T]) Close() error {
	s.finish(entities.StreamClosed, nil)
	return nil
}

// Fail moves the stream into the error state with cause. Has no effect on a
// stream that is already closed or failed.
func (s *Stream[T]) Fail(cause error) {
	s.finish(entities.StreamError, &domainerrors.StreamError{StreamID: s.id, Kind: s.kind, Err: cause})
}

func (s *Stream[T]) finish(state entities.StreamState, err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.state = state
		s.err = err
		s.mu.Unlock()
		close(s.done)
		s.metrics.closed(s.kind, state)
	})
}

// terminalErr returns the error both ends observe once the stream is done,
// or nil while it is live.
func (s *Stream[T]) terminalErr() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return domainerrors.ErrStreamClosed
}
