package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"github.com/hayride-dev/hayride-go/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
	name string
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Infer(ctx context.Context, req entities.InferenceRequest, sink ports.FragmentSink) error {
	args := m.Called(ctx, req, sink)
	return args.Error(0)
}

func sendTexts(texts ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		sink := args.Get(2).(ports.FragmentSink)
		for _, t := range texts {
			if err := sink.Send(ctx, entities.Fragment{Text: t}); err != nil {
				return
			}
		}
	}
}

func texts(frags []entities.Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Text
	}
	return out
}

func TestPool_StreamsFragmentsInOrder(t *testing.T) {
	b := &mockBackend{name: "llama"}
	b.On("Infer", mock.Anything, mock.Anything, mock.Anything).Run(sendTexts("a", "b", "c")).Return(nil)

	pool, err := NewPool([]ports.ModelBackend{b})
	require.NoError(t, err)

	stream, err := pool.Infer(context.Background(), entities.InferenceRequest{Messages: []entities.Message{entities.NewUserMessage("hi")}})
	require.NoError(t, err)

	frags, err := pipeline.Drain(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, texts(frags))
	b.AssertExpectations(t)
}

func TestPool_BackendFailureIsTerminal(t *testing.T) {
	b := &mockBackend{name: "llama"}
	b.On("Infer", mock.Anything, mock.Anything, mock.Anything).Run(sendTexts("partial")).Return(errors.New("out of memory"))

	pool, err := NewPool([]ports.ModelBackend{b})
	require.NoError(t, err)

	stream, err := pool.Infer(context.Background(), entities.InferenceRequest{})
	require.NoError(t, err)

	frags, err := pipeline.Drain(context.Background(), stream)
	var backendErr *domainerrors.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "llama", backendErr.Backend)
	assert.Equal(t, entities.StreamError, stream.State())
	assert.LessOrEqual(t, len(frags), 1)
	b.AssertNumberOfCalls(t, "Infer", 1)
}

func TestPool_RoutesByModel(t *testing.T) {
	first := &mockBackend{name: "first"}
	first.On("Infer", mock.Anything, mock.Anything, mock.Anything).Run(sendTexts("from first")).Return(nil)
	second := &mockBackend{name: "second"}
	second.On("Infer", mock.Anything, mock.Anything, mock.Anything).Run(sendTexts("from second")).Return(nil)

	pool, err := NewPool([]ports.ModelBackend{first, second})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, pool.Names())

	for model, want := range map[string]string{"": "from first", "second": "from second"} {
		stream, err := pool.Infer(context.Background(), entities.InferenceRequest{Model: model})
		require.NoError(t, err)
		frags, err := pipeline.Drain(context.Background(), stream)
		require.NoError(t, err)
		assert.Equal(t, []string{want}, texts(frags))
	}

	_, err = pool.Infer(context.Background(), entities.InferenceRequest{Model: "missing"})
	assert.ErrorIs(t, err, domainerrors.ErrModelNotFound)
}

func TestPool_EmptyAndDuplicate(t *testing.T) {
	pool, err := NewPool(nil)
	require.NoError(t, err)
	_, err = pool.Infer(context.Background(), entities.InferenceRequest{})
	assert.ErrorIs(t, err, domainerrors.ErrModelNotFound)

	_, err = NewPool([]ports.ModelBackend{&mockBackend{name: "x"}, &mockBackend{name: "x"}})
	assert.ErrorContains(t, err, "duplicate backend")
}

func TestPool_ExcessRequestsWait(t *testing.T) {
	release := make(chan struct{})
	b := &mockBackend{name: "llama"}
	b.On("Infer", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-release
		sendTexts("ok")(args)
	}).Return(nil)

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	pool, err := NewPool([]ports.ModelBackend{b}, WithMaxConcurrent(1), WithMetrics(metrics))
	require.NoError(t, err)

	s1, err := pool.Infer(context.Background(), entities.InferenceRequest{})
	require.NoError(t, err)
	s2, err := pool.Infer(context.Background(), entities.InferenceRequest{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.inFlight.WithLabelValues("llama")) == 1 &&
			promtest.ToFloat64(metrics.queued.WithLabelValues("llama")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	close(release)
	for _, s := range []*pipeline.InferenceStream{s1, s2} {
		frags, err := pipeline.Drain(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, []string{"ok"}, texts(frags))
	}

	assert.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.requests.WithLabelValues("llama", "success")) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, promtest.ToFloat64(metrics.inFlight.WithLabelValues("llama")))
}

func TestPool_ClosingStreamCancelsRequest(t *testing.T) {
	stopped := make(chan struct{})
	b := &mockBackend{name: "llama"}
	b.On("Infer", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
		close(stopped)
	}).Return(context.Canceled)

	pool, err := NewPool([]ports.ModelBackend{b})
	require.NoError(t, err)

	stream, err := pool.Infer(context.Background(), entities.InferenceRequest{})
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("backend was not cancelled")
	}
	assert.Equal(t, entities.StreamClosed, stream.State())
}
