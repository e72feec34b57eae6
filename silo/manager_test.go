package silo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBoundary runs until exit receives a value or its context ends.
type fakeBoundary struct {
	exit   chan error
	result Result
	closed atomic.Bool
}

func newFakeBoundary() *fakeBoundary {
	return &fakeBoundary{exit: make(chan error, 1)}
}

func (f *fakeBoundary) Run(ctx context.Context) (Result, error) {
	select {
	case err := <-f.exit:
		return f.result, err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (f *fakeBoundary) Call(_ context.Context, fn string, payload []byte) ([]byte, error) {
	return append([]byte(fn+":"), payload...), nil
}

func (f *fakeBoundary) Close(context.Context) error {
	f.closed.Store(true)
	return nil
}

func starterFor(b Boundary) Starter {
	return func(context.Context, string) (Boundary, error) {
		return b, nil
	}
}

// closeLog records the order resources are released in.
type closeLog struct {
	mu    sync.Mutex
	order []string
}

func (l *closeLog) closer(name string) io.Closer {
	return closerFunc(func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.order = append(l.order, name)
		return nil
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newTestManager(opts ...Option) *Manager {
	return NewManager(append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)...)
}

func spawnFake(t *testing.T, m *Manager, parent string) (entities.SiloInfo, *fakeBoundary) {
	t.Helper()
	b := newFakeBoundary()
	info, err := m.Spawn(context.Background(), Spec{Start: starterFor(b), Kind: entities.SiloThread, Owner: "tool", Parent: parent})
	require.NoError(t, err)
	return info, b
}

func waitInfo(t *testing.T, m *Manager, id string) entities.SiloInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return info
}

func TestManager_SpawnAndComplete(t *testing.T) {
	m := newTestManager()
	info, b := spawnFake(t, m, "")

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, entities.SiloRunning, info.State)
	assert.Equal(t, "tool", info.Owner)

	b.result = Result{Stdout: "done"}
	b.exit <- nil

	final := waitInfo(t, m, info.ID)
	assert.Equal(t, entities.SiloTerminated, final.State)
	assert.Equal(t, "done", final.Stdout)
	assert.True(t, b.closed.Load())
}

func TestManager_GuestFaultFails(t *testing.T) {
	m := newTestManager()
	info, b := spawnFake(t, m, "")

	b.result = Result{ExitCode: 1}
	b.exit <- errors.New("unreachable executed")

	final := waitInfo(t, m, info.ID)
	assert.Equal(t, entities.SiloFailed, final.State)
	assert.Equal(t, "unreachable executed", final.Error)
	assert.Equal(t, 1, final.ExitCode)
}

func TestManager_Terminate(t *testing.T) {
	m := newTestManager()
	info, b := spawnFake(t, m, "")

	require.NoError(t, m.Terminate(context.Background(), info.ID))
	got, err := m.Info(info.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SiloTerminated, got.State)
	assert.True(t, b.closed.Load())

	assert.NoError(t, m.Terminate(context.Background(), info.ID), "terminate is idempotent")

	err = m.Terminate(context.Background(), "missing")
	assert.ErrorIs(t, err, domainerrors.ErrSiloNotFound)
}

func TestManager_FailByHost(t *testing.T) {
	m := newTestManager()
	info, _ := spawnFake(t, m, "")

	require.NoError(t, m.Fail(context.Background(), info.ID, errors.New("backend gone")))
	got, err := m.Info(info.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SiloFailed, got.State)
	assert.Equal(t, "backend gone", got.Error)
}

func TestManager_ResourcesReleasedInReverseOrder(t *testing.T) {
	m := newTestManager()
	info, _ := spawnFake(t, m, "")

	var log closeLog
	for _, name := range []string{"first", "second", "third"} {
		_, err := m.Attach(info.ID, log.closer(name))
		require.NoError(t, err)
	}
	got, err := m.Info(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Resources)

	require.NoError(t, m.Terminate(context.Background(), info.ID))

	assert.Equal(t, []string{"third", "second", "first"}, log.order)
	got, err = m.Info(info.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Resources)

	_, err = m.Attach(info.ID, log.closer("late"))
	assert.Error(t, err)
}

func TestManager_Detach(t *testing.T) {
	m := newTestManager()
	info, _ := spawnFake(t, m, "")

	var log closeLog
	h, err := m.Attach(info.ID, log.closer("a"))
	require.NoError(t, err)

	r, err := m.Resource(info.ID, h)
	require.NoError(t, err)
	assert.NotNil(t, r)

	require.NoError(t, m.Detach(info.ID, h))
	assert.Equal(t, []string{"a"}, log.order)

	_, err = m.Resource(info.ID, h)
	assert.Error(t, err)
	assert.Error(t, m.Detach(info.ID, h))
}

func TestManager_TerminationClosesStreams(t *testing.T) {
	m := newTestManager()
	info, _ := spawnFake(t, m, "")

	s := pipeline.OpenInference(1)
	_, err := m.Attach(info.ID, s)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Receive(context.Background())
		errc <- err
	}()

	require.NoError(t, m.Terminate(context.Background(), info.ID))

	select {
	case err := <-errc:
		assert.True(t, pipeline.IsClosed(err))
	case <-time.After(5 * time.Second):
		t.Fatal("blocked receiver was not woken")
	}
}

func TestManager_SubSilosTerminatedWithParent(t *testing.T) {
	m := newTestManager()
	parent, _ := spawnFake(t, m, "")
	child, childBoundary := spawnFake(t, m, parent.ID)
	other, _ := spawnFake(t, m, "")

	children := m.Children(parent.ID)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	require.NoError(t, m.Terminate(context.Background(), parent.ID))

	got, err := m.Info(child.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SiloTerminated, got.State)
	assert.True(t, childBoundary.closed.Load())

	got, err = m.Info(other.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SiloRunning, got.State)

	_, err = m.Spawn(context.Background(), Spec{Start: starterFor(newFakeBoundary()), Kind: entities.SiloThread, Parent: parent.ID})
	assert.ErrorIs(t, err, domainerrors.ErrSiloNotFound)
}

func TestManager_MaxSilos(t *testing.T) {
	m := newTestManager(WithMaxSilos(1))
	first, _ := spawnFake(t, m, "")

	_, err := m.Spawn(context.Background(), Spec{Start: starterFor(newFakeBoundary()), Kind: entities.SiloThread, Owner: "second"})
	var spawnErr *domainerrors.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.ErrorIs(t, err, domainerrors.ErrResourceExhausted)
	assert.Equal(t, "resource_exhausted", spawnErr.ToErrorDetail().Code)

	require.NoError(t, m.Terminate(context.Background(), first.ID))
	spawnFake(t, m, "")
}

func TestManager_SpawnFailureLeavesNoSilo(t *testing.T) {
	m := newTestManager()
	_, err := m.Spawn(context.Background(), Spec{
		Kind:  entities.SiloThread,
		Owner: "broken",
		Start: func(context.Context, string) (Boundary, error) {
			return nil, errors.New("instantiate failed")
		},
	})

	var spawnErr *domainerrors.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "broken", spawnErr.Target)
	assert.Empty(t, m.List())

	_, err = m.Spawn(context.Background(), Spec{Kind: entities.SiloThread})
	assert.Error(t, err)
}

func TestManager_SuspendResume(t *testing.T) {
	m := newTestManager()
	info, _ := spawnFake(t, m, "")
	ctx := context.Background()

	out, err := m.Call(ctx, info.ID, "echo", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "echo:x", string(out))

	require.NoError(t, m.Suspend(info.ID))
	got, _ := m.Info(info.ID)
	assert.Equal(t, entities.SiloSuspended, got.State)

	_, err = m.Call(ctx, info.ID, "echo", nil)
	assert.Error(t, err)
	assert.ErrorIs(t, m.Suspend(info.ID), domainerrors.ErrInvalidTransition)

	require.NoError(t, m.Resume(info.ID))
	_, err = m.Call(ctx, info.ID, "echo", nil)
	assert.NoError(t, err)
	assert.ErrorIs(t, m.Resume(info.ID), domainerrors.ErrInvalidTransition)

	require.NoError(t, m.Suspend(info.ID))
	require.NoError(t, m.Terminate(ctx, info.ID))
	got, _ = m.Info(info.ID)
	assert.Equal(t, entities.SiloTerminated, got.State)
}

func TestManager_RemoveOnlyEnded(t *testing.T) {
	m := newTestManager()
	info, _ := spawnFake(t, m, "")

	assert.Error(t, m.Remove(info.ID))
	require.NoError(t, m.Terminate(context.Background(), info.ID))
	require.NoError(t, m.Remove(info.ID))

	_, err := m.Info(info.ID)
	assert.ErrorIs(t, err, domainerrors.ErrSiloNotFound)
}

func TestManager_Shutdown(t *testing.T) {
	m := newTestManager()
	a, _ := spawnFake(t, m, "")
	b, _ := spawnFake(t, m, a.ID)
	c, _ := spawnFake(t, m, "")

	require.NoError(t, m.Shutdown(context.Background()))

	for _, id := range []string{a.ID, b.ID, c.ID} {
		got, err := m.Info(id)
		require.NoError(t, err)
		assert.Equal(t, entities.SiloTerminated, got.State, id)
	}

	_, err := m.Spawn(context.Background(), Spec{Start: starterFor(newFakeBoundary()), Kind: entities.SiloThread})
	assert.Error(t, err)
}

type fakeResolver struct {
	b Boundary
}

func (r fakeResolver) ResolveThread(_ context.Context, spec entities.ThreadSpec) (Starter, error) {
	if spec.Component == "missing" {
		return nil, domainerrors.ErrComponentNotFound
	}
	return starterFor(r.b), nil
}

func TestManager_SpawnThread(t *testing.T) {
	ctx := context.Background()

	_, err := newTestManager().SpawnThread(ctx, "", entities.ThreadSpec{Component: "a:b", Function: "run"})
	assert.ErrorIs(t, err, domainerrors.ErrUnsupported)

	m := newTestManager(WithThreadResolver(fakeResolver{b: newFakeBoundary()}))
	parent, _ := spawnFake(t, m, "")

	info, err := m.SpawnThread(ctx, parent.ID, entities.ThreadSpec{Component: "a:b", Function: "run", Args: []string{"1"}})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, info.Parent)
	assert.Equal(t, "run", info.Function)
	assert.Equal(t, []string{"1"}, info.Args)

	_, err = m.SpawnThread(ctx, parent.ID, entities.ThreadSpec{Component: "missing", Function: "run"})
	assert.ErrorIs(t, err, domainerrors.ErrComponentNotFound)
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	m := newTestManager(WithMetrics(metrics), WithMaxSilos(1))
	info, _ := spawnFake(t, m, "")
	_, err = m.Attach(info.ID, closerFunc(func() error { return nil }))
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.live.WithLabelValues("thread")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.resources))

	_, err = m.Spawn(context.Background(), Spec{Start: starterFor(newFakeBoundary()), Kind: entities.SiloThread})
	require.Error(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.spawnFailures.WithLabelValues("thread")))

	require.NoError(t, m.Terminate(context.Background(), info.ID))
	assert.Equal(t, 0.0, promtest.ToFloat64(metrics.live.WithLabelValues("thread")))
	assert.Equal(t, 0.0, promtest.ToFloat64(metrics.resources))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.finished.WithLabelValues("thread", "terminated")))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}
