package silo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	hlog "github.com/hayride-dev/hayride-go/log"
	"golang.org/x/sync/errgroup"
)

// ThreadResolver turns a guest request for a thread silo into a Starter.
type ThreadResolver interface {
	ResolveThread(ctx context.Context, spec entities.ThreadSpec) (Starter, error)
}

// Spec describes a silo to create.
type Spec struct {
	Start    Starter
	Kind     entities.SiloKind
	Owner    string
	Parent   string
	Function string
	Args     []string
}

type resource struct {
	closer io.Closer
	handle uint32
}

type silo struct {
	boundary   Boundary
	cancel     context.CancelFunc
	done       chan struct{}
	failCause  error
	info       entities.SiloInfo
	resources  []resource
	nextHandle uint32
	stopping   bool
	finishing  bool
}

// Manager creates, tracks and tears down silos. It is safe for concurrent use.
type Manager struct {
	config managerConfig
	mu     sync.Mutex
	silos  map[string]*silo
	closed bool
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		config: cfg,
		silos:  make(map[string]*silo),
	}
}

// Spawn creates a silo and starts it. The silo outlives ctx; only values are
// inherited from it. Failures are returned as *SpawnError and leave no silo
// behind.
func (m *Manager) Spawn(ctx context.Context, spec Spec) (entities.SiloInfo, error) {
	spawnErr := func(err error) error {
		m.config.metrics.spawnFailed(spec.Kind)
		return &domainerrors.SpawnError{Kind: spec.Kind, Target: spec.Owner, Err: err}
	}
	if spec.Start == nil {
		return entities.SiloInfo{}, spawnErr(errors.New("no starter"))
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id := uuid.NewString()
	sctx = hostfuncs.WithCaller(sctx, id)
	s := &silo{
		cancel: cancel,
		done:   make(chan struct{}),
		info: entities.SiloInfo{
			StartedAt: time.Now(),
			ID:        id,
			Kind:      spec.Kind,
			State:     entities.SiloCreated,
			Owner:     spec.Owner,
			Parent:    spec.Parent,
			Function:  spec.Function,
			Args:      spec.Args,
		},
	}

	m.mu.Lock()
	if err := m.admitLocked(spec.Parent); err != nil {
		m.mu.Unlock()
		cancel()
		return entities.SiloInfo{}, spawnErr(err)
	}
	m.silos[id] = s
	m.mu.Unlock()

	b, err := spec.Start(sctx, id)

	m.mu.Lock()
	if err == nil && s.stopping {
		err = errors.New("terminated while starting")
		_ = b.Close(context.Background())
	}
	if err != nil {
		delete(m.silos, id)
		s.info.State = entities.SiloFailed
		s.info.Error = err.Error()
		m.mu.Unlock()
		cancel()
		close(s.done)
		return entities.SiloInfo{}, spawnErr(err)
	}
	s.boundary = b
	s.info.State = entities.SiloRunning
	info := s.info
	m.mu.Unlock()

	m.config.metrics.started(spec.Kind)
	m.config.logger.InfoContext(ctx, "silo started",
		"silo", id, "kind", spec.Kind, "owner", spec.Owner, "parent", spec.Parent)

	go m.run(sctx, s)
	return info, nil
}

func (m *Manager) admitLocked(parent string) error {
	if m.closed {
		return errors.New("silo manager is shut down")
	}
	if parent != "" {
		p, ok := m.silos[parent]
		if !ok || p.info.State.IsTerminal() || p.finishing {
			return fmt.Errorf("parent %s: %w", parent, domainerrors.ErrSiloNotFound)
		}
	}
	if m.config.maxSilos > 0 && m.liveLocked() >= m.config.maxSilos {
		return fmt.Errorf("%d silos running: %w", m.config.maxSilos, domainerrors.ErrResourceExhausted)
	}
	return nil
}

func (m *Manager) liveLocked() int {
	n := 0
	for _, s := range m.silos {
		if !s.info.State.IsTerminal() {
			n++
		}
	}
	return n
}

func (m *Manager) run(ctx context.Context, s *silo) {
	res, err := s.boundary.Run(ctx)
	m.finish(s, res, err)
}

// finish releases everything s owns and then publishes its terminal state.
func (m *Manager) finish(s *silo, res Result, runErr error) {
	m.mu.Lock()
	s.finishing = true
	resources := s.resources
	s.resources = nil
	children := m.childIDsLocked(s.info.ID)
	m.mu.Unlock()

	log := hlog.ForSilo(m.config.logger, s.info.ID, s.info.Owner)

	for i := len(resources) - 1; i >= 0; i-- {
		if err := resources[i].closer.Close(); err != nil {
			log.Warn("failed to release resource", "handle", resources[i].handle, "error", err)
		}
	}
	m.config.metrics.resourceDelta(-len(resources))

	if len(children) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.stopTimeout)
		g, gctx := errgroup.WithContext(ctx)
		for _, child := range children {
			g.Go(func() error {
				return m.Terminate(gctx, child)
			})
		}
		if err := g.Wait(); err != nil {
			log.Warn("failed to terminate sub-silos", "error", err)
		}
		cancel()
	}

	s.cancel()
	if err := s.boundary.Close(context.Background()); err != nil {
		log.Debug("boundary close", "error", err)
	}

	m.mu.Lock()
	state := entities.SiloTerminated
	switch {
	case s.failCause != nil:
		state = entities.SiloFailed
		s.info.Error = s.failCause.Error()
	case s.stopping:
	case runErr != nil:
		state = entities.SiloFailed
		s.info.Error = runErr.Error()
	}
	s.info.State = state
	s.info.ExitCode = res.ExitCode
	s.info.Stdout = res.Stdout
	s.info.Stderr = res.Stderr
	kind := s.info.Kind
	m.mu.Unlock()

	m.config.metrics.ended(kind, state)
	if state == entities.SiloFailed {
		log.Warn("silo failed", "exit_code", res.ExitCode, "error", s.info.Error)
	} else {
		log.Info("silo terminated", "exit_code", res.ExitCode)
	}
	close(s.done)
}

func (m *Manager) childIDsLocked(parent string) []string {
	var ids []string
	for id, s := range m.silos {
		if s.info.Parent == parent && !s.info.State.IsTerminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) lookupLocked(op, id string) (*silo, error) {
	s, ok := m.silos[id]
	if !ok {
		return nil, &domainerrors.SiloError{SiloID: id, Op: op, Err: domainerrors.ErrSiloNotFound}
	}
	return s, nil
}

// Info returns a snapshot of a silo.
func (m *Manager) Info(id string) (entities.SiloInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupLocked("info", id)
	if err != nil {
		return entities.SiloInfo{}, err
	}
	return snapshot(s), nil
}

func snapshot(s *silo) entities.SiloInfo {
	info := s.info
	info.Resources = len(s.resources)
	return info
}

// List returns every known silo ordered by start time.
func (m *Manager) List() []entities.SiloInfo {
	return m.filter(func(*silo) bool { return true })
}

// Children returns the silos spawned by parent ordered by start time.
func (m *Manager) Children(parent string) []entities.SiloInfo {
	return m.filter(func(s *silo) bool { return s.info.Parent == parent })
}

func (m *Manager) filter(keep func(*silo) bool) []entities.SiloInfo {
	m.mu.Lock()
	out := make([]entities.SiloInfo, 0, len(m.silos))
	for _, s := range m.silos {
		if keep(s) {
			out = append(out, snapshot(s))
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Suspend pauses a running silo cooperatively. The silo stays schedulable
// and keeps its resources; it only stops accepting calls until Resume.
func (m *Manager) Suspend(id string) error {
	return m.transition("suspend", id, entities.SiloRunning, entities.SiloSuspended)
}

// Resume returns a suspended silo to running.
func (m *Manager) Resume(id string) error {
	return m.transition("resume", id, entities.SiloSuspended, entities.SiloRunning)
}

func (m *Manager) transition(op, id string, from, to entities.SiloState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupLocked(op, id)
	if err != nil {
		return err
	}
	if s.info.State != from || s.finishing {
		return &domainerrors.SiloError{SiloID: id, Op: op,
			Err: fmt.Errorf("%w: %s -> %s", domainerrors.ErrInvalidTransition, s.info.State, to)}
	}
	if err := validateTransition(from, to); err != nil {
		return &domainerrors.SiloError{SiloID: id, Op: op, Err: err}
	}
	s.info.State = to
	return nil
}

// Terminate stops a silo cooperatively and waits until it has released
// everything it owns. A process silo gets SIGTERM and keeps the output it
// wrote. Terminating a silo that already ended is a no-op.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	return m.stop(ctx, "terminate", id, nil)
}

// Fail stops a silo on behalf of the host and records cause. Boundaries
// that can be killed outright are, without a grace period. The silo ends
// in the failed state.
func (m *Manager) Fail(ctx context.Context, id string, cause error) error {
	if cause == nil {
		cause = errors.New("cancelled by host")
	}
	return m.stop(ctx, "fail", id, cause)
}

func (m *Manager) stop(ctx context.Context, op, id string, cause error) error {
	m.mu.Lock()
	s, err := m.lookupLocked(op, id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	var hard killer
	if !s.info.State.IsTerminal() && !s.finishing {
		s.stopping = true
		if cause != nil && s.failCause == nil {
			s.failCause = cause
		}
		if k, ok := s.boundary.(killer); ok && cause != nil {
			hard = k
		}
		s.cancel()
	}
	done := s.done
	m.mu.Unlock()

	if hard != nil {
		hard.Kill()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return &domainerrors.SiloError{SiloID: id, Op: op, Err: ctx.Err()}
	}
}

// Wait blocks until the silo reaches a terminal state and returns its
// final snapshot, including captured output.
func (m *Manager) Wait(ctx context.Context, id string) (entities.SiloInfo, error) {
	m.mu.Lock()
	s, err := m.lookupLocked("wait", id)
	m.mu.Unlock()
	if err != nil {
		return entities.SiloInfo{}, err
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return entities.SiloInfo{}, &domainerrors.SiloError{SiloID: id, Op: "wait", Err: ctx.Err()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(s), nil
}

// Remove forgets a silo that has ended.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupLocked("remove", id)
	if err != nil {
		return err
	}
	if !s.info.State.IsTerminal() {
		return &domainerrors.SiloError{SiloID: id, Op: "remove", Err: fmt.Errorf("silo is %s", s.info.State)}
	}
	delete(m.silos, id)
	return nil
}

// Call sends a request to the component hosted by a running silo.
func (m *Manager) Call(ctx context.Context, id, fn string, payload []byte) ([]byte, error) {
	m.mu.Lock()
	s, err := m.lookupLocked("call", id)
	if err == nil && (s.info.State != entities.SiloRunning || s.finishing) {
		err = &domainerrors.SiloError{SiloID: id, Op: "call", Err: fmt.Errorf("silo is %s", s.info.State)}
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out, err := s.boundary.Call(hostfuncs.WithCaller(ctx, id), fn, payload)
	if err != nil {
		return nil, &domainerrors.SiloError{SiloID: id, Op: "call", Err: err}
	}
	return out, nil
}

// Attach hands ownership of r to a silo and returns its handle. r is
// closed when detached or when the silo ends.
func (m *Manager) Attach(siloID string, r io.Closer) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupLocked("attach", siloID)
	if err != nil {
		return 0, err
	}
	if s.info.State.IsTerminal() || s.finishing {
		return 0, &domainerrors.SiloError{SiloID: siloID, Op: "attach", Err: fmt.Errorf("silo is %s", s.info.State)}
	}
	s.nextHandle++
	s.resources = append(s.resources, resource{closer: r, handle: s.nextHandle})
	m.config.metrics.resourceDelta(1)
	return s.nextHandle, nil
}

// Resource looks up a handle held by a silo.
func (m *Manager) Resource(siloID string, handle uint32) (io.Closer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupLocked("resource", siloID)
	if err != nil {
		return nil, err
	}
	for _, r := range s.resources {
		if r.handle == handle {
			return r.closer, nil
		}
	}
	return nil, &domainerrors.SiloError{SiloID: siloID, Op: "resource", Err: fmt.Errorf("unknown handle %d", handle)}
}

// Detach closes and forgets a handle.
func (m *Manager) Detach(siloID string, handle uint32) error {
	m.mu.Lock()
	s, err := m.lookupLocked("detach", siloID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	var closer io.Closer
	for i, r := range s.resources {
		if r.handle == handle {
			closer = r.closer
			s.resources = append(s.resources[:i], s.resources[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if closer == nil {
		return &domainerrors.SiloError{SiloID: siloID, Op: "detach", Err: fmt.Errorf("unknown handle %d", handle)}
	}
	m.config.metrics.resourceDelta(-1)
	return closer.Close()
}

// SpawnThread starts a component function in a thread silo owned by parent.
func (m *Manager) SpawnThread(ctx context.Context, parent string, spec entities.ThreadSpec) (entities.SiloInfo, error) {
	if m.config.threads == nil {
		return entities.SiloInfo{}, &domainerrors.SpawnError{
			Kind: entities.SiloThread, Target: spec.Component, Err: domainerrors.ErrUnsupported,
		}
	}
	start, err := m.config.threads.ResolveThread(ctx, spec)
	if err != nil {
		return entities.SiloInfo{}, &domainerrors.SpawnError{Kind: entities.SiloThread, Target: spec.Component, Err: err}
	}
	return m.Spawn(ctx, Spec{
		Start:    start,
		Kind:     entities.SiloThread,
		Owner:    spec.Component,
		Parent:   parent,
		Function: spec.Function,
		Args:     spec.Args,
	})
}

// SpawnProcess starts a host command in a process silo owned by parent.
func (m *Manager) SpawnProcess(ctx context.Context, parent string, spec entities.ProcessSpec) (entities.SiloInfo, error) {
	opts := append([]hostfuncs.ProcessOption{
		hostfuncs.WithMaxOutputSize(m.config.maxOutput),
		hostfuncs.WithStopTimeout(m.config.stopTimeout),
	}, m.config.processOpts...)
	return m.Spawn(ctx, Spec{
		Start:  ProcessStarter(spec, m.config.envPermit, opts...),
		Kind:   entities.SiloProcess,
		Owner:  spec.Command,
		Parent: parent,
		Args:   spec.Args,
	})
}

// Shutdown terminates every silo and refuses new ones.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	var roots []string
	for id, s := range m.silos {
		if s.info.State.IsTerminal() {
			continue
		}
		if _, hasParent := m.silos[s.info.Parent]; s.info.Parent == "" || !hasParent {
			roots = append(roots, id)
		}
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range roots {
		g.Go(func() error {
			return m.Terminate(gctx, id)
		})
	}
	return g.Wait()
}

var (
	_ hostfuncs.SiloService   = (*Manager)(nil)
	_ hostfuncs.ResourceTable = (*Manager)(nil)
)
