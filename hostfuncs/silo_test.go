package hostfuncs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSiloService struct {
	mock.Mock
}

func (m *mockSiloService) SpawnThread(ctx context.Context, parent string, spec entities.ThreadSpec) (entities.SiloInfo, error) {
	args := m.Called(ctx, parent, spec)
	return args.Get(0).(entities.SiloInfo), args.Error(1)
}

func (m *mockSiloService) SpawnProcess(ctx context.Context, parent string, spec entities.ProcessSpec) (entities.SiloInfo, error) {
	args := m.Called(ctx, parent, spec)
	return args.Get(0).(entities.SiloInfo), args.Error(1)
}

func (m *mockSiloService) Info(id string) (entities.SiloInfo, error) {
	args := m.Called(id)
	return args.Get(0).(entities.SiloInfo), args.Error(1)
}

func (m *mockSiloService) Terminate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockSiloService) Wait(ctx context.Context, id string) (entities.SiloInfo, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(entities.SiloInfo), args.Error(1)
}

func (m *mockSiloService) Children(parent string) []entities.SiloInfo {
	return m.Called(parent).Get(0).([]entities.SiloInfo)
}

func invokeJSON(t *testing.T, reg *HandlerRegistry, caller, name string, req any, resp any) {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	out, err := reg.Invoke(WithCaller(context.Background(), caller), name, payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, resp), string(out))
}

func TestSiloBundle_Names(t *testing.T) {
	handlers := SiloBundle(&mockSiloService{}).Handlers()
	assert.Len(t, handlers, 10)
	for _, fn := range []string{"id", "spawn", "status", "kill", "wait", "group"} {
		assert.Contains(t, handlers, "hayride:silo/threads@0.0.65#"+fn)
	}
	for _, fn := range []string{"spawn", "status", "kill", "wait"} {
		assert.Contains(t, handlers, "hayride:silo/process@0.0.65#"+fn)
	}
}

func TestSiloBundle_ThreadLifecycle(t *testing.T) {
	svc := &mockSiloService{}
	reg, err := NewRegistry(WithBundle(SiloBundle(svc)))
	require.NoError(t, err)

	spec := entities.ThreadSpec{Component: "acme:worker@1.0.0", Function: "run", Args: []string{"a"}}
	child := entities.SiloInfo{ID: "child", Kind: entities.SiloThread, State: entities.SiloRunning, Parent: "parent"}
	svc.On("SpawnThread", mock.Anything, "parent", spec).Return(child, nil)
	svc.On("Info", "child").Return(child, nil)
	svc.On("Terminate", mock.Anything, "child").Return(nil)

	var id SiloRef
	invokeJSON(t, reg, "parent", "hayride:silo/threads@0.0.65#id", Empty{}, &id)
	assert.Equal(t, "parent", id.ID)

	var spawned entities.SiloInfo
	invokeJSON(t, reg, "parent", "hayride:silo/threads@0.0.65#spawn", spec, &spawned)
	assert.Equal(t, "child", spawned.ID)

	var status entities.SiloInfo
	invokeJSON(t, reg, "parent", "hayride:silo/threads@0.0.65#status", SiloRef{ID: "child"}, &status)
	assert.Equal(t, entities.SiloRunning, status.State)

	var killed Empty
	invokeJSON(t, reg, "parent", "hayride:silo/threads@0.0.65#kill", SiloRef{ID: "child"}, &killed)

	svc.AssertExpectations(t)
}

func TestSiloBundle_ForeignSiloIsNotFound(t *testing.T) {
	svc := &mockSiloService{}
	reg, err := NewRegistry(WithBundle(SiloBundle(svc)))
	require.NoError(t, err)

	svc.On("Info", "other").Return(entities.SiloInfo{ID: "other", Parent: "someone-else"}, nil)

	var resp ErrorResponse
	invokeJSON(t, reg, "parent", "hayride:silo/threads@0.0.65#kill", SiloRef{ID: "other"}, &resp)
	assert.Equal(t, "NOT_FOUND", resp.Error)
	svc.AssertNotCalled(t, "Terminate", mock.Anything, "other")
}

func TestSiloBundle_SpawnValidation(t *testing.T) {
	svc := &mockSiloService{}
	reg, err := NewRegistry(WithBundle(SiloBundle(svc)))
	require.NoError(t, err)

	var resp ErrorResponse
	invokeJSON(t, reg, "parent", "hayride:silo/threads@0.0.65#spawn", entities.ThreadSpec{Component: "x"}, &resp)
	require.NotNil(t, resp.Detail)
	assert.Equal(t, "spawn_failed", resp.Detail.Code)

	invokeJSON(t, reg, "parent", "hayride:silo/process@0.0.65#spawn", entities.ProcessSpec{}, &resp)
	assert.Contains(t, resp.Message, "command is required")
	svc.AssertNotCalled(t, "SpawnThread", mock.Anything, mock.Anything, mock.Anything)
}

func TestSiloBundle_Group(t *testing.T) {
	svc := &mockSiloService{}
	reg, err := NewRegistry(WithBundle(SiloBundle(svc)))
	require.NoError(t, err)

	svc.On("Children", "parent").Return([]entities.SiloInfo{
		{ID: "t1", Kind: entities.SiloThread, Parent: "parent"},
		{ID: "p1", Kind: entities.SiloProcess, Parent: "parent"},
	})

	var group SiloGroup
	invokeJSON(t, reg, "parent", "hayride:silo/threads@0.0.65#group", Empty{}, &group)
	require.Len(t, group.Silos, 1)
	assert.Equal(t, "t1", group.Silos[0].ID)
}

func TestSiloBundle_ProcessWait(t *testing.T) {
	svc := &mockSiloService{}
	reg, err := NewRegistry(WithBundle(SiloBundle(svc)))
	require.NoError(t, err)

	spec := entities.ProcessSpec{Command: "echo", Args: []string{"hi"}}
	info := entities.SiloInfo{ID: "p1", Kind: entities.SiloProcess, Parent: "parent", State: entities.SiloRunning}
	done := info
	done.State = entities.SiloTerminated
	svc.On("SpawnProcess", mock.Anything, "parent", spec).Return(info, nil)
	svc.On("Info", "p1").Return(info, nil)
	svc.On("Wait", mock.Anything, "p1").Return(done, nil)

	var spawned, waited entities.SiloInfo
	invokeJSON(t, reg, "parent", "hayride:silo/process@0.0.65#spawn", spec, &spawned)
	invokeJSON(t, reg, "parent", "hayride:silo/process@0.0.65#wait", SiloRef{ID: "p1"}, &waited)
	assert.Equal(t, entities.SiloTerminated, waited.State)
	svc.AssertExpectations(t)
}
