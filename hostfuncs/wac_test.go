package hostfuncs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockComposer struct {
	mock.Mock
}

func (m *mockComposer) Compose(ctx context.Context, components []string) (CompositionPlan, error) {
	args := m.Called(components)
	return args.Get(0).(CompositionPlan), args.Error(1)
}

func (m *mockComposer) Plug(ctx context.Context, socket string, plugs []string) (CompositionPlan, error) {
	args := m.Called(socket, plugs)
	return args.Get(0).(CompositionPlan), args.Error(1)
}

func TestWacBundle(t *testing.T) {
	c := &mockComposer{}
	reg, err := NewRegistry(WithBundle(WacBundle(c)))
	require.NoError(t, err)

	plan := CompositionPlan{
		Order: []string{"b", "a"},
		Links: []CompositionLink{{Importer: "a", Provider: "b", Import: "x:y/z@1.0.0", Export: "x:y/z@1.0.0"}},
	}
	c.On("Compose", []string{"a", "b"}).Return(plan, nil)
	c.On("Plug", "a", []string{"b"}).Return(CompositionPlan{}, errors.New("unused plug"))

	var got CompositionPlan
	invokeJSON(t, reg, "s", "hayride:wac/wac@0.0.65#compose", ComposeRequest{Components: []string{"a", "b"}}, &got)
	assert.Equal(t, plan, got)

	var fromDoc CompositionPlan
	invokeJSON(t, reg, "s", "hayride:wac/wac@0.0.65#compose", ComposeRequest{Document: "- a\n- b\n"}, &fromDoc)
	assert.Equal(t, plan, fromDoc)

	var resp ErrorResponse
	invokeJSON(t, reg, "s", "hayride:wac/wac@0.0.65#plug", PlugRequest{Socket: "a", Plugs: []string{"b"}}, &resp)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error)
	assert.Contains(t, resp.Message, "unused plug")
}
