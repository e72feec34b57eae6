package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"user", RoleUser},
		{"Assistant", RoleAssistant},
		{"system", RoleSystem},
		{"tool", RoleTool},
		{"narrator", RoleUnknown},
		{"", RoleUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRole(tt.in), tt.in)
	}
}

func TestToolInput_PreservesArgumentOrder(t *testing.T) {
	in := NewToolInput("call-1", "search").
		Set("zeta", "1").
		Set("alpha", "2").
		Set("mid", "3")

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"input":{"zeta":"1","alpha":"2","mid":"3"}`)

	var decoded ToolInput
	require.NoError(t, json.Unmarshal(data, &decoded))
	var keys []string
	for pair := decoded.Input.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)
	assert.Equal(t, map[string]string{"zeta": "1", "alpha": "2", "mid": "3"}, decoded.Arguments())
}

func TestMessage_Accessors(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []Content{
			NewTextContent("hello "),
			NewToolInputContent(NewToolInput("a", "calc")),
			NewTextContent("world"),
			NoContent(),
		},
	}

	assert.Equal(t, "hello world", msg.Text())
	require.Len(t, msg.ToolInputs(), 1)
	assert.Equal(t, "calc", msg.ToolInputs()[0].Name)
	assert.Empty(t, msg.ToolOutputs())
}

func TestCheckToolPairing(t *testing.T) {
	call := Message{Role: RoleAssistant, Content: []Content{NewToolInputContent(NewToolInput("1", "t"))}}
	result := Message{Role: RoleTool, Content: []Content{NewToolOutputContent(ToolOutput{ID: "1", Name: "t"})}}
	orphan := Message{Role: RoleTool, Content: []Content{NewToolOutputContent(ToolOutput{ID: "2", Name: "t"})}}

	t.Run("paired", func(t *testing.T) {
		assert.NoError(t, CheckToolPairing([]Message{NewUserMessage("hi"), call, result}))
	})

	t.Run("output before input", func(t *testing.T) {
		err := CheckToolPairing([]Message{result, call})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no preceding tool input")
	})

	t.Run("orphan output", func(t *testing.T) {
		assert.Error(t, CheckToolPairing([]Message{call, orphan}))
	})

	t.Run("duplicate outstanding id", func(t *testing.T) {
		err := CheckToolPairing([]Message{call, call})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("id reused after completion", func(t *testing.T) {
		assert.NoError(t, CheckToolPairing([]Message{call, result, call, result}))
	})
}

func TestTensor_Elements(t *testing.T) {
	tensor := Tensor{Type: TensorFP32, Shape: []uint32{2, 3}, Data: make([]byte, 24)}
	assert.Equal(t, 6, tensor.Elements())
	assert.Equal(t, 4, tensor.Type.ElementSize())
	assert.Equal(t, 0, Tensor{}.Elements())
}

func TestSiloState_IsTerminal(t *testing.T) {
	assert.False(t, SiloCreated.IsTerminal())
	assert.False(t, SiloRunning.IsTerminal())
	assert.False(t, SiloSuspended.IsTerminal())
	assert.True(t, SiloTerminated.IsTerminal())
	assert.True(t, SiloFailed.IsTerminal())
}
