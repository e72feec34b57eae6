package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorDetail_Error(t *testing.T) {
	tests := []struct {
		name string
		d    *ErrorDetail
		want string
	}{
		{"nil", nil, ""},
		{"internal", NewErrorDetail(ErrorTypeInternal, "boom"), "boom"},
		{"typed", NewErrorDetail(ErrorTypeStream, "closed"), "stream: closed"},
		{"code", NewErrorDetail(ErrorTypeTool, "failed").WithCode("tool_not_found"), "tool: failed [tool_not_found]"},
		{
			"wrapped",
			NewErrorDetail(ErrorTypeSilo, "spawn").Wrap(NewErrorDetail(ErrorTypeLoad, "bad export")),
			"silo: spawn: load: bad export",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Error())
		})
	}
}

func TestErrorDetail_Root(t *testing.T) {
	inner := NewErrorDetail(ErrorTypeBackend, "no model")
	outer := NewErrorDetail(ErrorTypeTool, "call").Wrap(NewErrorDetail(ErrorTypeSilo, "x").Wrap(inner))
	assert.Same(t, inner, outer.Root())
	assert.Same(t, inner, inner.Root())

	var none *ErrorDetail
	assert.Nil(t, none.Root())
}

func TestErrorDetail_JSON(t *testing.T) {
	d := NewErrorDetail(ErrorTypeTimeout, "slow").WithCode("tool")
	d.IsTimeout = true

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"slow","type":"timeout","code":"tool","is_timeout":true}`, string(data))
}
