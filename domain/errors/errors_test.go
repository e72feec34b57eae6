package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "unresolved",
			err:  &ConfigError{Kind: KindUnresolvedImport, Component: "a", Interface: "test:tool/tool@2.0.0"},
			want: `component "a": unresolved import test:tool/tool@2.0.0`,
		},
		{
			name: "version mismatch",
			err: &ConfigError{
				Kind:       KindVersionMismatch,
				Component:  "a",
				Interface:  "test:tool/tool@2.0.0",
				Candidates: []string{"test:tool/tool@1.0.0"},
			},
			want: `component "a": unresolved import test:tool/tool@2.0.0: version mismatch with test:tool/tool@1.0.0`,
		},
		{
			name: "cycle",
			err:  &ConfigError{Kind: KindCycle, Nodes: []string{"a", "b"}},
			want: "composition cycle between components: a, b",
		},
		{
			name: "field",
			err:  &ConfigError{Kind: KindInvalid, Field: "paths.registry", Err: fmt.Errorf("required")},
			want: "config validation failed for field 'paths.registry': required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			detail := tt.err.ToErrorDetail()
			assert.Equal(t, "config", detail.Type)
			assert.Equal(t, string(tt.err.Kind), detail.Code)
		})
	}
}

func TestSpawnError_ResourceExhausted(t *testing.T) {
	err := &SpawnError{Kind: entities.SiloThread, Target: "demo:tool@1.0.0", Err: ErrResourceExhausted}

	assert.True(t, errors.Is(err, ErrResourceExhausted))
	assert.Equal(t, "resource_exhausted", err.ToErrorDetail().Code)
	assert.Equal(t, "silo", err.ToErrorDetail().Type)
}

func TestSiloError_NotFound(t *testing.T) {
	err := &SiloError{SiloID: "abc", Op: "terminate", Err: ErrSiloNotFound}

	assert.Equal(t, "silo abc: terminate: silo not found", err.Error())
	assert.True(t, err.ToErrorDetail().IsNotFound)
}

func TestStreamError(t *testing.T) {
	cause := fmt.Errorf("producer crashed")
	err := &StreamError{StreamID: "s1", Kind: entities.StreamInference, Err: cause}

	assert.Equal(t, "inference stream s1 failed: producer crashed", err.Error())
	assert.True(t, errors.Is(err, cause))

	var se *StreamError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &se))
	assert.Equal(t, "s1", se.StreamID)
}

func TestToolError_Detail(t *testing.T) {
	notFound := &ToolError{Tool: "search", CallID: "1", Err: ErrToolNotFound}
	assert.Equal(t, "tool_not_found", notFound.ToErrorDetail().Code)
	assert.True(t, notFound.ToErrorDetail().IsNotFound)

	timeout := &ToolError{Tool: "search", CallID: "2", Err: &TimeoutError{Operation: "dispatch", Duration: time.Second}}
	assert.True(t, timeout.ToErrorDetail().IsTimeout)
	assert.Equal(t, "tool_call_failed", timeout.ToErrorDetail().Code)
}

func TestBackendError(t *testing.T) {
	err := &BackendError{Backend: "llama", Op: "infer", Err: ErrModelNotFound}
	assert.Equal(t, "backend llama infer failed: model not found", err.Error())
	assert.True(t, err.ToErrorDetail().IsNotFound)
}

func TestDatabaseError(t *testing.T) {
	err := &DatabaseError{Dialect: "sqlite", Op: DBOpQuery, Err: errors.New("no such table: notes")}
	assert.Equal(t, "sqlite database query_failed: no such table: notes", err.Error())
	d := err.ToErrorDetail()
	assert.Equal(t, entities.ErrorTypeDatabase, d.Type)
	assert.Equal(t, DBOpQuery, d.Code)

	unsupported := &DatabaseError{Op: DBOpConnect, Err: ErrUnsupported}
	assert.Equal(t, "database connection_failed: operation not supported", unsupported.Error())
	assert.Equal(t, entities.ErrorTypeValidation, unsupported.ToErrorDetail().Type)
}

func TestLoadError(t *testing.T) {
	err := &LoadError{Component: "demo", World: "cli", Reason: "unsupported import", Interface: "acme:x/y@1.0.0"}
	assert.Equal(t, "load demo (world cli): unsupported import acme:x/y@1.0.0", err.Error())
	assert.Equal(t, "load", err.ToErrorDetail().Type)
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Operation: "tool_dispatch", Duration: 5 * time.Second, Target: "search"}

	assert.Equal(t, "tool_dispatch timeout after 5s (target: search)", err.Error())
	assert.True(t, err.Timeout())
	assert.True(t, err.ToErrorDetail().IsTimeout)
}

func TestToErrorDetail(t *testing.T) {
	assert.Nil(t, ToErrorDetail(nil))

	generic := ToErrorDetail(fmt.Errorf("boom"))
	assert.Equal(t, "internal", generic.Type)
	assert.Equal(t, "boom", generic.Message)

	wrapped := ToErrorDetail(fmt.Errorf("outer: %w", &SchemaError{Type: "calc", Err: fmt.Errorf("bad")}))
	assert.Equal(t, "validation", wrapped.Type)

	existing := entities.NewErrorDetail("stream", "closed").WithCode("x")
	assert.Same(t, existing, ToErrorDetail(existing))
}
