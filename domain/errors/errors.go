// Package errors provides the runtime's typed error taxonomy.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// Sentinel errors. Typed errors below wrap these where a caller needs to
// branch on the condition rather than the context.
var (
	ErrStreamClosed      = stdErrors.New("stream closed")
	ErrEndOfStream       = stdErrors.New("end of stream")
	ErrResourceExhausted = stdErrors.New("resource exhausted")
	ErrSiloNotFound      = stdErrors.New("silo not found")
	ErrInvalidTransition = stdErrors.New("invalid silo state transition")
	ErrToolNotFound      = stdErrors.New("tool not found")
	ErrModelNotFound     = stdErrors.New("model not found")
	ErrInvalidModelName  = stdErrors.New("invalid model name")
	ErrComponentNotFound = stdErrors.New("component not found")
	ErrUnsupported       = stdErrors.New("operation not supported")
	ErrTableNotFound     = stdErrors.New("retrieval table not found")
	ErrMaxIterations     = stdErrors.New("maximum iterations reached")
)

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail. New error types only need to implement this
// interface without modifying ToErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to the structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    entities.ErrorTypeInternal,
	}
}

// ConfigErrorKind classifies a launch-time configuration failure.
type ConfigErrorKind string

const (
	KindUnresolvedImport   ConfigErrorKind = "unresolved_import"
	KindVersionMismatch    ConfigErrorKind = "version_mismatch"
	KindCycle              ConfigErrorKind = "cycle"
	KindDuplicateComponent ConfigErrorKind = "duplicate_component"
	KindInvalid            ConfigErrorKind = "invalid"
)

// ConfigError is a fatal configuration failure detected before any silo starts.
type ConfigError struct {
	Err        error
	Kind       ConfigErrorKind
	Component  string
	Interface  string
	Field      string
	Candidates []string
	Nodes      []string
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case KindUnresolvedImport:
		return fmt.Sprintf("component %q: unresolved import %s", e.Component, e.Interface)
	case KindVersionMismatch:
		return fmt.Sprintf("component %q: unresolved import %s: version mismatch with %s",
			e.Component, e.Interface, strings.Join(e.Candidates, ", "))
	case KindCycle:
		return fmt.Sprintf("composition cycle between components: %s", strings.Join(e.Nodes, ", "))
	case KindDuplicateComponent:
		return fmt.Sprintf("duplicate component %q", e.Component)
	}
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeConfig, Code: string(e.Kind)}
	if e.Interface != "" {
		d.Details = map[string]any{"interface": e.Interface}
	}
	return d
}

// LoadError reports a component binary that failed contract validation.
type LoadError struct {
	Err       error
	Component string
	World     string
	Interface string
	Reason    string
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s", e.Component)
	if e.World != "" {
		msg += fmt.Sprintf(" (world %s)", e.World)
	}
	if e.Interface != "" {
		msg += fmt.Sprintf(": %s %s", e.Reason, e.Interface)
	} else if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *LoadError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeLoad, Code: e.Interface}
}

// SpawnError is a recoverable failure to create a silo.
type SpawnError struct {
	Err    error
	Kind   entities.SiloKind
	Target string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s silo for %s: %v", e.Kind, e.Target, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SpawnError) ToErrorDetail() *entities.ErrorDetail {
	code := "spawn_failed"
	if stdErrors.Is(e.Err, ErrResourceExhausted) {
		code = "resource_exhausted"
	}
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeSilo, Code: code}
}

// SiloError is a runtime failure of an operation against an existing silo.
type SiloError struct {
	Err    error
	SiloID string
	Op     string
}

func (e *SiloError) Error() string {
	return fmt.Sprintf("silo %s: %s: %v", e.SiloID, e.Op, e.Err)
}

func (e *SiloError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SiloError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message:    e.Error(),
		Type:       entities.ErrorTypeSilo,
		Code:       e.Op,
		IsNotFound: stdErrors.Is(e.Err, ErrSiloNotFound),
	}
}

// StreamError is a producer or consumer fault that moved a stream into its error state.
type StreamError struct {
	Err      error
	StreamID string
	Kind     entities.StreamKind
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream %s failed: %v", e.Kind, e.StreamID, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *StreamError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeStream, Code: string(e.Kind)}
}

// ToolError is a tool dispatch failure. The agent loop converts it to an
// error-carrying tool output.
type ToolError struct {
	Err    error
	Tool   string
	CallID string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ToolError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeTool, Code: "tool_call_failed"}
	if stdErrors.Is(e.Err, ErrToolNotFound) {
		d.Code = "tool_not_found"
		d.IsNotFound = true
	}
	var te *TimeoutError
	if stdErrors.As(e.Err, &te) {
		d.IsTimeout = true
	}
	return d
}

// BackendError is a model backend failure. It is terminal for the request.
type BackendError struct {
	Err     error
	Backend string
	Op      string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *BackendError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeBackend, Code: e.Op}
	if stdErrors.Is(e.Err, ErrModelNotFound) {
		d.IsNotFound = true
	}
	return d
}

// Database operations reported in DatabaseError.Op.
const (
	DBOpConnect  = "connection_failed"
	DBOpQuery    = "query_failed"
	DBOpExecute  = "execute_failed"
	DBOpClose    = "close_failed"
	DBOpTransact = "transaction_failed"
)

// DatabaseError is a failure talking to a database on behalf of a guest.
type DatabaseError struct {
	Err     error
	Dialect string
	Op      string
}

func (e *DatabaseError) Error() string {
	if e.Dialect == "" {
		return fmt.Sprintf("database %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s database %s: %v", e.Dialect, e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *DatabaseError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeDatabase, Code: e.Op}
	if stdErrors.Is(e.Err, ErrUnsupported) {
		d.Type = entities.ErrorTypeValidation
	}
	return d
}

// TimeoutError represents a timeout during an operation.
type TimeoutError struct {
	Operation string
	Target    string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s timeout after %v (target: %s)", e.Operation, e.Duration, e.Target)
	}
	return fmt.Sprintf("%s timeout after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeTimeout, Code: e.Operation, IsTimeout: true}
}

// SchemaError represents a tool parameter schema generation or validation error.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeValidation, Code: "schema"}
}
