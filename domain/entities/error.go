package entities

import "strings"

// Error types carried in ErrorDetail.Type.
const (
	ErrorTypeConfig     = "config"
	ErrorTypeLoad       = "load"
	ErrorTypeSilo       = "silo"
	ErrorTypeStream     = "stream"
	ErrorTypeTool       = "tool"
	ErrorTypeBackend    = "backend"
	ErrorTypeDatabase   = "database"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeValidation = "validation"
	ErrorTypeInternal   = "internal"
)

// ErrorDetail is the in-band error format. Host functions return it to
// guests inside an error response and the agent loop embeds it in failed
// tool outputs.
type ErrorDetail struct {
	// Wrapped is the cause, when it has a detail of its own.
	Wrapped *ErrorDetail `json:"wrapped,omitempty"`

	Details map[string]any `json:"details,omitempty"`

	Message string `json:"message"`
	Type    string `json:"type"`

	// Code is machine-readable, e.g. a config error kind or an interface.
	Code string `json:"code"`

	IsTimeout  bool `json:"is_timeout,omitempty"`
	IsNotFound bool `json:"is_not_found,omitempty"`
}

// Error renders "type: message [code]: cause". Internal errors omit the type.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	if e.Type != "" && e.Type != ErrorTypeInternal {
		b.WriteString(e.Type)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

// NewErrorDetail creates a detail of the given type.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{Type: errorType, Message: message}
}

// WithCode sets the code and returns the receiver.
func (e *ErrorDetail) WithCode(code string) *ErrorDetail {
	e.Code = code
	return e
}

// Wrap records cause and returns the receiver.
func (e *ErrorDetail) Wrap(cause *ErrorDetail) *ErrorDetail {
	e.Wrapped = cause
	return e
}

// Root returns the innermost detail of the chain.
func (e *ErrorDetail) Root() *ErrorDetail {
	for e != nil && e.Wrapped != nil {
		e = e.Wrapped
	}
	return e
}
