package hostfuncs

import (
	"context"

	"github.com/hayride-dev/hayride-go/contract"
)

// HostContext is the context a handler runs in. It carries the invoked
// function and the silo that called it.
type HostContext interface {
	context.Context

	// FunctionName is the qualified name the registry dispatched on.
	FunctionName() string

	// Function is FunctionName parsed. The zero value means the name was
	// not qualified.
	Function() contract.Qualified

	// Caller is the calling silo, or "" for host-initiated calls.
	Caller() string
}

type hostContext struct {
	context.Context
	name string
	fn   contract.Qualified
}

// NewHostContext wraps ctx for one invocation of name.
func NewHostContext(ctx context.Context, name string) HostContext {
	fn, _ := contract.ParseQualified(name)
	return &hostContext{Context: ctx, name: name, fn: fn}
}

func (c *hostContext) FunctionName() string { return c.name }

func (c *hostContext) Function() contract.Qualified { return c.fn }

func (c *hostContext) Caller() string {
	id, _ := CallerFrom(c.Context)
	return id
}

// HostContextFrom returns ctx when it already is a HostContext and wraps it
// otherwise.
func HostContextFrom(ctx context.Context, name string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, name)
}

type callerKey struct{}

// WithCaller records the silo on whose behalf a host function runs.
func WithCaller(ctx context.Context, siloID string) context.Context {
	return context.WithValue(ctx, callerKey{}, siloID)
}

// CallerFrom returns the calling silo recorded by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerKey{}).(string)
	return id, ok && id != ""
}
