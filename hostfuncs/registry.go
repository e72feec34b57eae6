package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hayride-dev/hayride-go/contract"
)

// HandlerRegistry maps qualified function names ("ns:pkg/iface@ver#func")
// to handlers. It is immutable after NewRegistry returns, so lookups need
// no locking.
type HandlerRegistry struct {
	handlers map[string]ByteHandler
	names    []string

	// byIface groups function names under their interface, both sorted.
	byIface map[string][]string
	ifaces  []contract.InterfaceRef
}

type registryBuilder struct {
	entries    map[string]ByteHandler
	middleware []Middleware
	errs       []error
}

func (b *registryBuilder) fail(err error) {
	b.errs = append(b.errs, err)
}

func (b *registryBuilder) add(name string, h ByteHandler) {
	if name == "" {
		b.fail(errors.New("handler name cannot be empty"))
		return
	}
	if _, err := contract.ParseQualified(name); err != nil {
		b.fail(fmt.Errorf("invalid handler name: %w", err))
		return
	}
	if _, dup := b.entries[name]; dup {
		b.fail(fmt.Errorf("duplicate handler name: %q", name))
		return
	}
	b.entries[name] = h
}

// chain wraps h so that the first registered middleware runs outermost.
func (b *registryBuilder) chain(h ByteHandler) ByteHandler {
	for i := len(b.middleware) - 1; i >= 0; i-- {
		h = b.middleware[i](h)
	}
	return h
}

// NewRegistry builds a registry from opts. Every registration problem is
// reported, joined into one error.
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(CoreBundle(version, logger)),
//	    WithHandler("acme:tools/clock@1.0.0#now", nowHandler),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{entries: make(map[string]ByteHandler)}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	r := &HandlerRegistry{
		handlers: make(map[string]ByteHandler, len(b.entries)),
		names:    make([]string, 0, len(b.entries)),
		byIface:  make(map[string][]string),
	}
	for name, h := range b.entries {
		r.handlers[name] = b.chain(h)
		r.names = append(r.names, name)

		q, _ := contract.ParseQualified(name)
		key := q.Interface.String()
		if _, seen := r.byIface[key]; !seen {
			r.ifaces = append(r.ifaces, q.Interface)
		}
		r.byIface[key] = append(r.byIface[key], q.Func)
	}
	slices.Sort(r.names)
	for _, fns := range r.byIface {
		slices.Sort(fns)
	}
	slices.SortFunc(r.ifaces, func(a, b contract.InterfaceRef) int {
		return strings.Compare(a.String(), b.String())
	})
	return r, nil
}

// Invoke calls the handler registered under name. An unknown name yields a
// NOT_FOUND error response, not a Go error.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	h, ok := r.handlers[name]
	if !ok {
		return NewNotFoundError(name).ToJSON(), nil
	}
	return h(HostContextFrom(ctx, name), payload)
}

func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered qualified names in sorted order.
func (r *HandlerRegistry) Names() []string {
	return slices.Clone(r.names)
}

// Interfaces returns every interface with at least one handler, sorted.
func (r *HandlerRegistry) Interfaces() []contract.InterfaceRef {
	return slices.Clone(r.ifaces)
}

// Functions returns the function names registered under exactly iface.
func (r *HandlerRegistry) Functions(iface contract.InterfaceRef) []string {
	return slices.Clone(r.byIface[iface.String()])
}

// Resolve finds the registered interface that best satisfies want.
func (r *HandlerRegistry) Resolve(want contract.InterfaceRef) (contract.InterfaceRef, bool) {
	return contract.BestMatch(want, r.ifaces)
}

// WithByteHandler registers a raw handler. WithHandler covers the JSON
// plumbing for typed functions.
func WithByteHandler(name string, handler ByteHandler) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, handler)
	}
}

// WithMiddleware appends middleware. The first one added runs outermost.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
