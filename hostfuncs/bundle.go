package hostfuncs

import (
	"maps"

	"github.com/hayride-dev/hayride-go/contract"
)

// HostFuncBundle is a group of host functions registered together, usually
// every function of one or more interfaces.
type HostFuncBundle interface {
	Handlers() map[string]ByteHandler
}

// HandlerSet is a fixed bundle keyed by qualified name.
type HandlerSet map[string]ByteHandler

func (s HandlerSet) Handlers() map[string]ByteHandler { return s }

// CombineBundles merges bundles into one set. Later bundles win on a name
// clash; use separate WithBundle options to have clashes reported instead.
func CombineBundles(bundles ...HostFuncBundle) HostFuncBundle {
	merged := make(HandlerSet)
	for _, b := range bundles {
		maps.Copy(merged, b.Handlers())
	}
	return merged
}

// WithBundle registers every handler of bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, h := range bundle.Handlers() {
			b.add(name, h)
		}
	}
}

// WithHandler registers a typed function behind NewJSONHandler.
//
//	WithHandler("acme:tools/math@1.0.0#double", func(ctx context.Context, req DoubleRequest) DoubleResponse {
//	    return DoubleResponse{Result: req.Input * 2}
//	})
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return WithByteHandler(name, NewJSONHandler(fn))
}

// WithHandlerE registers a fallible typed function behind NewJSONHandlerE.
func WithHandlerE[Req any, Resp any](name string, fn HostFuncE[Req, Resp]) RegistryOption {
	return WithByteHandler(name, NewJSONHandlerE(fn))
}

func qualify(iface contract.InterfaceRef, fn string) string {
	return contract.Qualified{Interface: iface, Func: fn}.String()
}
