package wazero

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Packed is a guest memory region: pointer in the high 32 bits, length in
// the low 32. Zero means no data.
type Packed uint64

// Pack builds a Packed region.
func Pack(ptr, length uint32) Packed {
	return Packed(uint64(ptr)<<32 | uint64(length))
}

func (p Packed) Ptr() uint32 { return uint32(p >> 32) } //nolint:gosec // G115: high half is a wasm32 pointer
func (p Packed) Len() uint32 { return uint32(p) }       //nolint:gosec // G115: low half is the length

// Invoker handles one guest call to fn.
type Invoker func(ctx context.Context, fn string, payload []byte) ([]byte, error)

// AdapterConfig holds the limits applied to guest calls.
type AdapterConfig struct {
	MaxRequestSize uint32
}

// AdapterOption configures RegisterModule.
type AdapterOption func(*AdapterConfig)

// WithMaxRequestSize caps the request a guest may pass. Larger requests get
// a VALIDATION_ERROR response without reaching the invoker.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{MaxRequestSize: hostfuncs.DefaultMaxRequestSize}
}

// RegisterModule instantiates host module moduleName with one (i64) -> i64
// export per entry of funcs. Calls are routed to invoke; failures are
// returned to the guest as error responses rather than traps.
func RegisterModule(ctx context.Context, runtime wazero.Runtime, moduleName string, funcs []string, invoke Invoker, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(moduleName)
	for _, fn := range funcs {
		call := &hostCall{fn: fn, invoke: invoke, maxRequest: cfg.MaxRequestSize}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(call.handle), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(fn)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module %s: %w", moduleName, err)
	}
	return nil
}

// RegisterInterface exposes the registry functions of iface under
// moduleName, the import name the guest uses. moduleName may carry an older
// compatible version than iface.
func RegisterInterface(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, moduleName string, iface contract.InterfaceRef, opts ...AdapterOption) error {
	funcs := registry.Functions(iface)
	if len(funcs) == 0 {
		return fmt.Errorf("no host functions registered for %s", iface)
	}
	invoke := func(ctx context.Context, fn string, payload []byte) ([]byte, error) {
		return registry.Invoke(ctx, contract.Qualified{Interface: iface, Func: fn}.String(), payload)
	}
	return RegisterModule(ctx, runtime, moduleName, funcs, invoke, opts...)
}

type hostCall struct {
	fn         string
	invoke     Invoker
	maxRequest uint32
}

func (c *hostCall) handle(ctx context.Context, mod api.Module, stack []uint64) {
	region := Packed(stack[0])
	ctx = WithSiloID(ctx, GetSiloID(ctx, mod))
	log := slog.With("function", c.fn)

	if region.Len() > c.maxRequest {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", region.Len(), c.maxRequest)
		log.WarnContext(ctx, "rejecting host call", "error", msg)
		stack[0] = c.reply(ctx, mod, hostfuncs.NewValidationError(msg).ToJSON())
		return
	}

	// Copied out: the guest allocator may reuse the region for the response.
	request, err := ReadGuest(mod, uint64(region))
	if err != nil {
		log.ErrorContext(ctx, "reading host call request", "error", err)
		stack[0] = c.reply(ctx, mod, hostfuncs.NewInternalError("failed to read request from guest memory").ToJSON())
		return
	}

	response, err := c.invoke(ctx, c.fn, request)
	if err != nil {
		log.ErrorContext(ctx, "host call failed", "error", err)
		response = hostfuncs.NewInternalError(err.Error()).ToJSON()
	}
	stack[0] = c.reply(ctx, mod, response)
}

func (c *hostCall) reply(ctx context.Context, mod api.Module, data []byte) uint64 {
	packed, err := WriteGuest(ctx, mod, data)
	if err != nil {
		slog.ErrorContext(ctx, "writing host call response", "function", c.fn, "error", err)
		return 0
	}
	return packed
}

var errNoAllocate = errors.New("guest module missing 'allocate' export")

// WriteGuest copies data into memory obtained from the guest's "allocate"
// export and returns the packed region. Empty data packs to 0.
func WriteGuest(ctx context.Context, mod api.Module, data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		return 0, errNoAllocate
	}
	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("guest allocate: %w", err)
	}
	if len(results) == 0 {
		return 0, errors.New("guest allocate returned no results")
	}

	region := Pack(uint32(results[0]), uint32(len(data))) //nolint:gosec // G115: wasm32 pointer, bounded length
	if !mod.Memory().Write(region.Ptr(), data) {
		return 0, fmt.Errorf("write %d bytes at %d: out of range", region.Len(), region.Ptr())
	}
	return uint64(region), nil
}

// ReadGuest returns a copy of the packed region of guest memory.
func ReadGuest(mod api.Module, packed uint64) ([]byte, error) {
	region := Packed(packed)
	if region.Len() == 0 {
		return nil, nil
	}
	view, ok := mod.Memory().Read(region.Ptr(), region.Len())
	if !ok {
		return nil, fmt.Errorf("read %d bytes at %d: out of range", region.Len(), region.Ptr())
	}
	return append([]byte(nil), view...), nil
}
