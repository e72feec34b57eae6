package wazero

import (
	"context"

	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/tetratelabs/wazero/api"
)

// WithSiloID records the calling silo in the context.
func WithSiloID(ctx context.Context, id string) context.Context {
	return hostfuncs.WithCaller(ctx, id)
}

// GetSiloID returns the silo a call comes from. The module instance name,
// which the executor sets to the silo id, wins over the context: a call
// context may have been handed down from another silo.
func GetSiloID(ctx context.Context, mod api.Module) string {
	if name := mod.Name(); name != "" {
		return name
	}
	id, _ := hostfuncs.CallerFrom(ctx)
	return id
}
