package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	wazeroadapter "github.com/hayride-dev/hayride-go/infrastructure/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

// Instance is a running component. Calls are serialized: a wasm instance
// executes one export at a time.
type Instance struct {
	module    api.Module
	component *Component
	mu        sync.Mutex
}

// Name returns the instance name given at instantiation.
func (i *Instance) Name() string {
	return i.module.Name()
}

// Component returns the component the instance was created from.
func (i *Instance) Component() *Component {
	return i.component
}

// Call invokes the export fn with input and returns the raw response. fn is
// either a full export name or a function name unique among the exports.
func (i *Instance) Call(ctx context.Context, fn string, input []byte) ([]byte, error) {
	name, ok := i.component.ResolveFunction(fn)
	if !ok {
		return nil, fmt.Errorf("export %q not found", fn)
	}
	f := i.module.ExportedFunction(name)
	if f == nil {
		return nil, fmt.Errorf("export %q not found", name)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	packed, err := wazeroadapter.WriteGuest(ctx, i.module, input)
	if err != nil {
		return nil, fmt.Errorf("failed to write input to guest memory: %w", err)
	}
	results, err := f.Call(ctx, packed)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return wazeroadapter.ReadGuest(i.module, results[0])
}

// CallJSON marshals req, calls fn and unmarshals the response into resp.
func (i *Instance) CallJSON(ctx context.Context, fn string, req, resp any) error {
	var input []byte
	if req != nil {
		var err error
		if input, err = json.Marshal(req); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	data, err := i.Call(ctx, fn, input)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("null response from %s", fn)
	}
	return json.Unmarshal(data, resp)
}

// Run executes the component's entry point to completion. A WASI exit with
// status 0 is success. A run export returning a non-zero result is
// reported as an exit error carrying that code.
func (i *Instance) Run(ctx context.Context) error {
	entry := i.component.Entry
	if entry == "" {
		return fmt.Errorf("%s has no entry point", i.component.Name)
	}
	f := i.module.ExportedFunction(entry)
	if f == nil {
		return fmt.Errorf("export %q not found", entry)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	var params []uint64
	if len(f.Definition().ParamTypes()) == 1 {
		params = []uint64{0}
	}
	results, err := f.Call(ctx, params...)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			return nil
		}
		return err
	}
	if len(results) > 0 && uint32(results[0]) != 0 {
		return sys.NewExitError(uint32(results[0])) //nolint:gosec // G115: result is an i32 status
	}
	return nil
}

// Close tears the instance down.
func (i *Instance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}

// ExitCode extracts a process-style exit status from a Run error: 0 for
// nil, the WASI exit code when there is one, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.ExitCode())
	}
	return 1
}
