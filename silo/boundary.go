package silo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/host"
	"github.com/hayride-dev/hayride-go/hostfuncs"
)

// Result is what a silo's hosted work produced when it finished.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Boundary is the isolation mechanism a silo runs behind.
type Boundary interface {
	// Run blocks until the hosted work finishes or ctx ends. A boundary
	// that only serves calls returns when ctx ends.
	Run(ctx context.Context) (Result, error)

	// Call serves one request into the hosted component.
	Call(ctx context.Context, fn string, payload []byte) ([]byte, error)

	// Close releases the boundary, stopping hosted work still running.
	Close(ctx context.Context) error
}

// killer is implemented by boundaries that can end their work at once
// rather than cooperatively. Failing a silo uses it.
type killer interface {
	Kill()
}

// Starter creates the boundary for a new silo. ctx lives as long as the
// silo does and id is the silo id the boundary should identify as.
type Starter func(ctx context.Context, id string) (Boundary, error)

// threadBoundary runs a component instance on a goroutine.
type threadBoundary struct {
	instance *host.Instance
	stdout   *hostfuncs.BoundedBuffer
	stderr   *hostfuncs.BoundedBuffer
	function string
	args     []string
}

// ThreadStarter instantiates c in exec under the silo id. With a function
// name the silo calls it once with args as a JSON array; without one it
// runs the component's entry point, or serves calls until terminated when
// the component has none.
func ThreadStarter(exec *host.Executor, c *host.Component, function string, args []string, maxOutput int) Starter {
	return func(ctx context.Context, id string) (Boundary, error) {
		b := &threadBoundary{
			stdout:   hostfuncs.NewBoundedBuffer(maxOutput),
			stderr:   hostfuncs.NewBoundedBuffer(maxOutput),
			function: function,
			args:     args,
		}
		inst, err := exec.Instantiate(ctx, c, id,
			host.WithStdio(b.stdout, b.stderr),
			host.WithArgs(append([]string{c.Name}, args...)...),
		)
		if err != nil {
			return nil, err
		}
		b.instance = inst
		return b, nil
	}
}

func (b *threadBoundary) Run(ctx context.Context) (Result, error) {
	switch {
	case b.function != "":
		payload, err := json.Marshal(b.args)
		if err != nil {
			return Result{}, err
		}
		out, err := b.instance.Call(ctx, b.function, payload)
		res := b.result(0)
		res.Stdout += string(out)
		if err != nil {
			res.ExitCode = 1
		}
		return res, err
	case b.instance.Component().Kind == host.KindCLI:
		err := b.instance.Run(ctx)
		return b.result(host.ExitCode(err)), err
	default:
		<-ctx.Done()
		return b.result(0), ctx.Err()
	}
}

func (b *threadBoundary) result(code int) Result {
	return Result{Stdout: b.stdout.String(), Stderr: b.stderr.String(), ExitCode: code}
}

func (b *threadBoundary) Call(ctx context.Context, fn string, payload []byte) ([]byte, error) {
	return b.instance.Call(ctx, fn, payload)
}

func (b *threadBoundary) Close(ctx context.Context) error {
	return b.instance.Close(ctx)
}

// processBoundary runs a host command in its own OS process.
type processBoundary struct {
	process *hostfuncs.Process
}

// ProcessStarter launches spec. The process is stopped when the silo ends
// and killed outright when the silo fails. Its environment holds only the
// entries of spec.Env that pass the policy for the silo id and permit.
func ProcessStarter(spec entities.ProcessSpec, permit hostfuncs.EnvPermit, opts ...hostfuncs.ProcessOption) Starter {
	return func(ctx context.Context, id string) (Boundary, error) {
		all := append(append([]hostfuncs.ProcessOption{}, opts...), hostfuncs.WithEnvPermit(id, permit))
		p, err := hostfuncs.StartProcess(ctx, spec, all...)
		if err != nil {
			return nil, err
		}
		return &processBoundary{process: p}, nil
	}
}

func (b *processBoundary) Run(ctx context.Context) (Result, error) {
	res, err := b.process.Wait(ctx)
	out := Result{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}
	if err != nil {
		return out, err
	}
	if res.ExitCode != 0 {
		return out, fmt.Errorf("exit status %d", res.ExitCode)
	}
	return out, nil
}

func (b *processBoundary) Call(context.Context, string, []byte) ([]byte, error) {
	return nil, fmt.Errorf("process silo: call: %w", domainerrors.ErrUnsupported)
}

func (b *processBoundary) Close(context.Context) error {
	b.process.Stop()
	return nil
}

func (b *processBoundary) Kill() {
	b.process.Kill()
}
