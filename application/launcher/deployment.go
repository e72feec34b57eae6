package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hayride-dev/hayride-go/agent"
	"github.com/hayride-dev/hayride-go/compose"
	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/host"
	"github.com/hayride-dev/hayride-go/serve"
	"github.com/hayride-dev/hayride-go/silo"
)

// Deployment is one running composition: a silo per component, all
// instantiated in a runtime of their own.
type Deployment struct {
	launcher *Launcher
	silos    *silo.Manager
	exec     *host.Executor
	graph    *compose.Graph
	tools    *agent.ToolRegistry
	agent    *agent.Orchestrator
	siloIDs  map[string]string          // component id -> silo id
	compiled map[string]*host.Component // component id -> binary
	order    []string                   // component ids in start order

	closeOnce sync.Once
	closeErr  error
}

// start binds each node's component-provided imports to the provider's silo
// and spawns the node, providers first.
func (d *Deployment) start(ctx context.Context, byID map[string]*component, maxOutput int) error {
	bound := make(map[string]bool)
	for _, id := range d.graph.Order() {
		c := byID[id]
		for _, e := range d.graph.Providers(id) {
			imp, ok := importFor(c.compiled, e.Import)
			if !ok || bound[imp.Module] {
				continue
			}
			provider := d.siloIDs[d.graph.ComponentOf(e.Provider)]
			export := e.Export
			target := host.TargetFunc(func(ctx context.Context, fn string, payload []byte) ([]byte, error) {
				return d.silos.Call(ctx, provider, contract.Qualified{Interface: export, Func: fn}.String(), payload)
			})
			if err := d.exec.Bind(ctx, imp.Module, imp.Funcs, target); err != nil {
				return err
			}
			bound[imp.Module] = true
		}

		info, err := d.silos.Spawn(ctx, silo.Spec{
			Start: silo.ThreadStarter(d.exec, c.compiled, "", nil, maxOutput),
			Kind:  entities.SiloThread,
			Owner: c.artifact.Ref(),
		})
		if err != nil {
			return err
		}
		d.siloIDs[id] = info.ID
		d.compiled[id] = c.compiled
		d.order = append(d.order, id)
	}
	return nil
}

// Order returns component ids in instantiation order.
func (d *Deployment) Order() []string {
	return d.graph.Order()
}

// Graph returns the resolved composition.
func (d *Deployment) Graph() *compose.Graph {
	return d.graph
}

// Silo returns the silo hosting a component.
func (d *Deployment) Silo(componentID string) (string, bool) {
	id, ok := d.siloIDs[componentID]
	return id, ok
}

// Tools returns the tools agent runs of this deployment may call.
func (d *Deployment) Tools() *agent.ToolRegistry {
	return d.tools
}

// Agent returns the deployment's orchestrator, nil without inference.
func (d *Deployment) Agent() *agent.Orchestrator {
	return d.agent
}

// Call invokes fn on a component of the deployment.
func (d *Deployment) Call(ctx context.Context, componentID, fn string, payload []byte) ([]byte, error) {
	id, ok := d.siloIDs[componentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrComponentNotFound, componentID)
	}
	return d.silos.Call(ctx, id, fn, payload)
}

// Serves reports whether a component is a server or websocket component
// that Serve can put on the network.
func (d *Deployment) Serves(componentID string) bool {
	c, ok := d.compiled[componentID]
	return ok && c.Serves()
}

// Serve puts a server or websocket component on the network and blocks
// until ctx is done. Requests reach the component's handler export through
// its silo. Without serve.WithAddress the address comes from the
// component's hayride:http/config export when it has one.
func (d *Deployment) Serve(ctx context.Context, componentID string, opts ...serve.Option) error {
	id, ok := d.siloIDs[componentID]
	if !ok {
		return fmt.Errorf("%w: %s", domainerrors.ErrComponentNotFound, componentID)
	}
	c := d.compiled[componentID]
	target := host.TargetFunc(func(ctx context.Context, fn string, payload []byte) ([]byte, error) {
		return d.silos.Call(ctx, id, fn, payload)
	})

	all := []serve.Option{serve.WithLogger(d.launcher.config.logger.With("component", componentID, "silo", id))}
	if fn, ok := c.FindExport(contract.HTTPConfig, "get"); ok {
		all = append(all, serve.WithConfigFunc(fn))
	}
	srv, err := serve.New(c.Kind, c.Entry, target, append(all, opts...)...)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// Wait blocks until a component's silo ends and returns its final state.
func (d *Deployment) Wait(ctx context.Context, componentID string) (entities.SiloInfo, error) {
	id, ok := d.siloIDs[componentID]
	if !ok {
		return entities.SiloInfo{}, fmt.Errorf("%w: %s", domainerrors.ErrComponentNotFound, componentID)
	}
	return d.silos.Wait(ctx, id)
}

// Close terminates the silos in reverse start order, so importers stop
// before their providers, and then releases the runtime. It is idempotent.
func (d *Deployment) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.launcher.forget(d)
		var errs []error
		for i := len(d.order) - 1; i >= 0; i-- {
			id := d.siloIDs[d.order[i]]
			if err := d.silos.Terminate(ctx, id); err != nil {
				errs = append(errs, err)
				continue
			}
			_ = d.silos.Remove(id)
		}
		if err := d.exec.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close runtime: %w", err))
		}
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}
