package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hayride-dev/hayride-go/agent"
	"github.com/hayride-dev/hayride-go/compose"
	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"github.com/hayride-dev/hayride-go/host"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/hayride-dev/hayride-go/silo"
)

// ErrNotAttached is returned by operations that run before Attach.
var ErrNotAttached = errors.New("launcher not attached to a silo manager")

// Launcher starts compositions of installed components. It is safe for
// concurrent use once attached.
type Launcher struct {
	config launcherConfig
	store  ports.ComponentStore

	mu          sync.RWMutex
	silos       *silo.Manager
	registry    *hostfuncs.HandlerRegistry
	engine      *compose.Engine
	agent       *agent.Orchestrator
	deployments map[string]*Deployment // by silo id
}

var (
	_ silo.ThreadResolver    = (*Launcher)(nil)
	_ hostfuncs.Composer     = (*Launcher)(nil)
	_ hostfuncs.AgentService = (*Launcher)(nil)
)

// New creates a Launcher reading components from store.
func New(store ports.ComponentStore, opts ...Option) *Launcher {
	cfg := defaultLauncherConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Launcher{
		config:      cfg,
		store:       store,
		deployments: make(map[string]*Deployment),
	}
}

// Attach connects the launcher to the manager hosting its silos and to the
// host functions offered to guests. Both usually hold the launcher
// themselves, so Attach runs once they exist and before the first launch.
func (l *Launcher) Attach(silos *silo.Manager, registry *hostfuncs.HandlerRegistry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.silos = silos
	l.registry = registry
	l.engine = compose.NewEngine(compose.WithHostExports(registry.Interfaces()...))
	l.agent = l.newOrchestrator(silos, l.config.tools)
}

func (l *Launcher) attached() (*silo.Manager, *hostfuncs.HandlerRegistry, *compose.Engine, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.silos == nil || l.registry == nil {
		return nil, nil, nil, ErrNotAttached
	}
	return l.silos, l.registry, l.engine, nil
}

// newExecutor creates a runtime of its own for one launch or thread. Import
// module names are a flat namespace per runtime, so launches never share one.
func (l *Launcher) newExecutor(ctx context.Context, registry *hostfuncs.HandlerRegistry) (*host.Executor, error) {
	opts := []host.Option{
		host.WithHostFunctions(registry),
		host.WithWASIEnabled(l.config.wasi),
		host.WithMemoryLimitPages(l.config.memoryLimitPages),
	}
	if l.config.worlds != nil {
		opts = append(opts, host.WithWorldRegistry(l.config.worlds))
	}
	if l.config.cache != nil {
		opts = append(opts, host.WithCompilationCache(l.config.cache))
	}
	return host.NewExecutor(ctx, opts...)
}

func (l *Launcher) newOrchestrator(silos *silo.Manager, tools *agent.ToolRegistry) *agent.Orchestrator {
	if l.config.inference == nil {
		return nil
	}
	opts := []agent.Option{agent.WithLogger(l.config.logger), agent.WithSuspender(silos)}
	return agent.NewOrchestrator(l.config.inference, tools, append(opts, l.config.agentOpts...)...)
}

// component is one resolved node of a launch.
type component struct {
	artifact ports.Artifact
	compiled *host.Component
	node     compose.Node
	world    string
}

func componentID(a ports.Artifact) string {
	return a.Namespace + ":" + a.Name
}

func worldOf(a ports.Artifact) string {
	if a.Manifest == nil {
		return ""
	}
	return a.Manifest.World
}

func readArtifact(a ports.Artifact) ([]byte, error) {
	binary, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, &domainerrors.LoadError{Component: a.Ref(), Reason: "unreadable artifact", Err: err}
	}
	return binary, nil
}

func nodeOf(a ports.Artifact, c *host.Component) compose.Node {
	return compose.Node{
		ComponentID: componentID(a),
		Version:     a.Version,
		Imports:     c.InterfaceImports(),
		Exports:     c.Exports,
	}
}

// inspect finds and compiles every reference.
func (l *Launcher) inspect(ctx context.Context, loader *host.Loader, refs []string) ([]*component, error) {
	var errs []error
	out := make([]*component, 0, len(refs))
	for _, ref := range refs {
		a, err := l.store.Find(ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		binary, err := readArtifact(a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c, err := loader.Inspect(ctx, a.Ref(), binary)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, &component{artifact: a, compiled: c, node: nodeOf(a, c), world: worldOf(a)})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Launch starts refs as one composition. Composition and load failures are
// reported before any silo starts. A spawn failure tears down the silos
// already started.
func (l *Launcher) Launch(ctx context.Context, refs []string) (*Deployment, error) {
	silos, registry, engine, err := l.attached()
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "components", Err: errors.New("nothing to launch")}
	}

	exec, err := l.newExecutor(ctx, registry)
	if err != nil {
		return nil, err
	}
	comps, err := l.inspect(ctx, exec.Loader(), refs)
	if err != nil {
		_ = exec.Close(ctx)
		return nil, err
	}

	byID := make(map[string]*component, len(comps))
	nodes := make([]compose.Node, 0, len(comps))
	for _, c := range comps {
		byID[c.node.ComponentID] = c
		nodes = append(nodes, c.node)
	}
	graph, err := engine.Compose(nodes)
	if err != nil {
		_ = exec.Close(ctx)
		return nil, err
	}
	if err := validate(exec.Loader(), graph, byID); err != nil {
		_ = exec.Close(ctx)
		return nil, err
	}

	d := &Deployment{
		launcher: l,
		silos:    silos,
		exec:     exec,
		graph:    graph,
		siloIDs:  make(map[string]string, len(comps)),
		compiled: make(map[string]*host.Component, len(comps)),
	}
	if err := d.start(ctx, byID, l.config.maxOutput); err != nil {
		_ = d.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	tools, err := l.discoverTools(ctx, d, byID)
	if err != nil {
		_ = d.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	d.tools = tools
	d.agent = l.newOrchestrator(silos, tools)

	l.mu.Lock()
	for _, id := range d.siloIDs {
		l.deployments[id] = d
	}
	l.mu.Unlock()

	l.config.logger.InfoContext(ctx, "launcher: composition started", "order", graph.Order(), "tools", tools.Len())
	return d, nil
}

// validate checks every node in instantiation order against its world and
// the exports its providers offer. A node whose provider was rejected is
// rejected too.
func validate(loader *host.Loader, g *compose.Graph, byID map[string]*component) error {
	rejected := make(map[string]bool)
	var errs []error
	for _, id := range g.Order() {
		c := byID[id]
		var providers []contract.InterfaceRef
		var err error
		for _, e := range g.Providers(id) {
			p := g.ComponentOf(e.Provider)
			if rejected[p] {
				err = &domainerrors.LoadError{
					Component: c.artifact.Ref(),
					World:     c.world,
					Reason:    fmt.Sprintf("dependency %s rejected for import", p),
					Interface: e.Import.String(),
				}
				break
			}
			if err = checkProvided(c, byID[p], e.Import, e.Export); err != nil {
				break
			}
			providers = append(providers, e.Export)
		}
		if err == nil {
			err = loader.Validate(c.compiled, c.world, host.WithProviders(providers...))
		}
		if err != nil {
			rejected[id] = true
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkProvided requires provider to export every function importer takes
// from the bound interface.
func checkProvided(importer, provider *component, imp, exp contract.InterfaceRef) error {
	i, ok := importFor(importer.compiled, imp)
	if !ok {
		return nil
	}
	for _, fn := range i.Funcs {
		if !provider.compiled.HasFunction(contract.Qualified{Interface: exp, Func: fn}.String()) {
			return &domainerrors.LoadError{
				Component: importer.artifact.Ref(),
				World:     importer.world,
				Reason:    "unknown function",
				Interface: i.Module + "#" + fn,
			}
		}
	}
	return nil
}

func importFor(c *host.Component, ref contract.InterfaceRef) (host.Import, bool) {
	for _, imp := range c.Imports {
		if !imp.WASI && imp.Interface.String() == ref.String() {
			return imp, true
		}
	}
	return host.Import{}, false
}

// discoverTools merges the host tools with those advertised by every
// component exporting the tools interface. A component that cannot list
// its tools is skipped.
func (l *Launcher) discoverTools(ctx context.Context, d *Deployment, byID map[string]*component) (*agent.ToolRegistry, error) {
	opts := []agent.ToolOption{agent.WithRegistry(l.config.tools)}
	for _, id := range d.order {
		if !exportsKey(byID[id].compiled.Exports, contract.AITools) {
			continue
		}
		dispatcher := agent.NewSiloDispatcher(d.silos, d.siloIDs[id])
		schemas, err := dispatcher.Tools(ctx)
		if err != nil {
			l.config.logger.WarnContext(ctx, "launcher: tool discovery failed", "component", id, "error", err)
			continue
		}
		opts = append(opts, agent.WithTools(schemas, dispatcher))
	}
	return agent.NewToolRegistry(opts...)
}

func exportsKey(exports []contract.InterfaceRef, ref contract.InterfaceRef) bool {
	for _, e := range exports {
		if e.Key() == ref.Key() {
			return true
		}
	}
	return false
}

// ResolveThread serves guest requests for thread silos. The component is
// looked up now and loaded into a runtime of its own when the silo starts;
// that runtime offers host imports only and closes with the silo.
func (l *Launcher) ResolveThread(_ context.Context, spec entities.ThreadSpec) (silo.Starter, error) {
	_, registry, _, err := l.attached()
	if err != nil {
		return nil, err
	}
	a, err := l.store.Find(spec.Component)
	if err != nil {
		return nil, err
	}
	maxOutput := l.config.maxOutput

	return func(ctx context.Context, id string) (silo.Boundary, error) {
		binary, err := readArtifact(a)
		if err != nil {
			return nil, err
		}
		exec, err := l.newExecutor(ctx, registry)
		if err != nil {
			return nil, err
		}
		b, err := func() (silo.Boundary, error) {
			c, err := exec.Loader().Load(ctx, a.Ref(), binary, worldOf(a))
			if err != nil {
				return nil, err
			}
			if spec.Function != "" {
				if _, ok := c.ResolveFunction(spec.Function); !ok {
					return nil, &domainerrors.LoadError{Component: a.Ref(), Reason: "unknown function", Interface: spec.Function}
				}
			}
			return silo.ThreadStarter(exec, c, spec.Function, spec.Args, maxOutput)(ctx, id)
		}()
		if err != nil {
			_ = exec.Close(context.WithoutCancel(ctx))
			return nil, err
		}
		return &ownedBoundary{Boundary: b, exec: exec}, nil
	}, nil
}

// ownedBoundary closes the runtime it was instantiated in.
type ownedBoundary struct {
	silo.Boundary
	exec *host.Executor
}

func (b *ownedBoundary) Close(ctx context.Context) error {
	return errors.Join(b.Boundary.Close(ctx), b.exec.Close(ctx))
}

// Invoke runs an agent conversation for caller with the tools of the
// deployment caller belongs to. Thread silos inherit the deployment of the
// silo that spawned them.
func (l *Launcher) Invoke(ctx context.Context, caller string, req hostfuncs.AgentRequest) (hostfuncs.AgentResponse, error) {
	o := l.orchestratorFor(caller)
	if o == nil {
		return hostfuncs.AgentResponse{}, fmt.Errorf("agent: %w", domainerrors.ErrUnsupported)
	}
	return o.Invoke(ctx, caller, req)
}

func (l *Launcher) orchestratorFor(caller string) *agent.Orchestrator {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for id := caller; id != "" && l.silos != nil; {
		if d, ok := l.deployments[id]; ok && d.agent != nil {
			return d.agent
		}
		info, err := l.silos.Info(id)
		if err != nil {
			break
		}
		id = info.Parent
	}
	return l.agent
}

func (l *Launcher) forget(d *Deployment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range d.siloIDs {
		if l.deployments[id] == d {
			delete(l.deployments, id)
		}
	}
}

// Shutdown closes every running deployment.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.RLock()
	seen := make(map[*Deployment]bool)
	var all []*Deployment
	for _, d := range l.deployments {
		if !seen[d] {
			seen[d] = true
			all = append(all, d)
		}
	}
	l.mu.RUnlock()

	var errs []error
	for _, d := range all {
		errs = append(errs, d.Close(ctx))
	}
	return errors.Join(errs...)
}
