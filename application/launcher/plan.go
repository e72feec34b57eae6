package launcher

import (
	"context"

	"github.com/hayride-dev/hayride-go/compose"
	"github.com/hayride-dev/hayride-go/contract"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"github.com/hayride-dev/hayride-go/host"
	"github.com/hayride-dev/hayride-go/hostfuncs"
)

// Compose plans the composition of installed components without starting
// anything.
func (l *Launcher) Compose(ctx context.Context, components []string) (hostfuncs.CompositionPlan, error) {
	nodes, engine, err := l.planNodes(ctx, components)
	if err != nil {
		return hostfuncs.CompositionPlan{}, err
	}
	g, err := engine.Compose(nodes)
	if err != nil {
		return hostfuncs.CompositionPlan{}, err
	}
	return planOf(g), nil
}

// Plug plans socket with plugs, each plug serving at least one import of
// the socket.
func (l *Launcher) Plug(ctx context.Context, socket string, plugs []string) (hostfuncs.CompositionPlan, error) {
	nodes, engine, err := l.planNodes(ctx, append([]string{socket}, plugs...))
	if err != nil {
		return hostfuncs.CompositionPlan{}, err
	}
	g, err := engine.Plug(nodes[0], nodes[1:])
	if err != nil {
		return hostfuncs.CompositionPlan{}, err
	}
	return planOf(g), nil
}

// planNodes builds composition nodes for refs. An installed manifest
// stands in for the binary; components without one are compiled in a
// scratch runtime to read their imports and exports.
func (l *Launcher) planNodes(ctx context.Context, refs []string) ([]compose.Node, *compose.Engine, error) {
	_, registry, engine, err := l.attached()
	if err != nil {
		return nil, nil, err
	}

	var scratch *host.Executor
	defer func() {
		if scratch != nil {
			_ = scratch.Close(ctx)
		}
	}()

	nodes := make([]compose.Node, 0, len(refs))
	for _, ref := range refs {
		a, err := l.store.Find(ref)
		if err != nil {
			return nil, nil, err
		}
		if a.Manifest != nil {
			n, err := nodeFromManifest(a)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, n)
			continue
		}
		if scratch == nil {
			if scratch, err = l.newExecutor(ctx, registry); err != nil {
				return nil, nil, err
			}
		}
		binary, err := readArtifact(a)
		if err != nil {
			return nil, nil, err
		}
		c, err := scratch.Loader().Inspect(ctx, a.Ref(), binary)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, nodeOf(a, c))
	}
	return nodes, engine, nil
}

func nodeFromManifest(a ports.Artifact) (compose.Node, error) {
	n := compose.Node{ComponentID: componentID(a), Version: a.Version}
	parse := func(refs []string) ([]contract.InterfaceRef, error) {
		out := make([]contract.InterfaceRef, 0, len(refs))
		for _, s := range refs {
			ref, err := contract.ParseInterfaceRef(s)
			if err != nil {
				return nil, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Component: a.Ref(), Interface: s, Err: err}
			}
			out = append(out, ref)
		}
		return out, nil
	}
	var err error
	if n.Imports, err = parse(a.Manifest.Imports); err != nil {
		return compose.Node{}, err
	}
	if n.Exports, err = parse(a.Manifest.Exports); err != nil {
		return compose.Node{}, err
	}
	return n, nil
}

func planOf(g *compose.Graph) hostfuncs.CompositionPlan {
	plan := hostfuncs.CompositionPlan{Order: g.Order(), Links: []hostfuncs.CompositionLink{}}
	for _, e := range g.Edges() {
		plan.Links = append(plan.Links, hostfuncs.CompositionLink{
			Importer: g.ComponentOf(e.Importer),
			Provider: g.ComponentOf(e.Provider),
			Import:   e.Import.String(),
			Export:   e.Export.String(),
		})
	}
	for _, h := range g.HostBindings() {
		plan.Links = append(plan.Links, hostfuncs.CompositionLink{
			Importer: g.ComponentOf(h.Importer),
			Import:   h.Import.String(),
			Export:   h.Export.String(),
		})
	}
	return plan
}
