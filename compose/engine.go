package compose

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hayride-dev/hayride-go/contract"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
)

// engineConfig holds configuration for the Engine.
type engineConfig struct {
	hostExports []contract.InterfaceRef
}

// EngineOption configures the Engine.
type EngineOption func(*engineConfig)

// WithHostExports declares interfaces the host itself provides. Imports
// satisfied by them do not create edges.
func WithHostExports(refs ...contract.InterfaceRef) EngineOption {
	return func(c *engineConfig) {
		c.hostExports = append(c.hostExports, refs...)
	}
}

// Engine resolves component sets into linked graphs. It holds no state
// between calls; composing the same node set twice yields identical graphs.
type Engine struct {
	config engineConfig
}

// NewEngine creates an Engine with the given options.
func NewEngine(opts ...EngineOption) *Engine {
	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{config: cfg}
}

// Compose builds the graph for nodes. Any unresolved import, version
// mismatch, duplicate component or cycle is a *ConfigError and no graph is
// returned. When several providers satisfy an import, the highest
// compatible minor (then patch) wins, and ties go to the lexically smallest
// component id.
func (e *Engine) Compose(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes: make([]Node, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}
	copy(g.nodes, nodes)
	sort.SliceStable(g.nodes, func(i, j int) bool {
		return g.nodes[i].ComponentID < g.nodes[j].ComponentID
	})
	for i, n := range g.nodes {
		if _, dup := g.index[n.ComponentID]; dup {
			return nil, &domainerrors.ConfigError{Kind: domainerrors.KindDuplicateComponent, Component: n.ComponentID}
		}
		g.index[n.ComponentID] = i
	}

	var errs []error
	for i, n := range g.nodes {
		for _, imp := range n.Imports {
			if err := e.resolve(g, i, imp); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	order, cyclic := topoSort(len(g.nodes), g.edges)
	if len(cyclic) > 0 {
		names := make([]string, len(cyclic))
		for i, idx := range cyclic {
			names[i] = g.nodes[idx].ComponentID
		}
		return nil, &domainerrors.ConfigError{Kind: domainerrors.KindCycle, Nodes: names}
	}
	g.order = order
	return g, nil
}

// resolve binds one import of node i, preferring component providers over the host.
func (e *Engine) resolve(g *Graph, i int, imp contract.InterfaceRef) error {
	provider := -1
	var best contract.InterfaceRef
	var incompatible []string

	for j, candidate := range g.nodes {
		for _, exp := range candidate.Exports {
			if exp.Key() != imp.Key() {
				continue
			}
			if !contract.Compatible(imp, exp) {
				incompatible = append(incompatible, exp.String())
				continue
			}
			if provider < 0 || contract.Prefer(exp, best) {
				provider, best = j, exp
			}
		}
	}
	if provider >= 0 {
		g.edges = append(g.edges, Edge{Import: imp, Export: best, Importer: i, Provider: provider})
		return nil
	}

	if exp, ok := contract.BestMatch(imp, e.config.hostExports); ok {
		g.host = append(g.host, HostBinding{Import: imp, Export: exp, Importer: i})
		return nil
	}
	for _, exp := range e.config.hostExports {
		if exp.Key() == imp.Key() {
			incompatible = append(incompatible, exp.String())
		}
	}

	cerr := &domainerrors.ConfigError{
		Kind:      domainerrors.KindUnresolvedImport,
		Component: g.nodes[i].ComponentID,
		Interface: imp.String(),
	}
	if len(incompatible) > 0 {
		sort.Strings(incompatible)
		cerr.Kind = domainerrors.KindVersionMismatch
		cerr.Candidates = incompatible
	}
	return cerr
}

// topoSort orders nodes so providers come before importers (Kahn's
// algorithm, lowest index first among ready nodes). It returns the nodes
// that lie on or between cycles when no complete order exists.
func topoSort(n int, edges []Edge) (order, cyclic []int) {
	deps := make([]map[int]bool, n)
	dependants := make([]map[int]bool, n)
	for i := range n {
		deps[i] = make(map[int]bool)
		dependants[i] = make(map[int]bool)
	}
	for _, e := range edges {
		deps[e.Importer][e.Provider] = true
		dependants[e.Provider][e.Importer] = true
	}

	pending := make([]int, n)
	for i := range n {
		pending[i] = len(deps[i])
	}
	placed := make([]bool, n)

	for len(order) < n {
		next := -1
		for i := range n {
			if !placed[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		placed[next] = true
		order = append(order, next)
		for d := range dependants[next] {
			pending[d]--
		}
	}
	if len(order) == n {
		return order, nil
	}

	// Strip importers hanging off a cycle until only nodes that some other
	// remaining node depends on are left.
	remaining := make(map[int]bool)
	for i := range n {
		if !placed[i] {
			remaining[i] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for i := range remaining {
			needed := false
			for d := range dependants[i] {
				if remaining[d] {
					needed = true
					break
				}
			}
			if !needed {
				delete(remaining, i)
				changed = true
			}
		}
	}
	for i := range remaining {
		cyclic = append(cyclic, i)
	}
	sort.Ints(cyclic)
	return order, cyclic
}

// Plug composes socket with plugs, requiring every plug to satisfy at least
// one of the socket's imports.
func (e *Engine) Plug(socket Node, plugs []Node) (*Graph, error) {
	g, err := e.Compose(append([]Node{socket}, plugs...))
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool)
	for _, edge := range g.Providers(socket.ComponentID) {
		used[g.ComponentOf(edge.Provider)] = true
	}
	for _, p := range plugs {
		if !used[p.ComponentID] {
			return nil, &domainerrors.ConfigError{
				Kind:      domainerrors.KindInvalid,
				Component: p.ComponentID,
				Err:       fmt.Errorf("plug %q satisfies no import of socket %q", p.ComponentID, socket.ComponentID),
			}
		}
	}
	return g, nil
}
