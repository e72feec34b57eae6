package compose

import (
	"github.com/hayride-dev/hayride-go/contract"
)

// Node is a component participating in a composition. Nodes are values;
// the engine never mutates them after Compose copies them into a Graph.
type Node struct {
	ComponentID string
	Version     string
	Imports     []contract.InterfaceRef
	Exports     []contract.InterfaceRef
}

// Edge binds an import of one node to a compatible export of another.
// Importer and Provider are indices into Graph.Nodes.
type Edge struct {
	Import   contract.InterfaceRef
	Export   contract.InterfaceRef
	Importer int
	Provider int
}

// HostBinding records an import satisfied by the host rather than a node.
type HostBinding struct {
	Import   contract.InterfaceRef
	Export   contract.InterfaceRef
	Importer int
}

// Graph is an immutable resolved composition. Nodes are sorted by component
// id; Order lists node indices so that providers precede their importers.
type Graph struct {
	nodes []Node
	edges []Edge
	host  []HostBinding
	order []int
	index map[string]int
}

// Nodes returns the nodes in id order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the resolved component-to-component bindings.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// HostBindings returns imports satisfied by host capabilities.
func (g *Graph) HostBindings() []HostBinding {
	out := make([]HostBinding, len(g.host))
	copy(out, g.host)
	return out
}

// Order returns component ids in instantiation order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	for i, idx := range g.order {
		out[i] = g.nodes[idx].ComponentID
	}
	return out
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	idx, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// Providers returns the edges whose importer is id.
func (g *Graph) Providers(id string) []Edge {
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	var out []Edge
	for _, e := range g.edges {
		if e.Importer == idx {
			out = append(out, e)
		}
	}
	return out
}

// ComponentOf returns the component id at a node index.
func (g *Graph) ComponentOf(idx int) string {
	return g.nodes[idx].ComponentID
}

// Dependants returns, in instantiation order, every component that imports
// from id directly or transitively.
func (g *Graph) Dependants(id string) []string {
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	affected := map[int]bool{start: true}
	for _, idx := range g.order {
		for _, e := range g.edges {
			if e.Importer == idx && affected[e.Provider] {
				affected[idx] = true
			}
		}
	}
	var out []string
	for _, idx := range g.order {
		if idx != start && affected[idx] {
			out = append(out, g.nodes[idx].ComponentID)
		}
	}
	return out
}
