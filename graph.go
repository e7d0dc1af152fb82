package taskgraph

import (
	"sync"
	"sync/atomic"
)

// Graph is an owning, ordered container of Nodes with structural-edit
// operations (append/remove/clear/enumerate). It is mutated only outside
// of its own executions, or from inside a Subflow by the worker currently
// executing the spawning node (spec §3, §9). A Graph's lifetime equals
// its containing TaskFlow, or the executor-owned graph backing a module
// task / subflow.
type Graph struct {
	mu    sync.Mutex
	name  string
	nodes []*Node

	// running guards against submitting the same Graph to more than one
	// concurrent Topology (spec §7 "submitting a graph while it is
	// already running" is a structural error), since two Topologies over
	// the same Graph would race on every shared Node's join counter.
	running atomic.Bool
}

func newGraph(name string) *Graph {
	return &Graph{name: name}
}

// Name returns the graph's display name.
func (g *Graph) Name() string { return g.name }

// SetName sets the graph's display name.
func (g *Graph) SetName(name string) { g.name = name }

// append adds nodes to the graph, taking ownership of them.
func (g *Graph) append(nodes ...*Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range nodes {
		n.graph = g
	}
	g.nodes = append(g.nodes, nodes...)
}

// Remove deletes a node from the graph. It does not unlink it from any
// remaining successor/dependent lists; callers are expected to remove a
// node only when it has no surviving edges, matching the "structural
// edits are forbidden while a topology runs" invariant (spec §3).
func (g *Graph) Remove(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, cur := range g.nodes {
		if cur == n {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			return
		}
	}
}

// Clear empties the graph of all nodes.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nil
}

// Nodes enumerates the graph's nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Node(nil), g.nodes...)
}

// Size returns the number of nodes owned by this graph.
func (g *Graph) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Empty reports whether the graph has no nodes.
func (g *Graph) Empty() bool {
	return g.Size() == 0
}

// sources returns the nodes with zero dependents (no predecessors at
// all), the entry set a Topology seeds its worker queues with.
func (g *Graph) sources() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*Node
	for _, n := range g.nodes {
		if len(n.Dependents()) == 0 {
			out = append(out, n)
		}
	}
	return out
}
