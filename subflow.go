package taskgraph

import (
	"sync"

	"github.com/flowforge/taskgraph/internal/rc"
)

// Subflow is the handle a kindSubflow task's payload uses to emplace
// child tasks dynamically into its own private Graph (spec §4.5, §9).
// The child graph is finalized and wired into the enclosing Topology
// either when Join is called, or implicitly when the payload returns
// without having joined — in which case the children run detached: the
// subflow task itself completes right away, but the enclosing Topology
// still waits for the children before it is considered finished (spec
// §9 "the subflow is detached and its children contribute independently
// to the enclosing topology").
type Subflow struct {
	worker   *Worker
	node     *Node
	graph    *Graph
	topology *Topology

	mu       sync.Mutex
	pending  *rc.Counter
	final    bool // finalize has run at least once
	finalPos int  // index into graph.Nodes() up to which finalize has already wired
}

func newSubflow(w *Worker, n *Node, g *Graph) *Subflow {
	return &Subflow{worker: w, node: n, graph: g, topology: n.topology, pending: rc.New()}
}

// Emplace creates a static child task in this subflow's graph.
func (sf *Subflow) Emplace(fn func()) Task {
	n := newNode("")
	n.kind = kindStatic
	n.ptr = &staticBody{fn: fn}
	sf.graph.append(n)
	return taskOf(n)
}

// EmplaceCondition creates a condition child task.
func (sf *Subflow) EmplaceCondition(fn func() int) Task {
	n := newNode("")
	n.kind = kindCondition
	n.ptr = &conditionBody{fn: fn}
	sf.graph.append(n)
	return taskOf(n)
}

// EmplaceSubflow creates a nested subflow child task.
func (sf *Subflow) EmplaceSubflow(fn func(*Subflow)) Task {
	n := newNode("")
	n.kind = kindSubflow
	n.ptr = &subflowBody{fn: fn, graph: newGraph("")}
	sf.graph.append(n)
	return taskOf(n)
}

// Linearize chains tasks[i] -> tasks[i+1] for every consecutive pair.
func (sf *Subflow) Linearize(tasks ...Task) {
	for i := 0; i+1 < len(tasks); i++ {
		tasks[i].Precede(tasks[i+1])
	}
}

// finalizeAndDispatch wires every not-yet-wired node in sf.graph into
// the enclosing topology (join counter setup, topology accounting) and
// dispatches its sources. Called by Join and, implicitly, by the
// executor when the subflow payload returns without joining.
func (sf *Subflow) finalizeAndDispatch() {
	sf.mu.Lock()
	all := sf.graph.Nodes()
	fresh := all[sf.finalPos:]
	sf.finalPos = len(all)
	sf.final = true
	sf.mu.Unlock()
	if len(fresh) == 0 {
		return
	}

	for _, n := range fresh {
		n.topology = sf.topology
		n.parent = sf.node
		n.setup()
		n.awaitCounter = sf.pending
		sf.pending.Increase()
	}
	for _, n := range fresh {
		if n.JoinCounter() == 0 {
			sf.worker.exec.dispatchNew(sf.worker, n)
		}
	}
}

// Join blocks (without parking the owning worker out of the steal pool)
// until every child emplaced so far has completed, finalizing any
// not-yet-dispatched nodes first.
func (sf *Subflow) Join() {
	sf.finalizeAndDispatch()
	sf.worker.exec.drainUntil(sf.worker, func() bool {
		return sf.pending.Value() == 0
	})
}
