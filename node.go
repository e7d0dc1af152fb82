package taskgraph

import (
	"sync"
	"sync/atomic"

	"github.com/flowforge/taskgraph/internal/rc"
)

// nodeKind tags which payload variant a Node carries.
type nodeKind int

const (
	kindStatic nodeKind = iota
	kindCondition
	kindMultiCondition
	kindSubflow
	kindModule
	kindAsync
	kindSilentAsync
	kindDependentAsync
	kindRuntime
)

func (k nodeKind) String() string {
	switch k {
	case kindStatic:
		return "static"
	case kindCondition:
		return "condition"
	case kindMultiCondition:
		return "multi_condition"
	case kindSubflow:
		return "subflow"
	case kindModule:
		return "module"
	case kindAsync:
		return "async"
	case kindSilentAsync:
		return "silent_async"
	case kindDependentAsync:
		return "dependent_async"
	case kindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// run-state, used only for introspection/observer reporting; orthogonal
// to the state bitset below.
const (
	runIdle int32 = iota
	runWaiting
	runRunning
	runFinished
	runFailed
)

// Node state bitset flags, per spec §3.
const (
	flagConditioned uint32 = 1 << iota // reached via a conditional predecessor
	flagDetached                       // subflow detached from its spawning node
	flagAcquired                       // currently holding its listed semaphores
	flagReady                          // join counter has reached zero
	flagDeferred                       // pipeline token deferred pending another
)

// staticBody is a plain task: runs once, no control-flow decision.
type staticBody struct {
	fn func()
}

// conditionBody runs and returns the index of the single successor to
// activate.
type conditionBody struct {
	fn func() int
}

// multiConditionBody runs and returns the indices of zero or more
// successors to activate.
type multiConditionBody struct {
	fn func() []int
}

// subflowBody lets the payload spawn a dynamic child graph via a Subflow
// handle. instancelized mirrors the teacher's guard: the builder callback
// itself only runs once even if the node is revisited by a conditional
// loop.
type subflowBody struct {
	fn            func(*Subflow)
	graph         *Graph
	instancelized bool
}

// moduleBody composes another Graph as a single task (composed_of). source
// is kept alongside the resolved graph so the executor can give it a
// chance to reset any run-scoped internal state (e.g. a Pipeline's token
// counters) before each invocation, since a module task can itself be
// re-run via run_n/run_until/conditional loops.
type moduleBody struct {
	graph  *Graph
	source Composable
}

// resettable is implemented by a Composable that carries run-scoped
// internal state needing a fresh start on every invocation (Pipeline,
// ScalablePipeline). Plain Graphs do not need it: their own nodes carry
// their own run state via Node.setup, already handled by corun's nested
// Topology.
type resettable interface {
	resetForRun()
}

// asyncBody is shared by Async/SilentAsync/DependentAsync; the executor
// distinguishes behavior via nodeKind, not payload shape.
type asyncBody struct {
	fn func() (any, error)
}

// runtimeBody grants the payload direct in-task scheduling capability
// through a Runtime handle. Grounded on
// original_source/tests/taskflow/test_runtimes.cc, where
// `taskflow.emplace([&](rigel::Runtime& rt){...})` is its own emplace
// overload in the original API rather than a capability bolted onto
// Subflow, so it gets its own nodeKind here too (see DESIGN.md Open
// Question "Runtime as its own task kind").
type runtimeBody struct {
	fn func(*Runtime)
}

// Node is a single task: payload, successors, predecessor count, shared
// state. See spec §3.
type Node struct {
	name string
	kind nodeKind
	ptr  any // one of the *Body types above

	mu         sync.Mutex // guards successors/dependents structural edits
	successors []*Node
	dependents []*Node

	joinCounter *rc.Counter
	priority    TaskPriority
	semaphores  []*Semaphore

	topology *Topology // nil for free (non-topology) async tasks
	parent   *Node     // spawning node, for subflow/nested async children
	graph    *Graph    // owning graph for regular tasks; nil for async tasks

	// awaitCounter, when non-nil, is decremented by the executor
	// immediately after this node completes, in addition to the normal
	// join-counter propagation. Subflow.Join and Runtime's implicit
	// end-of-task join use it to poll when a dynamically spawned batch
	// has drained, without blocking the owning worker goroutine on a
	// channel or WaitGroup (see executor.go drainUntil, which needs a
	// non-blocking "done yet?" check on every loop iteration).
	awaitCounter *rc.Counter

	flags atomic.Uint32
	runSt atomic.Int32

	// conditionSelected is filled in by the executor right after a
	// Condition/MultiCondition payload returns, recording which
	// successor index/indices were activated this invocation, purely
	// for observer/debugging use.
	conditionSelected []int
}

func newNode(name string) *Node {
	return &Node{
		name:        name,
		priority:    PriorityNormal,
		joinCounter: rc.New(),
	}
}

// JoinCounter returns the node's current join counter value.
func (n *Node) JoinCounter() int64 {
	return n.joinCounter.Value()
}

// isConditional reports whether this node's outgoing edges are
// conditional, i.e. activated by a returned branch index rather than by
// join-counter decrement.
func (n *Node) isConditional() bool {
	return n.kind == kindCondition || n.kind == kindMultiCondition
}

// precede wires n -> v: v is a successor of n, n is a dependent of v.
// Both lists are always updated together (spec §3 invariant).
func (n *Node) precede(v *Node) {
	n.mu.Lock()
	n.successors = append(n.successors, v)
	n.mu.Unlock()

	v.mu.Lock()
	v.dependents = append(v.dependents, n)
	v.mu.Unlock()
}

// setup (re)initializes per-run state: resets the run-state flag and
// recomputes the join counter from strong (non-conditional) dependents.
// Called once per topology (re-)start for every node. After each
// invocation the executor restores the node's join counter the same way
// (see executor.go finishNode), so a conditional loop can make it ready
// again within one run.
func (n *Node) setup() {
	n.runSt.Store(runIdle)
	n.flags.Store(0)

	var strong int64
	n.mu.Lock()
	deps := append([]*Node(nil), n.dependents...)
	n.mu.Unlock()

	for _, dep := range deps {
		if dep.isConditional() {
			continue
		}
		strong++
	}
	n.joinCounter.Set(strong)
}

// drop decrements every strong successor's join counter after this
// node's payload has completed, returning those that became ready.
// Conditional successors are not touched here since the condition
// payload enqueues its chosen branch directly.
func (n *Node) drop() []*Node {
	if n.isConditional() {
		return nil
	}
	n.mu.Lock()
	succs := append([]*Node(nil), n.successors...)
	n.mu.Unlock()

	ready := make([]*Node, 0, len(succs))
	for _, s := range succs {
		if s.joinCounter.Decrease() == 0 {
			ready = append(ready, s)
		}
	}
	return ready
}

// setFlag atomically ORs f into the state bitset.
func (n *Node) setFlag(f uint32) {
	for {
		old := n.flags.Load()
		if n.flags.CompareAndSwap(old, old|f) {
			return
		}
	}
}

// clearFlag atomically clears f from the state bitset.
func (n *Node) clearFlag(f uint32) {
	for {
		old := n.flags.Load()
		if n.flags.CompareAndSwap(old, old&^f) {
			return
		}
	}
}

// hasFlag reports whether f is currently set.
func (n *Node) hasFlag(f uint32) bool {
	return n.flags.Load()&f != 0
}

// Successors returns a copy of this node's ordered successor list.
func (n *Node) Successors() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.successors...)
}

// Dependents returns a copy of this node's ordered dependent list.
func (n *Node) Dependents() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.dependents...)
}

// Name returns the node's display name.
func (n *Node) Name() string { return n.name }

// Kind reports which payload variant this node carries, for
// observer/debug purposes.
func (n *Node) Kind() string { return n.kind.String() }
