package taskgraph

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/flowforge/taskgraph/internal/rc"
)

// Topology is one running instance of a Graph (spec §3): it owns the
// join counter tracking how many of this run's node dispatches are still
// queued or running (see reinit), the predicate/completion-callback pair driving
// run_n/run_until/run_while re-runs, and the cancellation flag. A
// Topology is created when a graph is submitted to an Executor and is
// destroyed after its completion callback returns and its promise is
// set.
type Topology struct {
	id    uuid.UUID
	exec  *Executor
	graph *Graph

	sources []*Node

	joinCounter *rc.Counter
	cancelled   atomic.Bool

	// predicate returns true once the topology should stop re-running;
	// completionCb then runs and the future resolves. A plain one-shot
	// Run uses a predicate that returns true unconditionally.
	predicate    func() bool
	completionCb func()

	errOnce sync.Once
	err     error

	future *Future[struct{}]
}

func newTopology(exec *Executor, g *Graph, predicate func() bool, completionCb func()) *Topology {
	return &Topology{
		id:           uuid.New(),
		exec:         exec,
		graph:        g,
		joinCounter:  rc.New(),
		predicate:    predicate,
		completionCb: completionCb,
		future:       newFuture[struct{}](),
	}
}

// cancel flips the cancelled flag; see Future.Cancel and spec §5.
func (t *Topology) cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether this run has been cancelled.
func (t *Topology) Cancelled() bool {
	return t.cancelled.Load()
}

// captureErr records the first non-nil error observed during this
// topology's lifetime (across every re-run); subsequent errors are
// dropped (spec §7).
func (t *Topology) captureErr(err error) {
	if err == nil {
		return
	}
	t.errOnce.Do(func() {
		t.err = err
	})
}

// reinit resets every node's join counter and run-state ahead of a (re-)
// start, and recomputes the source set, mirroring the teacher's
// eGraph.setup/reset pair generalized to an explicit Topology rather
// than the graph itself owning run state.
//
// joinCounter is not preset to the node count here: unlike an acyclic
// DAG, a graph with conditional back-edges (spec §4.2) can invoke a
// given node many times within one run, so joinCounter instead tracks
// outstanding *dispatches* — incremented by the executor every time any
// node (including a repeat visit from a loop, or a dynamically spawned
// subflow/runtime child) is handed to a worker, decremented once that
// invocation completes. The topology is finished when it returns to
// zero, which only happens once nothing belonging to it is running or
// enqueued anywhere.
func (t *Topology) reinit() {
	for _, n := range t.graph.Nodes() {
		n.topology = t
		n.setup()
	}
	t.sources = t.graph.sources()
}
