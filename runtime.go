package taskgraph

import (
	"sync"

	"github.com/flowforge/taskgraph/internal/rc"
)

// Runtime is the in-task API handed to a kindRuntime task's payload
// (spec §4.5): it can force-schedule sibling tasks, run a nested graph
// inline, and spawn child async work whose completion is implicitly
// awaited before the runtime task itself is considered done, unless the
// payload calls Join explicitly first.
type Runtime struct {
	worker   *Worker
	exec     *Executor
	node     *Node
	topology *Topology // nil if node is a free (non-topology) task

	mu      sync.Mutex
	pending *rc.Counter
	joined  bool
}

func newRuntime(w *Worker, n *Node) *Runtime {
	return &Runtime{worker: w, exec: w.exec, node: n, topology: n.topology, pending: rc.New()}
}

// Executor returns the running Executor.
func (r *Runtime) Executor() *Executor { return r.exec }

// Schedule forcibly marks t ready now, bypassing its join counter. t
// must belong to the same Topology as the runtime's own task (spec
// §4.5); violating that is a structural error.
func (r *Runtime) Schedule(t Task) error {
	n := t.node
	if n == nil {
		return ErrInvariantViolation
	}
	if r.topology != nil && n.topology != r.topology {
		return ErrInvariantViolation
	}
	r.exec.forceReady(r.worker, n)
	return nil
}

// Corun executes g inline on the current worker, interleaved with
// work-stealing, returning once every node in g has completed. It does
// not block the worker from servicing other ready work in the meantime
// (spec §5 "Suspension points").
func (r *Runtime) Corun(g *Graph) {
	r.exec.corunOn(r.worker, g)
}

// Async spawns fn as a child of this runtime: its completion decrements
// the runtime's internal join-counter so the enclosing task does not
// finish until fn has, unless Join is called first (spec §4.5).
func (r *Runtime) Async(fn func() (any, error)) *Future[any] {
	return r.spawnChild(fn, false)
}

// SilentAsync is Async without a Future to observe the result.
func (r *Runtime) SilentAsync(fn func()) {
	r.spawnChild(func() (any, error) { fn(); return nil, nil }, true)
}

func (r *Runtime) spawnChild(fn func() (any, error), silent bool) *Future[any] {
	n := newNode("")
	n.kind = kindSilentAsync
	if !silent {
		n.kind = kindAsync
	}
	n.parent = r.node
	n.topology = r.topology

	r.mu.Lock()
	r.pending.Increase()
	n.awaitCounter = r.pending
	r.mu.Unlock()

	fut := newFuture[any]()
	body := &asyncBody{fn: fn}
	if !silent {
		body.fn = func() (any, error) {
			v, err := fn()
			fut.resolve(v, err)
			return v, err
		}
	}
	n.ptr = body
	n.joinCounter.Set(0)

	r.exec.dispatchNew(r.worker, n)
	return fut
}

// Join blocks (without parking the owning worker out of the steal pool)
// until every child spawned via Async/SilentAsync so far has completed.
// Safe to call more than once; each call waits out whatever is pending
// at that moment. A runtime task's payload that returns without ever
// calling Join gets an implicit one performed by the executor.
func (r *Runtime) Join() {
	r.mu.Lock()
	r.joined = true
	r.mu.Unlock()
	r.exec.drainUntil(r.worker, func() bool {
		return r.pending.Value() == 0
	})
}
