package taskgraph

import (
	"sync"

	"github.com/flowforge/taskgraph/internal/rc"
)

// AsyncTask is a shared-ownership handle to a free (non-topology) Node,
// used as a dependency token for dependent_async/silent_dependent_async
// (spec §4.5). Go's garbage collector plays the role of the C++
// shared_ptr's refcount: as long as any AsyncTask value referencing a
// Node is reachable, the Node stays alive; there is no ABA problem to
// guard against so a plain pointer is sufficient (grounded on
// original_source/rigel/taskflow/core/async_task.h, which hand-rolls a
// refcounted node precisely because C++ has no GC).
type AsyncTask struct {
	node *Node
}

// Empty reports whether this handle references no node.
func (a AsyncTask) Empty() bool { return a.node == nil }

// dependentRegistration is the bookkeeping the executor keeps for a node
// submitted via dependent_async/silent_dependent_async: it runs only
// once every dependency's node has completed (spec §4.5 "DependentAsync
// scheduling").
type dependentRegistration struct {
	node    *Node
	pending *rc.Counter
}

// asyncRegistry tracks completed free async nodes so a dependency
// resolved before its dependent is submitted still unblocks it
// immediately (spec §4.5: "a dependency already completed at submit
// time causes immediate enqueue").
type asyncRegistry struct {
	mu        sync.Mutex
	completed map[*Node]bool
	waiters   map[*Node][]*dependentRegistration
}

func newAsyncRegistry() *asyncRegistry {
	return &asyncRegistry{
		completed: make(map[*Node]bool),
		waiters:   make(map[*Node][]*dependentRegistration),
	}
}

// register records that reg.node depends on dep; returns true if dep has
// already completed (caller should decrement reg.pending immediately
// rather than waiting for a future notify).
func (r *asyncRegistry) register(dep *Node, reg *dependentRegistration) (alreadyDone bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed[dep] {
		return true
	}
	r.waiters[dep] = append(r.waiters[dep], reg)
	return false
}

// complete marks dep finished and returns every dependent registration
// that should now have its pending counter decremented.
func (r *asyncRegistry) complete(dep *Node) []*dependentRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[dep] = true
	regs := r.waiters[dep]
	delete(r.waiters, dep)
	return regs
}
