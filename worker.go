package taskgraph

import (
	"math/rand"

	"github.com/flowforge/taskgraph/internal/wq"
)

// Worker owns one set of three priority-indexed deques (spec §4.1). id
// is the worker's index into Executor.workers, or -1 for a transient
// "guest" worker created to let a non-pool goroutine participate in a
// Corun: the corun's own source nodes are pushed onto its local queue
// like any other in-pool dispatch, but since it is never a steal victim
// (it is not in Executor.workers) nothing else ever pops from it.
type Worker struct {
	id    int
	exec  *Executor
	rng   *rand.Rand
	queue [priorityMax]*wq.Deque[*Node]
}

func newWorker(id int, exec *Executor) *Worker {
	w := &Worker{id: id, exec: exec, rng: rand.New(rand.NewSource(int64(id) + 1))}
	for p := range w.queue {
		w.queue[p] = wq.New[*Node]()
	}
	return w
}

// pushLocal enqueues a ready node onto this worker's own deque for its
// priority level.
func (w *Worker) pushLocal(n *Node) {
	w.queue[n.priority].PushBottom(n)
}

// popLocal pops from this worker's own queues, HIGH first then NORMAL
// then LOW (spec §4.1 step 1-2).
func (w *Worker) popLocal() (*Node, bool) {
	for p := 0; p < int(priorityMax); p++ {
		if n, ok := w.queue[p].PopBottom(); ok {
			return n, true
		}
	}
	return nil, false
}

// steal attempts to take a ready node from a random victim's queue,
// trying HIGH across all victims first, then NORMAL, then LOW (spec
// §4.1 step 3), bounded by maxAttempts random victim picks per priority
// level.
func (w *Worker) steal(victims []*Worker, maxAttempts int) (*Node, bool) {
	if len(victims) == 0 {
		return nil, false
	}
	for p := 0; p < int(priorityMax); p++ {
		for attempt := 0; attempt < maxAttempts; attempt++ {
			v := victims[w.rng.Intn(len(victims))]
			if v == w {
				continue
			}
			if n, ok := v.queue[p].Steal(); ok {
				return n, true
			}
		}
	}
	return nil, false
}
