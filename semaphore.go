package taskgraph

import "sync"

// Semaphore is a counting resource with a FIFO waiter list of Nodes
// blocked awaiting acquisition (spec §3). Tasks list the semaphores they
// need via Task.Acquire/Task.Release; the Executor acquires all of a
// node's semaphores before invoking its payload and releases them all
// once the payload returns, before decrementing successors' join
// counters (spec §9 Open Question: "release before decrement").
//
// Unlike golang.org/x/sync/semaphore.Weighted, acquisition here must not
// block the calling goroutine: a worker that cannot immediately satisfy
// a node's semaphores must go back to servicing other work rather than
// parking, so a blocked node is instead pulled off the hot path and
// handed to the waiter list until a Release makes room.
type Semaphore struct {
	mu      sync.Mutex
	max     int
	current int
	waiters []*Node
}

// NewSemaphore creates a counting semaphore with the given capacity.
func NewSemaphore(max int) *Semaphore {
	if max < 1 {
		max = 1
	}
	return &Semaphore{max: max}
}

// Capacity returns max_count.
func (s *Semaphore) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

// tryAcquire attempts to take one unit without blocking.
func (s *Semaphore) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < s.max {
		s.current++
		return true
	}
	return false
}

// addWaiter appends n to the FIFO waiter list. Called only after a
// failed tryAcquire, while still holding no partial acquisitions for n
// on this semaphore.
func (s *Semaphore) addWaiter(n *Node) {
	s.mu.Lock()
	s.waiters = append(s.waiters, n)
	s.mu.Unlock()
}

// release returns one unit and, if a waiter is queued, pops the head of
// the FIFO list and returns it so the caller can re-dispatch that node
// through the normal acquire path. It deliberately does not pre-grant
// the freed unit to the popped node: a node parked here failed partway
// through acquiring its full semaphore list and had its earlier
// partial acquisitions rolled back (see Executor.acquireSemaphores), so
// it must retry every semaphore it needs from scratch rather than
// assume this one slot.
func (s *Semaphore) release() *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current--
	if len(s.waiters) == 0 {
		return nil
	}
	n := s.waiters[0]
	s.waiters = s.waiters[1:]
	return n
}
