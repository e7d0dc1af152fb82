// Package wq implements the per-worker double-ended work queue described
// in spec §4.1/§4.3: the owning worker pushes and pops from its own end
// (LIFO), while idle siblings steal from the opposite end (FIFO), bounded
// to a configurable number of attempts.
//
// A textbook Chase-Lev deque relies on CAS on a growable circular buffer
// to make the owner's hot-path pop lock-free. Go's memory model does not
// give the same single-instruction fence tricks as C++ without unsafe
// pointer games, and no package in the retrieval pack ships a ready
// lock-free deque, so this wraps github.com/gammazero/deque's ring
// buffer with a mutex. The *protocol* (owner LIFO pop, stealer FIFO pop,
// push always from the owner's end) matches the spec; only the
// lock-freedom is traded for a short critical section.
package wq

import (
	"sync"

	"github.com/gammazero/deque"
)

// Deque is a per-worker work queue for a single priority level.
type Deque[T any] struct {
	mu sync.Mutex
	d  deque.Deque[T]
}

// New returns an empty Deque.
func New[T any]() *Deque[T] {
	return &Deque[T]{}
}

// PushBottom pushes an item onto the owner's end of the queue. Only the
// owning worker may call this.
func (q *Deque[T]) PushBottom(v T) {
	q.mu.Lock()
	q.d.PushBack(v)
	q.mu.Unlock()
}

// PopBottom pops from the owner's end (LIFO). Only the owning worker may
// call this.
func (q *Deque[T]) PopBottom() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.d.Len() == 0 {
		return v, false
	}
	v = q.d.PopBack()
	return v, true
}

// Steal pops from the far end (FIFO), for use by any worker other than
// the owner.
func (q *Deque[T]) Steal() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.d.Len() == 0 {
		return v, false
	}
	v = q.d.PopFront()
	return v, true
}

// Len reports the current depth. Racy by nature: the depth may change as
// soon as the call returns.
func (q *Deque[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.d.Len()
}
