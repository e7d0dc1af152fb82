package taskgraph

import "sync"

// NotifierBus is the condition-variable-like parking primitive idle
// workers use, implemented per the algorithm of Eigen's EventCount as
// spec §4.3 describes:
//
//  1. A worker observes empty queues.
//  2. Calls PrepareWait to publish intent (bumps nothing yet, just reads
//     the current epoch).
//  3. Re-checks queues. If work appeared, calls CancelWait and resumes.
//  4. Otherwise calls CommitWait, which parks until the epoch changes.
//  5. Any thread pushing work calls NotifyOne/NotifyAll after the push;
//     the epoch bump guarantees a worker in the prepare-then-recheck
//     window sees either the work or the notification, never neither.
//
// The liveness invariant this buys: there is no schedule in which work is
// present but every worker stays parked, because the epoch read in
// PrepareWait happens strictly before the recheck, so any notification
// racing with the recheck is visible either as a changed epoch (CommitWait
// returns immediately) or as a pending signal the Cond delivers once the
// worker starts waiting.
type NotifierBus struct {
	mu     sync.Mutex
	cond   *sync.Cond
	epoch  uint64
	closed bool
}

// NewNotifierBus constructs a ready-to-use NotifierBus.
func NewNotifierBus() *NotifierBus {
	n := &NotifierBus{}
	n.cond = sync.NewCond(&n.mu)
	return n
}

// PrepareWait returns a token identifying the current epoch, for a later
// CommitWait. It does not register the caller as a waiter.
func (n *NotifierBus) PrepareWait() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.epoch
}

// CancelWait is called when the recheck after PrepareWait finds work
// after all; nothing to undo, it exists to name the protocol step.
func (n *NotifierBus) CancelWait(uint64) {}

// CommitWait parks until the epoch advances past token, or the bus is
// closed (executor shutting down).
func (n *NotifierBus) CommitWait(token uint64) {
	n.mu.Lock()
	for n.epoch == token && !n.closed {
		n.cond.Wait()
	}
	n.mu.Unlock()
}

// NotifyOne wakes at most one parked worker.
func (n *NotifierBus) NotifyOne() {
	n.mu.Lock()
	n.epoch++
	n.mu.Unlock()
	n.cond.Signal()
}

// NotifyAll wakes every parked worker.
func (n *NotifierBus) NotifyAll() {
	n.mu.Lock()
	n.epoch++
	n.mu.Unlock()
	n.cond.Broadcast()
}

// Close permanently releases every parked and future waiter, used during
// Executor shutdown.
func (n *NotifierBus) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.cond.Broadcast()
}
