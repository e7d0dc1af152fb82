package taskgraph

import (
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flowforge/taskgraph/internal/rc"
)

func newCounter(n int64) *rc.Counter {
	c := rc.New()
	c.Set(n)
	return c
}

// Executor is the shared worker pool (spec §4.1): a fixed number of
// goroutines, each servicing its own three priority deques and stealing
// from the others, dispatching across however many Topologies happen to
// be running concurrently at once. This is a deliberate generalization
// beyond the teacher's one-scheduling-loop-per-graph design (see
// DESIGN.md): every Node carries its own owning *Topology pointer so a
// single shared pool can make progress on several runs at a time, the
// way spec §4.1 describes the pool.
type Executor struct {
	workers  []*Worker
	notifier *NotifierBus
	cfg      *executorConfig
	asyncReg *asyncRegistry

	wg sync.WaitGroup // every outstanding node dispatch, topology-owned or free

	topMu    sync.Mutex
	inFlight map[*Topology]struct{}

	rr atomic.Uint64

	pool       *errgroup.Group
	closed     atomic.Bool
	closeOnce  sync.Once
	shutdownMu sync.Mutex
	shutdownEr error
}

// NewExecutor constructs a pool of numWorkers goroutines and starts them
// immediately. numWorkers <= 0 defaults to runtime.NumCPU() (spec §6
// "Default worker count: number of hardware threads").
func NewExecutor(numWorkers int, opts ...ExecutorOption) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	cfg := defaultExecutorConfig(numWorkers)
	for _, opt := range opts {
		opt(cfg)
	}

	e := &Executor{
		notifier: NewNotifierBus(),
		cfg:      cfg,
		asyncReg: newAsyncRegistry(),
		inFlight: make(map[*Topology]struct{}),
	}
	e.workers = make([]*Worker, numWorkers)
	for i := range e.workers {
		e.workers[i] = newWorker(i, e)
	}

	eg := &errgroup.Group{}
	for _, w := range e.workers {
		w := w
		eg.Go(func() error { return e.schedulerLoop(w) })
	}
	e.pool = eg
	return e
}

// NumWorkers returns the size of the pool.
func (e *Executor) NumWorkers() int { return len(e.workers) }

// schedulerLoop is the per-worker hot loop: pop local, else steal, else
// park on the NotifierBus (spec §4.1, §4.3). It returns only once the
// executor is closed.
func (e *Executor) schedulerLoop(w *Worker) (err error) {
	if e.cfg.workerInterface != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = panicAsError(r)
				}
			}()
			e.cfg.workerInterface.SchedulerPrologue(w)
		}()
	}
	defer func() {
		if e.cfg.workerInterface != nil {
			e.cfg.workerInterface.SchedulerEpilogue(w, err)
		}
	}()

	for {
		if n, ok := w.popLocal(); ok {
			e.invokeNode(w, n)
			continue
		}
		if n, ok := w.steal(e.workers, e.cfg.maxStealAttempts); ok {
			e.invokeNode(w, n)
			continue
		}
		if e.closed.Load() {
			return err
		}
		token := e.notifier.PrepareWait()
		if e.closed.Load() {
			e.notifier.CancelWait(token)
			return err
		}
		if n, ok := w.popLocal(); ok {
			e.notifier.CancelWait(token)
			e.invokeNode(w, n)
			continue
		}
		if n, ok := w.steal(e.workers, e.cfg.maxStealAttempts); ok {
			e.notifier.CancelWait(token)
			e.invokeNode(w, n)
			continue
		}
		e.notifier.CommitWait(token)
	}
}

// drainUntil runs w's normal dispatch loop — local pop, steal, park —
// except it returns as soon as done() reports true instead of only on
// executor shutdown. Subflow.Join, Runtime.Join and Runtime/Executor
// Corun all use this so the calling worker keeps servicing any ready
// work instead of blocking out of the steal pool (spec §5 "Suspension
// points").
func (e *Executor) drainUntil(w *Worker, done func() bool) {
	for !done() {
		if n, ok := w.popLocal(); ok {
			e.invokeNode(w, n)
			continue
		}
		if n, ok := w.steal(e.workers, e.cfg.maxStealAttempts); ok {
			e.invokeNode(w, n)
			continue
		}
		if done() {
			return
		}
		token := e.notifier.PrepareWait()
		if done() {
			e.notifier.CancelWait(token)
			return
		}
		if n, ok := w.popLocal(); ok {
			e.notifier.CancelWait(token)
			e.invokeNode(w, n)
			continue
		}
		if n, ok := w.steal(e.workers, e.cfg.maxStealAttempts); ok {
			e.notifier.CancelWait(token)
			e.invokeNode(w, n)
			continue
		}
		e.notifier.CommitWait(token)
	}
}

// pushRoundRobin hands a node that is already fully accounted for
// (wg/topology counters already bumped, or re-dispatch of a granted
// semaphore waiter) to a worker chosen round-robin, for submissions with
// no natural "current worker" (external Run/Async calls).
func (e *Executor) pushRoundRobin(n *Node) {
	idx := int(e.rr.Add(1)) % len(e.workers)
	e.workers[idx].pushLocal(n)
	e.notifier.NotifyOne()
}

// enqueue is the accounting choke point for genuinely external dispatch —
// a fresh Run/RunN/RunUntil/RunWhile's source nodes, a free async/
// dependent-async submission — where there is no "current worker" to
// prefer. It round-robins across the pool. Re-dispatch of a node already
// counted (a semaphore waiter just granted a retry) must call
// pushRoundRobin directly instead.
func (e *Executor) enqueue(n *Node) {
	e.wg.Add(1)
	if n.topology != nil {
		n.topology.joinCounter.Increase()
	}
	e.pushRoundRobin(n)
}

// enqueueLocal is enqueue's in-pool counterpart (spec §4.1 "Dispatch"): n
// became ready because of something worker w just did — it decremented a
// join counter to zero, chose a conditional branch, completed a
// dependent-async's last unresolved dependency, or is a Subflow/Runtime
// child w itself spawned — so n lands on w's own deque instead of
// bouncing to an arbitrary worker.
func (e *Executor) enqueueLocal(w *Worker, n *Node) {
	e.wg.Add(1)
	if n.topology != nil {
		n.topology.joinCounter.Increase()
	}
	w.pushLocal(n)
	e.notifier.NotifyOne()
}

// dispatchNew is enqueueLocal exposed to Runtime/Subflow for dynamically
// spawned children: they always run on a worker, so the child lands on
// that same worker's queue.
func (e *Executor) dispatchNew(w *Worker, n *Node) { e.enqueueLocal(w, n) }

// forceReady bypasses n's join counter entirely (Runtime.Schedule, spec
// §4.5), from within the runtime's own worker w: this is n's dispatch,
// exactly like any other first invocation, so it still goes through
// enqueueLocal to keep the topology/global outstanding counts correct.
func (e *Executor) forceReady(w *Worker, n *Node) {
	n.joinCounter.Set(0)
	n.setFlag(flagReady)
	e.enqueueLocal(w, n)
}

// invokeNode runs a single node's payload (or, if its semaphores cannot
// all be acquired right now, parks it and returns without running
// anything) and then propagates completion to successors, the owning
// topology, and any await counters watching it.
func (e *Executor) invokeNode(w *Worker, n *Node) {
	if !e.acquireSemaphores(n) {
		return
	}

	cancelled := n.topology != nil && n.topology.Cancelled()

	var branch []int
	var taskErr error

	if !cancelled {
		for _, ob := range e.cfg.observers {
			ob.OnEntry(w.id, taskViewOf(n))
		}
		n.runSt.Store(runRunning)

		func() {
			defer func() {
				if r := recover(); r != nil {
					taskErr = &PanicError{NodeName: n.name, Kind: n.kind.String(), Value: r, Stack: debug.Stack()}
				}
			}()
			branch = e.runPayload(w, n)
		}()

		for _, ob := range e.cfg.observers {
			ob.OnExit(w.id, taskViewOf(n))
		}
	}

	n.conditionSelected = branch
	if taskErr != nil {
		n.runSt.Store(runFailed)
		if n.topology != nil {
			n.topology.captureErr(taskErr)
			n.topology.cancel()
		}
		fields := []zap.Field{
			zap.String("task", n.name),
			zap.String("kind", n.kind.String()),
			zap.Error(taskErr),
		}
		if pe, ok := taskErr.(*PanicError); ok {
			fields = append(fields, zap.ByteString("stack", pe.Stack))
		}
		if n.topology != nil {
			fields = append(fields, zap.String("topology", n.topology.id.String()))
		}
		e.cfg.logger.Error("task panicked", fields...)
	} else if !cancelled {
		n.runSt.Store(runFinished)
	}

	e.releaseSemaphores(n)
	e.finishNode(w, n, branch)
}

// runPayload invokes the kind-specific body and, for Condition/
// MultiCondition tasks, returns the chosen branch index/indices.
func (e *Executor) runPayload(w *Worker, n *Node) []int {
	switch n.kind {
	case kindStatic:
		n.ptr.(*staticBody).fn()
	case kindCondition:
		idx := n.ptr.(*conditionBody).fn()
		return []int{idx}
	case kindMultiCondition:
		return n.ptr.(*multiConditionBody).fn()
	case kindSubflow:
		e.invokeSubflow(w, n, n.ptr.(*subflowBody))
	case kindModule:
		e.invokeModule(w, n.ptr.(*moduleBody))
	case kindRuntime:
		e.invokeRuntime(w, n, n.ptr.(*runtimeBody))
	case kindAsync, kindSilentAsync, kindDependentAsync:
		e.invokeAsync(w, n, n.ptr.(*asyncBody))
	}
	return nil
}

func (e *Executor) invokeSubflow(w *Worker, n *Node, b *subflowBody) {
	sf := newSubflow(w, n, b.graph)
	if !b.instancelized {
		b.instancelized = true
		b.fn(sf)
	}
	sf.finalizeAndDispatch()
}

func (e *Executor) invokeModule(w *Worker, b *moduleBody) {
	if r, ok := b.source.(resettable); ok {
		r.resetForRun()
	}
	e.corunOn(w, b.graph)
}

func (e *Executor) invokeRuntime(w *Worker, n *Node, b *runtimeBody) {
	rt := newRuntime(w, n)
	b.fn(rt)
	if !rt.joined {
		e.drainUntil(w, func() bool { return rt.pending.Value() == 0 })
	}
}

func (e *Executor) invokeAsync(w *Worker, n *Node, b *asyncBody) {
	b.fn()
	if n.kind == kindDependentAsync {
		if regs := e.asyncReg.complete(n); len(regs) > 0 {
			for _, reg := range regs {
				if reg.pending.Decrease() == 0 {
					e.enqueueLocal(w, reg.node)
				}
			}
		}
	}
}

// finishNode propagates n's completion: conditional branches are
// dispatched directly (bypassing join counters), strong successors whose
// join counter reaches zero are dispatched, and every counter watching n
// (its topology, any Subflow/Runtime awaitCounter, the global
// outstanding count) is decremented. It always broadcasts on the
// NotifierBus afterward so any worker parked in drainUntil re-evaluates
// its done() predicate even when nothing new was enqueued (spec §4.3
// liveness).
func (e *Executor) finishNode(w *Worker, n *Node, branch []int) {
	// Restore n's own join counter to its strong-predecessor count so a
	// conditional loop that runs n's predecessors again can make n ready
	// again.
	var strong int64
	for _, dep := range n.Dependents() {
		if !dep.isConditional() {
			strong++
		}
	}
	n.joinCounter.Set(strong)

	if n.isConditional() {
		succs := n.Successors()
		for _, idx := range branch {
			if idx >= 0 && idx < len(succs) {
				target := succs[idx]
				target.setFlag(flagConditioned)
				e.enqueueLocal(w, target)
			}
		}
	} else {
		for _, ready := range n.drop() {
			e.enqueueLocal(w, ready)
		}
	}

	if n.awaitCounter != nil {
		n.awaitCounter.Decrease()
	}

	t := n.topology
	e.wg.Done()
	if t != nil {
		if t.joinCounter.Decrease() == 0 {
			e.finishTopology(w, t)
		}
	}

	e.notifier.NotifyAll()
}

// finishTopology is called exactly once per run-or-rerun when a
// Topology's outstanding-dispatch counter returns to zero. If the
// predicate says to continue (run_n/run_until/run_while), the topology
// is reinitialized and restarted; otherwise its future resolves and its
// completion callback, if any, runs. w is the worker that drove the
// topology to zero, nil if this is the initial submit with no current
// worker yet.
func (e *Executor) finishTopology(w *Worker, t *Topology) {
	if t.predicate != nil && !t.predicate() && !t.Cancelled() {
		e.startRun(w, t)
		return
	}
	e.untrackTopology(t)
	t.graph.running.Store(false)
	if t.completionCb != nil {
		t.completionCb()
	}
	t.future.resolve(struct{}{}, t.err)
}

// startRun (re)initializes t and dispatches its sources, preferring w's
// own queue when a re-run was triggered in-pool (w non-nil); a fresh
// submit has no current worker and round-robins instead. Graphs with no
// nodes at all finish immediately.
func (e *Executor) startRun(w *Worker, t *Topology) {
	t.reinit()
	if len(t.sources) == 0 {
		e.finishTopology(w, t)
		return
	}
	// Hold the run open while the sources are dispatched, so an early
	// source finishing cannot bring the counter to zero before the rest
	// are queued.
	t.joinCounter.Increase()
	for _, src := range t.sources {
		if w != nil {
			e.enqueueLocal(w, src)
		} else {
			e.enqueue(src)
		}
	}
	if t.joinCounter.Decrease() == 0 {
		e.finishTopology(w, t)
	}
}

func (e *Executor) trackTopology(t *Topology) {
	e.topMu.Lock()
	e.inFlight[t] = struct{}{}
	e.topMu.Unlock()
}

func (e *Executor) untrackTopology(t *Topology) {
	e.topMu.Lock()
	delete(e.inFlight, t)
	e.topMu.Unlock()
}

// acquireSemaphores tries to take every semaphore n.Acquire listed, in
// order, without blocking. On the first one that is unavailable it rolls
// back whatever it already took, parks n on that semaphore's FIFO
// waiter list, and reports false; the node is re-dispatched (and must
// retry the whole list from scratch) once a Release grants it a turn.
func (e *Executor) acquireSemaphores(n *Node) bool {
	if len(n.semaphores) == 0 {
		return true
	}
	for i, s := range n.semaphores {
		if s.tryAcquire() {
			continue
		}
		for j := 0; j < i; j++ {
			if granted := n.semaphores[j].release(); granted != nil {
				e.pushRoundRobin(granted)
			}
		}
		s.addWaiter(n)
		return false
	}
	n.setFlag(flagAcquired)
	return true
}

// releaseSemaphores releases every semaphore n holds after a successful
// acquire, each possibly handing off to a queued waiter that must then
// retry its full list.
func (e *Executor) releaseSemaphores(n *Node) {
	if len(n.semaphores) == 0 {
		return
	}
	for _, s := range n.semaphores {
		if granted := s.release(); granted != nil {
			e.pushRoundRobin(granted)
		}
	}
	n.clearFlag(flagAcquired)
}

// Run submits g for a single execution and returns immediately with a
// Future that resolves once every task has completed.
func (e *Executor) Run(tf *TaskFlow) *Future[struct{}] {
	return e.submit(tf.graph, alwaysStop, nil)
}

// RunN runs g exactly n times in succession.
func (e *Executor) RunN(tf *TaskFlow, n int) *Future[struct{}] {
	if n <= 0 {
		fut := newFuture[struct{}]()
		fut.resolve(struct{}{}, nil)
		return fut
	}
	count := 0
	return e.submit(tf.graph, func() bool {
		count++
		return count >= n
	}, nil)
}

// RunUntil runs g repeatedly until pred returns true, then (optionally)
// calls completion.
func (e *Executor) RunUntil(tf *TaskFlow, pred func() bool, completion ...func()) *Future[struct{}] {
	return e.submit(tf.graph, pred, firstFunc(completion))
}

// RunWhile runs g repeatedly while pred returns true (i.e. stops the
// first time it returns false), the complementary polarity to RunUntil
// (see DESIGN.md Open Question 3).
func (e *Executor) RunWhile(tf *TaskFlow, pred func() bool, completion ...func()) *Future[struct{}] {
	return e.submit(tf.graph, func() bool { return !pred() }, firstFunc(completion))
}

func (e *Executor) submit(g *Graph, pred func() bool, cb func()) *Future[struct{}] {
	if e.closed.Load() {
		fut := newFuture[struct{}]()
		fut.resolve(struct{}{}, ErrExecutorStopped)
		return fut
	}
	if !g.running.CompareAndSwap(false, true) {
		fut := newFuture[struct{}]()
		fut.resolve(struct{}{}, ErrInvariantViolation)
		return fut
	}
	t := newTopology(e, g, pred, cb)
	t.future.topology = t
	e.trackTopology(t)
	e.startRun(nil, t)
	return t.future
}

func alwaysStop() bool { return true }

func firstFunc(fns []func()) func() {
	if len(fns) == 0 {
		return nil
	}
	return fns[0]
}

// corunOn runs g to completion inline on w, interleaved with normal
// scheduling (spec §4.5 Runtime.corun, §6 Executor.corun).
func (e *Executor) corunOn(w *Worker, g *Graph) {
	t := newTopology(e, g, nil, nil)
	t.reinit()
	if len(t.sources) == 0 {
		return
	}
	for _, src := range t.sources {
		e.enqueueLocal(w, src)
	}
	e.drainUntil(w, func() bool { return t.joinCounter.Value() == 0 })
}

// Corun executes g to completion on the calling goroutine, which
// participates in the pool's scheduling for the duration: g's ready
// nodes are pushed onto a private guest queue that no pool worker steals
// from, and the caller also steals from the pool's workers. Usable from
// outside any worker goroutine,
// e.g. a plain user goroutine that wants to borrow the pool (spec §5
// "callers' threads may also act as workers temporarily when calling
// corun").
func (e *Executor) Corun(g *Graph) {
	guest := newWorker(-1, e)
	e.corunOn(guest, g)
}

// WaitForAll blocks until every currently tracked topology has resolved,
// waiting on them concurrently via golang.org/x/sync/errgroup and
// aggregating any errors with go.uber.org/multierr, then waits for the
// pool's global outstanding count to drain (covers free async/
// dependent-async submissions not tied to any topology). Per spec
// Testable Property 8, once it returns no task payload is executing and
// no task remains enqueued anywhere in the pool.
func (e *Executor) WaitForAll() error {
	e.topMu.Lock()
	tops := make([]*Topology, 0, len(e.inFlight))
	for t := range e.inFlight {
		tops = append(tops, t)
	}
	e.topMu.Unlock()

	var eg errgroup.Group
	var mu sync.Mutex
	var combined error
	for _, t := range tops {
		t := t
		eg.Go(func() error {
			_, err := t.future.Get()
			if err != nil {
				mu.Lock()
				combined = multierr.Append(combined, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	e.wg.Wait()
	return combined
}

// Async schedules fn as a free (non-topology) task and returns a Future
// for its result.
func (e *Executor) Async(fn func() (any, error)) *Future[any] {
	fut := newFuture[any]()
	if e.closed.Load() {
		fut.resolve(nil, ErrExecutorStopped)
		return fut
	}
	n := newNode("")
	n.kind = kindAsync
	n.ptr = &asyncBody{fn: func() (any, error) {
		v, err := fn()
		fut.resolve(v, err)
		return v, err
	}}
	e.enqueue(n)
	return fut
}

// SilentAsync schedules fn as a free task with no observable result. A
// submission after Release has no effect: fn is never run.
func (e *Executor) SilentAsync(fn func()) {
	if e.closed.Load() {
		return
	}
	n := newNode("")
	n.kind = kindSilentAsync
	n.ptr = &asyncBody{fn: func() (any, error) { fn(); return nil, nil }}
	e.enqueue(n)
}

// DependentAsync schedules fn to run only after every dep's node has
// completed, returning an AsyncTask usable as a dependency for further
// calls and a Future for fn's result (spec §4.5). A submission after
// Release returns an empty AsyncTask and a Future already resolved with
// ErrExecutorStopped; fn is never run.
func (e *Executor) DependentAsync(fn func() (any, error), deps ...AsyncTask) (AsyncTask, *Future[any]) {
	if e.closed.Load() {
		fut := newFuture[any]()
		fut.resolve(nil, ErrExecutorStopped)
		return AsyncTask{}, fut
	}
	n, fut := e.newDependentNode(fn, false)
	e.scheduleDependent(n, deps)
	return AsyncTask{node: n}, fut
}

// SilentDependentAsync is DependentAsync without an observable result. A
// submission after Release returns an empty AsyncTask; fn is never run.
func (e *Executor) SilentDependentAsync(fn func(), deps ...AsyncTask) AsyncTask {
	if e.closed.Load() {
		return AsyncTask{}
	}
	n, _ := e.newDependentNode(func() (any, error) { fn(); return nil, nil }, true)
	e.scheduleDependent(n, deps)
	return AsyncTask{node: n}
}

func (e *Executor) newDependentNode(fn func() (any, error), silent bool) (*Node, *Future[any]) {
	n := newNode("")
	n.kind = kindDependentAsync
	if silent {
		n.ptr = &asyncBody{fn: fn}
		return n, nil
	}
	fut := newFuture[any]()
	n.ptr = &asyncBody{fn: func() (any, error) {
		v, err := fn()
		fut.resolve(v, err)
		return v, err
	}}
	return n, fut
}

// scheduleDependent wires n behind deps' nodes (spec §4.5 "DependentAsync
// scheduling"): K unresolved dependencies become a counter initialized to
// K, decremented by the registry as each dependency completes; a
// dependency already finished at submission time resolves immediately,
// and K == 0 enqueues n right away (Testable Property 7).
func (e *Executor) scheduleDependent(n *Node, deps []AsyncTask) {
	k := int64(0)
	for _, d := range deps {
		if !d.Empty() {
			k++
		}
	}
	if k == 0 {
		e.enqueue(n)
		return
	}

	reg := &dependentRegistration{node: n, pending: newCounter(k)}
	var resolvedNow int64
	for _, d := range deps {
		if d.Empty() {
			continue
		}
		if e.asyncReg.register(d.node, reg) {
			resolvedNow++
		}
	}
	if resolvedNow > 0 && reg.pending.DecreaseBy(resolvedNow) == 0 {
		e.enqueue(n)
	}
}

// Release shuts the executor down: it first drains every currently
// outstanding dispatch, then stops accepting new work and tears down the
// worker pool, returning the first error any worker's scheduler loop
// reported (a recovered SchedulerPrologue panic); errors from other
// workers are not aggregated. Safe to call more than once; later calls
// return the first call's result.
func (e *Executor) Release() error {
	e.closeOnce.Do(func() {
		e.wg.Wait()
		e.closed.Store(true)
		e.notifier.Close()
		err := e.pool.Wait()
		e.shutdownMu.Lock()
		e.shutdownEr = err
		e.shutdownMu.Unlock()
	})
	e.shutdownMu.Lock()
	defer e.shutdownMu.Unlock()
	return e.shutdownEr
}

func panicAsError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New("taskgraph: worker lifecycle hook panicked")
}
