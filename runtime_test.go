package taskgraph

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A runtime task's spawned children implicitly join before the task is
// considered complete, even without an explicit rt.Join() call.
func TestRuntimeImplicitJoin(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var children int32
	tf := New("runtime-implicit")
	tf.EmplaceRuntime(func(rt *Runtime) {
		for i := 0; i < 8; i++ {
			rt.SilentAsync(func() { atomic.AddInt32(&children, 1) })
		}
	})

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int32(8), children)
}

// Runtime.Async's Future carries the callable's real return value, not a
// zero value snapshotted before the child ran.
func TestRuntimeAsyncFutureCarriesResult(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var fut *Future[any]
	tf := New("runtime-async-result")
	tf.EmplaceRuntime(func(rt *Runtime) {
		fut = rt.Async(func() (any, error) { return "child-result", nil })
		rt.Join()
	})

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)

	require.NotNil(t, fut)
	v, err := fut.Get()
	require.NoError(t, err)
	assert.Equal(t, "child-result", v)
}

// Runtime.Schedule forcibly marks a sibling node ready, bypassing its
// join counter.
func TestRuntimeScheduleBypassesJoinCounter(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	var gated int32
	tf := New("runtime-schedule")

	// target's only strong predecessor is blocker, but blocker is itself
	// only reachable through a conditional edge that never selects it, so
	// target's join counter can never reach zero naturally.
	target := tf.Emplace(func() { atomic.AddInt32(&gated, 1) })
	blocker := tf.Emplace(func() { atomic.AddInt32(&gated, 100) })
	blocker.Precede(target)
	elseTask := tf.Emplace(func() {})
	cond := tf.EmplaceCondition(func() int { return 1 }) // always picks elseTask, never blocker
	cond.Precede(blocker, elseTask)

	tf.EmplaceRuntime(func(rt *Runtime) {
		require.NoError(t, rt.Schedule(target))
	})

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int32(1), gated)
}

// Runtime.Corun executes a nested graph inline and returns only once every
// node in it has completed.
func TestRuntimeCorun(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var nestedRan int32
	nested := New("nested")
	nested.Emplace(func() { atomic.AddInt32(&nestedRan, 1) })
	nested.Emplace(func() { atomic.AddInt32(&nestedRan, 1) })

	tf := New("runtime-corun")
	tf.EmplaceRuntime(func(rt *Runtime) {
		rt.Corun(nested.Graph())
		assert.Equal(t, int32(2), atomic.LoadInt32(&nestedRan))
	})

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int32(2), nestedRan)
}

// Executor.Corun lets an external (non-worker) goroutine borrow the pool
// to run a graph to completion.
func TestExecutorCorunFromOutsideWorker(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var ran int32
	g := New("standalone")
	g.Emplace(func() { atomic.AddInt32(&ran, 1) })
	g.Emplace(func() { atomic.AddInt32(&ran, 1) })

	exec.Corun(g.Graph())
	assert.Equal(t, int32(2), ran)
}
