package taskgraph

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 — linear chain: 5 nodes A->B->C->D->E, each increments a shared
// counter; on a single-worker executor the observed order must be exactly
// A,B,C,D,E.
func TestLinearChainSingleWorker(t *testing.T) {
	exec := NewExecutor(1)
	defer exec.Release()

	var counter int64
	var mu sync.Mutex
	var order []string

	tf := New("linear")
	mk := func(name string) Task {
		return tf.Emplace(func() {
			atomic.AddInt64(&counter, 1)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}).SetName(name)
	}
	a, b, c, d, e := mk("A"), mk("B"), mk("C"), mk("D"), mk("E")
	tf.Linearize(a, b, c, d, e)

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)

	assert.Equal(t, int64(5), counter)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, order)
}

// S1, multi-worker variant: order is unconstrained beyond precedence, but
// each payload of a three-task chain still runs exactly once.
func TestLinearChainMultiWorker(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var counter int64
	tf := New("linear")
	a := tf.Emplace(func() { atomic.AddInt64(&counter, 1) })
	b := tf.Emplace(func() { atomic.AddInt64(&counter, 1) })
	c := tf.Emplace(func() { atomic.AddInt64(&counter, 1) })
	tf.Linearize(a, b, c)

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter)
}

// S2 — conditional loop: A inits x=0, B increments x, C loops back to B
// while x<5 and otherwise falls through to D. After run, x==5 and D ran
// exactly once.
func TestConditionalLoop(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	var x int
	var dRuns int

	tf := New("cond-loop")
	a := tf.Emplace(func() { x = 0 })
	b := tf.Emplace(func() { x++ })
	var c Task
	c = tf.EmplaceCondition(func() int {
		if x < 5 {
			return 0
		}
		return 1
	})
	d := tf.Emplace(func() { dRuns++ })

	a.Precede(b)
	b.Precede(c)
	c.Precede(b, d) // branch 0 -> b (loop), branch 1 -> d

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)

	assert.Equal(t, 5, x)
	assert.Equal(t, 1, dRuns)
}

// Invariant 3: run_n(g, N) invokes each non-conditional payload exactly N
// times.
func TestRunNRepeatsEveryPayload(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	var counter int64
	tf := New("repeat")
	a := tf.Emplace(func() { atomic.AddInt64(&counter, 1) })
	b := tf.Emplace(func() { atomic.AddInt64(&counter, 1) })
	a.Precede(b)

	_, err := exec.RunN(tf, 7).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(14), counter)
}

// Invariant 2: a conditional successor not selected this run never runs.
func TestConditionSkipsUnselectedBranch(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	var left, right int
	tf := New("branch")
	c := tf.EmplaceCondition(func() int { return 1 })
	l := tf.Emplace(func() { left++ })
	r := tf.Emplace(func() { right++ })
	c.Precede(l, r)

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, 0, left)
	assert.Equal(t, 1, right)
}

// Round-trip: the same graph run twice via two separate Run calls produces
// identical side-effect counts each time.
func TestRoundTripRunTwice(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	var counter int64
	tf := New("roundtrip")
	tf.Emplace(func() { atomic.AddInt64(&counter, 1) })

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counter)

	_, err = exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counter)
}

// A panicking payload is reported as a *PanicError through the Future, and
// the rest of the topology does not hang.
func TestPanicCapturedAsError(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	tf := New("panics")
	tf.Emplace(func() { panic("boom") })

	_, err := exec.Run(tf).Get()
	require.Error(t, err)
	var pe *PanicError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Value)
}

// Submitting the same TaskFlow a second time while the first run is still
// in flight is a structural error (spec §7 "submitting a graph while it is
// already running"), not a hang or a silent race.
func TestDoubleSubmitWhileRunningIsInvariantViolation(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	release := make(chan struct{})
	tf := New("double-submit")
	tf.Emplace(func() { <-release })

	fut1 := exec.Run(tf)
	_, err := exec.Run(tf).Get()
	assert.ErrorIs(t, err, ErrInvariantViolation)

	close(release)
	_, err = fut1.Get()
	require.NoError(t, err)

	// Once the first run has fully completed, the same TaskFlow can be
	// submitted again.
	_, err = exec.Run(tf).Get()
	require.NoError(t, err)
}

// Future.WaitFor times out on work that outlives the deadline and succeeds
// once it has had enough time.
func TestFutureWaitFor(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	tf := New("slow")
	tf.Emplace(func() { time.Sleep(50 * time.Millisecond) })

	fut := exec.Run(tf)
	_, ok := fut.WaitFor(1 * time.Millisecond)
	assert.False(t, ok)

	_, ok = fut.WaitFor(500 * time.Millisecond)
	assert.True(t, ok)
}
