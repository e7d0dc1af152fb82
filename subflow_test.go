package taskgraph

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A joined subflow's children all complete before the subflow task itself
// is considered done, and the enclosing topology waits for them.
func TestSubflowJoinWaitsForChildren(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var children int32
	var after int32

	tf := New("subflow-join")
	sf := tf.EmplaceSubflow(func(sub *Subflow) {
		for i := 0; i < 10; i++ {
			sub.Emplace(func() { atomic.AddInt32(&children, 1) })
		}
		sub.Join()
	})
	done := tf.Emplace(func() {
		assert.Equal(t, int32(10), atomic.LoadInt32(&children))
		atomic.AddInt32(&after, 1)
	})
	sf.Precede(done)

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int32(10), children)
	assert.Equal(t, int32(1), after)
}

// A detached subflow (no explicit Join) still has its children contribute
// to the enclosing topology: wait_for_all equivalent (Run's Future) only
// resolves once they too have completed.
func TestSubflowDetachedChildrenStillJoinTopology(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var children int32
	tf := New("subflow-detached")
	tf.EmplaceSubflow(func(sub *Subflow) {
		for i := 0; i < 5; i++ {
			sub.Emplace(func() { atomic.AddInt32(&children, 1) })
		}
		// no Join(): children run detached, but the topology must still
		// wait for them before Run's future resolves.
	})

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int32(5), children)
}

// A subflow may itself spawn a nested subflow; both levels must drain
// before the outer topology completes.
func TestNestedSubflow(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var leaf int32
	tf := New("nested-subflow")
	tf.EmplaceSubflow(func(sub *Subflow) {
		sub.EmplaceSubflow(func(inner *Subflow) {
			inner.Emplace(func() { atomic.AddInt32(&leaf, 1) })
			inner.Join()
		})
		sub.Join()
	})

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Equal(t, int32(1), leaf)
}
