package taskgraph

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A CriticalSection of capacity 1 serializes every task that acquires it:
// at no instant do two of its tasks run concurrently.
func TestCriticalSectionMutualExclusion(t *testing.T) {
	exec := NewExecutor(8)
	defer exec.Release()

	cs := NewCriticalSection(1)
	var inFlight int32
	var violated int32

	tf := New("critical")
	tasks := make([]Task, 0, 20)
	for i := 0; i < 20; i++ {
		tasks = append(tasks, tf.Emplace(func() {
			if atomic.AddInt32(&inFlight, 1) > 1 {
				atomic.StoreInt32(&violated, 1)
			}
			atomic.AddInt32(&inFlight, -1)
		}))
	}
	cs.Add(tasks...)

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.Zero(t, violated)
}

// A Semaphore of capacity 2 allows at most 2 concurrent holders and never
// allows a 3rd in.
func TestSemaphoreCapacityBound(t *testing.T) {
	exec := NewExecutor(8)
	defer exec.Release()

	sem := NewSemaphore(2)
	var inFlight int32
	var maxSeen int32

	tf := New("semaphore")
	for i := 0; i < 12; i++ {
		task := tf.Emplace(func() {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if cur <= old || atomic.CompareAndSwapInt32(&maxSeen, old, cur) {
					break
				}
			}
			atomic.AddInt32(&inFlight, -1)
		})
		task.Acquire(sem)
		task.Release(sem)
	}

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)
	assert.LessOrEqual(t, maxSeen, int32(2))
	assert.Equal(t, int32(2), maxSeen, "should reach full capacity at least once under contention")
}
