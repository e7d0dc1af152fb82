package taskgraph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S5 — priority (single-worker): B (HIGH), C (LOW), D (NORMAL) share a
// common predecessor A and successor E. A single worker's own deque always
// drains HIGH before NORMAL before LOW, so B must run before D, D before C.
func TestPrioritySingleWorkerOrdering(t *testing.T) {
	exec := NewExecutor(1)
	defer exec.Release()

	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	tf := New("priority")
	a := tf.Emplace(record("A"))
	b := tf.Emplace(record("B")).Priority(PriorityHigh).SetName("B")
	c := tf.Emplace(record("C")).Priority(PriorityLow).SetName("C")
	d := tf.Emplace(record("D")).Priority(PriorityNormal).SetName("D")
	e := tf.Emplace(record("E")).SetName("E")

	a.Precede(b, c, d)
	b.Precede(e)
	c.Precede(e)
	d.Precede(e)

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)

	require.Len(t, order, 5)
	assert.Equal(t, "A", order[0])
	idxB := indexOf(order, "B")
	idxC := indexOf(order, "C")
	idxD := indexOf(order, "D")
	assert.Less(t, idxB, idxD, "HIGH must run before NORMAL")
	assert.Less(t, idxD, idxC, "NORMAL must run before LOW")
	assert.Equal(t, "E", order[4])
}

func indexOf(order []string, name string) int {
	for i, v := range order {
		if v == name {
			return i
		}
	}
	return -1
}
