package taskgraph

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	entries []string
	exits   []string
}

func (o *recordingObserver) OnEntry(workerID int, tv TaskView) {
	o.mu.Lock()
	o.entries = append(o.entries, tv.Name)
	o.mu.Unlock()
}

func (o *recordingObserver) OnExit(workerID int, tv TaskView) {
	o.mu.Lock()
	o.exits = append(o.exits, tv.Name)
	o.mu.Unlock()
}

// An installed Observer sees one OnEntry/OnExit pair per task invocation.
func TestObserverSeesEveryTaskInvocation(t *testing.T) {
	obs := &recordingObserver{}
	exec := NewExecutor(2, WithObservers(obs))
	defer exec.Release()

	var ran int32
	tf := New("observed")
	a := tf.Emplace(func() { atomic.AddInt32(&ran, 1) }).SetName("A")
	b := tf.Emplace(func() { atomic.AddInt32(&ran, 1) }).SetName("B")
	a.Precede(b)

	_, err := exec.Run(tf).Get()
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.ElementsMatch(t, []string{"A", "B"}, obs.entries)
	assert.ElementsMatch(t, []string{"A", "B"}, obs.exits)
}
