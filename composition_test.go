package taskgraph

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S4 — composition: f0 has 5 chained nodes (+5 per run), f1 embeds two
// module-tasks of f0 (+10 per run), f2 embeds two module-tasks of f1 (+20
// per run). run_n(f2, n) must yield counter == 20n.
func TestNestedComposition(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Release()

	var counter int64
	incr := func() { atomic.AddInt64(&counter, 1) }

	buildF0 := func() *TaskFlow {
		f0 := New("f0")
		prev := f0.Emplace(incr)
		for i := 1; i < 5; i++ {
			next := f0.Emplace(incr)
			prev.Precede(next)
			prev = next
		}
		return f0
	}

	f1a, f1b := New("f1a"), New("f1b")
	f1a.ComposedOf(buildF0().Graph())
	f1a.ComposedOf(buildF0().Graph())
	f1b.ComposedOf(buildF0().Graph())
	f1b.ComposedOf(buildF0().Graph())

	f2 := New("f2")
	f2.ComposedOf(f1a.Graph())
	f2.ComposedOf(f1b.Graph())

	const n = 3
	_, err := exec.RunN(f2, n).Get()
	require.NoError(t, err)

	assert.Equal(t, int64(20*n), counter)
}

// ComposedOf'ing a Pipeline resets its run-scoped token state on every
// invocation, so repeated composition runs each start token counting at 0
// rather than accumulating across runs.
func TestComposedPipelineResetsEachRun(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Release()

	var totalTokens int64
	pipes := []Pipe{
		{Type: PipeSerial, Fn: func(pf *Pipeflow) {
			if pf.Token() >= 4 {
				pf.Stop()
				return
			}
			atomic.AddInt64(&totalTokens, 1)
		}},
	}
	pl := NewPipeline(2, pipes...)
	tf := New("composed-pipeline")
	tf.ComposedOf(pl)

	_, err := exec.RunN(tf, 3).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(4*3), totalTokens)
}
