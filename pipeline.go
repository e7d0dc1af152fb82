package taskgraph

import (
	"sync"
	"sync/atomic"
)

// Pipeline composes with a TaskFlow as a single Module-like task whose
// internal graph drives the token-scheduling protocol of spec §4.4: N
// concurrent "line" tasks, each pulling the next token and carrying it
// through every pipe in order, respecting SERIAL pipes' one-token-at-a-
// time ordering and PARALLEL pipes' unordered concurrency. Grounded on
// original_source/examples/taskflow/{pipeline,scalable_pipeline,
// taskflow_pipeline}.cc for the public call shape; the token-ordering
// state machine itself follows spec §4.4's operational description,
// since pipeline.h was filtered out of the retrieved original_source.
type Pipeline struct {
	lines int
	pipes []Pipe
	graph *Graph

	nextToken atomic.Int64
	stopToken atomic.Int64 // -1 == no stop recorded yet

	serialMu     sync.Mutex
	serialCond   *sync.Cond
	serialCursor []int64

	doneMu sync.Mutex
	doneCh map[int64]chan struct{}
}

// NewPipeline constructs a Pipeline with the given concurrency (lines)
// and ordered pipe stages.
func NewPipeline(lines int, pipes ...Pipe) *Pipeline {
	if lines < 1 {
		lines = 1
	}
	pl := &Pipeline{
		lines: lines,
		pipes: append([]Pipe(nil), pipes...),
		graph: newGraph("pipeline"),
	}
	pl.serialCond = sync.NewCond(&pl.serialMu)
	pl.stopToken.Store(-1)
	pl.serialCursor = make([]int64, len(pl.pipes))
	pl.buildGraph()
	return pl
}

// buildGraph lays out one static task per line; all lines are sources
// (no edges between them) so corun dispatches every one of them the
// instant the enclosing module task runs.
func (pl *Pipeline) buildGraph() {
	pl.graph.Clear()
	for i := 0; i < pl.lines; i++ {
		line := i
		n := newNode("")
		n.kind = kindStatic
		n.ptr = &staticBody{fn: func() { pl.runLine(line) }}
		pl.graph.append(n)
	}
}

func (pl *Pipeline) internalGraph() *Graph { return pl.graph }

// resetForRun rewinds token/stop/ordering state ahead of each module
// invocation (a Pipeline composed into a run_n/run_until/conditional-loop
// taskflow runs more than once, and each run must start token counting
// at 0 again — spec §8 round-trip property).
func (pl *Pipeline) resetForRun() {
	pl.nextToken.Store(0)
	pl.stopToken.Store(-1)
	pl.serialMu.Lock()
	for i := range pl.serialCursor {
		pl.serialCursor[i] = 0
	}
	pl.serialMu.Unlock()
	pl.doneMu.Lock()
	pl.doneCh = make(map[int64]chan struct{})
	pl.doneMu.Unlock()
}

// claimToken atomically reserves the next token number to inject at
// pipe 0, or reports false once a stop token has been recorded and every
// token up to it has already been claimed (spec §4.4 "next_token:
// advanced by the first pipe").
func (pl *Pipeline) claimToken() (int64, bool) {
	for {
		st := pl.stopToken.Load()
		tok := pl.nextToken.Load()
		if st >= 0 && tok > st {
			return 0, false
		}
		if pl.nextToken.CompareAndSwap(tok, tok+1) {
			return tok, true
		}
	}
}

// waitSerialTurn blocks until pipeIdx's SERIAL cursor reaches tok,
// enforcing the "SERIAL pipe executes at most one token at a time, in
// order" invariant.
func (pl *Pipeline) waitSerialTurn(pipeIdx int, tok int64) {
	pl.serialMu.Lock()
	for pl.serialCursor[pipeIdx] != tok {
		pl.serialCond.Wait()
	}
	pl.serialMu.Unlock()
}

// advanceSerialTurn releases pipeIdx's SERIAL slot to the next token.
func (pl *Pipeline) advanceSerialTurn(pipeIdx int) {
	pl.serialMu.Lock()
	pl.serialCursor[pipeIdx]++
	pl.serialMu.Unlock()
	pl.serialCond.Broadcast()
}

func (pl *Pipeline) tokenDoneChan(tok int64) chan struct{} {
	pl.doneMu.Lock()
	defer pl.doneMu.Unlock()
	if pl.doneCh == nil {
		pl.doneCh = make(map[int64]chan struct{})
	}
	ch, ok := pl.doneCh[tok]
	if !ok {
		ch = make(chan struct{})
		pl.doneCh[tok] = ch
	}
	return ch
}

func (pl *Pipeline) markTokenDone(tok int64) {
	close(pl.tokenDoneChan(tok))
}

// runLine is one of the `lines` concurrent scheduling slots: it repeatedly
// claims the next token and carries it through every pipe, honoring
// SERIAL ordering, stop(), and defer() (spec §4.4 "Protocol").
func (pl *Pipeline) runLine(lineIdx int) {
	for {
		tok, ok := pl.claimToken()
		if !ok {
			return
		}
		pf := &Pipeflow{pl: pl, token: tok, line: lineIdx}
		stopped := false

		for pipeIdx := 0; pipeIdx < len(pl.pipes); {
			p := pl.pipes[pipeIdx]
			pf.pipe = pipeIdx
			pf.stopRequested = false
			pf.deferredTo = -1

			if p.Type == PipeSerial {
				pl.waitSerialTurn(pipeIdx, tok)
			}
			if pipeIdx == 0 {
				// A token claimed before an earlier token recorded the stop
				// is dropped without running any pipe.
				if st := pl.stopToken.Load(); st >= 0 && tok > st {
					if p.Type == PipeSerial {
						pl.advanceSerialTurn(pipeIdx)
					}
					break
				}
			}
			p.Fn(pf)

			if pipeIdx == 0 && pf.stopRequested {
				pl.stopToken.Store(tok)
				stopped = true
			}

			if p.Type == PipeSerial {
				if pf.deferredTo >= 0 {
					<-pl.tokenDoneChan(pf.deferredTo)
					continue // retry the same pipe for the same token
				}
				pl.advanceSerialTurn(pipeIdx)
			}

			if stopped {
				break
			}
			pipeIdx++
		}

		pl.markTokenDone(tok)
	}
}
