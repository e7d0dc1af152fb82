package taskgraph

// PipeType tags whether a Pipe processes at most one token at a time
// (SERIAL, preserving token order) or any number concurrently
// (PARALLEL), per spec §4.4.
type PipeType int

const (
	PipeSerial PipeType = iota
	PipeParallel
)

func (t PipeType) String() string {
	if t == PipeParallel {
		return "parallel"
	}
	return "serial"
}

// Pipe is one stage of a Pipeline/ScalablePipeline.
type Pipe struct {
	Type PipeType
	Fn   func(*Pipeflow)
}

// Pipeflow is the handle a Pipe's callable uses to read its coordinates
// and affect scheduling (spec §4.4).
type Pipeflow struct {
	pl    *Pipeline
	token int64
	line  int
	pipe  int

	stopRequested bool
	deferredTo    int64
}

// Token returns this invocation's monotonic token number (0, 1, 2, ...).
func (pf *Pipeflow) Token() int64 { return pf.token }

// Line returns the scheduling slot in [0, lines) servicing this token.
func (pf *Pipeflow) Line() int { return pf.line }

// Pipe returns the stage index in [0, len(pipes)) currently executing.
func (pf *Pipeflow) Pipe() int { return pf.pipe }

// Stop requests that no token after this one be injected; only has
// effect when called from the first pipe (spec §4.4), silently ignored
// otherwise.
func (pf *Pipeflow) Stop() {
	if pf.pipe != 0 {
		return
	}
	pf.stopRequested = true
}

// Defer marks the current token as deferred behind predecessorToken: the
// current SERIAL pipe invocation is retried only after predecessorToken
// has fully finished the pipeline (spec §4.4 "defer(tok)").
func (pf *Pipeflow) Defer(predecessorToken int64) {
	pf.deferredTo = predecessorToken
}
