package taskgraph

// ScalablePipeline is a Pipeline whose pipe sequence can be swapped
// between runs without reconstructing the composing Task (spec §4.4
// "reset(begin, end)"). The original C++ API takes an iterator range
// over a user-held container of pipes; Go has no equivalent iterator
// abstraction in the examples pack, so Reset takes the replacement pipe
// slice directly (see DESIGN.md Open Question "ScalablePipeline range").
type ScalablePipeline struct {
	*Pipeline
}

// NewScalablePipeline constructs a ScalablePipeline with an initial pipe
// sequence.
func NewScalablePipeline(lines int, pipes ...Pipe) *ScalablePipeline {
	return &ScalablePipeline{Pipeline: NewPipeline(lines, pipes...)}
}

// Reset swaps in a new pipe sequence and rewinds token counting to 0,
// without rebuilding the underlying Graph/Task (spec §4.4, Testable
// Property "reset on a ScalablePipeline followed by run restarts token
// counting from 0").
func (sp *ScalablePipeline) Reset(pipes ...Pipe) {
	sp.serialMu.Lock()
	sp.pipes = append([]Pipe(nil), pipes...)
	sp.serialCursor = make([]int64, len(sp.pipes))
	sp.serialMu.Unlock()
	sp.resetForRun()
}
