package taskgraph

// TaskFlow is a user-facing, named Graph: the unit handed to an Executor's
// Run/RunN/RunUntil/RunWhile. It exposes the fluent construction API from
// spec §6 (emplace, placeholder, composed_of, linearize, ...).
type TaskFlow struct {
	graph *Graph
}

// New creates an empty, named TaskFlow.
func New(name string) *TaskFlow {
	return &TaskFlow{graph: newGraph(name)}
}

// Name returns the taskflow's display name.
func (f *TaskFlow) Name() string { return f.graph.Name() }

// SetName sets the taskflow's display name.
func (f *TaskFlow) SetName(name string) { f.graph.SetName(name) }

// Graph exposes the underlying Graph, e.g. for Executor.Corun or Runtime
// introspection.
func (f *TaskFlow) Graph() *Graph { return f.graph }

// Composable is implemented by anything a TaskFlow can compose_of: a
// plain Graph, or a Pipeline/ScalablePipeline's internal scheduling
// graph (spec §4.4: "A Pipeline composes with a Taskflow: it appears as
// a single Module-like task").
type Composable interface {
	internalGraph() *Graph
}

func (g *Graph) internalGraph() *Graph { return g }

// Emplace creates a single static task running fn and returns its handle.
func (f *TaskFlow) Emplace(fn func()) Task {
	n := newNode("")
	n.kind = kindStatic
	n.ptr = &staticBody{fn: fn}
	f.graph.append(n)
	return taskOf(n)
}

// EmplaceN creates one static task per fn, in order, mirroring the C++
// source's multi-argument emplace (e.g. `auto [A,B,C] = tf.emplace(...)`
// in original_source/examples/taskflow/priority.cc).
func (f *TaskFlow) EmplaceN(fns ...func()) []Task {
	out := make([]Task, len(fns))
	for i, fn := range fns {
		out[i] = f.Emplace(fn)
	}
	return out
}

// EmplaceCondition creates a condition task: its callable returns the
// index of the single successor (added via Precede, in call order) to
// activate.
func (f *TaskFlow) EmplaceCondition(fn func() int) Task {
	n := newNode("")
	n.kind = kindCondition
	n.ptr = &conditionBody{fn: fn}
	f.graph.append(n)
	return taskOf(n)
}

// EmplaceMultiCondition creates a multi-condition task: its callable
// returns the indices of zero or more successors to activate.
func (f *TaskFlow) EmplaceMultiCondition(fn func() []int) Task {
	n := newNode("")
	n.kind = kindMultiCondition
	n.ptr = &multiConditionBody{fn: fn}
	f.graph.append(n)
	return taskOf(n)
}

// EmplaceSubflow creates a subflow task: fn receives a Subflow handle it
// may use to spawn and join child work dynamically.
func (f *TaskFlow) EmplaceSubflow(fn func(*Subflow)) Task {
	n := newNode("")
	n.kind = kindSubflow
	n.ptr = &subflowBody{fn: fn, graph: newGraph("")}
	f.graph.append(n)
	return taskOf(n)
}

// EmplaceRuntime creates a runtime task: fn receives a Runtime handle
// giving it direct access to the executor's in-task scheduling API
// (Schedule, Corun, Async/SilentAsync) from inside the payload itself,
// grounded on original_source/tests/taskflow/test_runtimes.cc.
func (f *TaskFlow) EmplaceRuntime(fn func(*Runtime)) Task {
	n := newNode("")
	n.kind = kindRuntime
	n.ptr = &runtimeBody{fn: fn}
	f.graph.append(n)
	return taskOf(n)
}

// Placeholder creates an empty task with no payload yet; assign one with
// Task.Work/WorkCondition/WorkMultiCondition/WorkSubflow before running.
func (f *TaskFlow) Placeholder() Task {
	n := newNode("")
	f.graph.append(n)
	return taskOf(n)
}

// ComposedOf embeds another graph (or Pipeline) as a single module task.
// The nested graph runs inline on the invoking worker as its own nested
// Topology; the module task completes, and releases its own successors,
// once every node of the nested graph has finished.
func (f *TaskFlow) ComposedOf(c Composable) Task {
	n := newNode("")
	n.kind = kindModule
	n.ptr = &moduleBody{graph: c.internalGraph(), source: c}
	f.graph.append(n)
	return taskOf(n)
}

// Linearize chains tasks[i] -> tasks[i+1] for every consecutive pair.
func (f *TaskFlow) Linearize(tasks ...Task) {
	for i := 0; i+1 < len(tasks); i++ {
		tasks[i].Precede(tasks[i+1])
	}
}

// Work assigns (or reassigns) a static body to an existing task, e.g. one
// created via Placeholder.
func (t Task) Work(fn func()) Task {
	t.node.kind = kindStatic
	t.node.ptr = &staticBody{fn: fn}
	return t
}

// WorkCondition assigns a condition body to an existing task.
func (t Task) WorkCondition(fn func() int) Task {
	t.node.kind = kindCondition
	t.node.ptr = &conditionBody{fn: fn}
	return t
}

// WorkMultiCondition assigns a multi-condition body to an existing task.
func (t Task) WorkMultiCondition(fn func() []int) Task {
	t.node.kind = kindMultiCondition
	t.node.ptr = &multiConditionBody{fn: fn}
	return t
}

// WorkSubflow assigns a subflow body to an existing task.
func (t Task) WorkSubflow(fn func(*Subflow)) Task {
	t.node.kind = kindSubflow
	t.node.ptr = &subflowBody{fn: fn, graph: newGraph("")}
	return t
}

// WorkRuntime assigns a runtime body to an existing task.
func (t Task) WorkRuntime(fn func(*Runtime)) Task {
	t.node.kind = kindRuntime
	t.node.ptr = &runtimeBody{fn: fn}
	return t
}
