package taskgraph

// Task is a lightweight, copyable handle to a Node, exposing the fluent
// graph-construction API (spec §6 External Interfaces): precede/succeed,
// priority, name, acquire/release, and is the return value of every
// TaskFlow construction call (Emplace, Placeholder, ComposedOf...).
type Task struct {
	node *Node
}

// taskOf wraps a Node in a Task handle. Empty (zero-value) Tasks carry a
// nil node and are otherwise inert, mirroring AsyncTask's "empty" state.
func taskOf(n *Node) Task { return Task{node: n} }

// Empty reports whether this handle refers to no node (a Placeholder
// that was never assigned a payload remains a valid, non-empty Task; this
// is only true for the zero Task{}).
func (t Task) Empty() bool { return t.node == nil }

// Name returns the task's display name.
func (t Task) Name() string {
	if t.node == nil {
		return ""
	}
	return t.node.name
}

// SetName sets the task's display name and returns the task for chaining.
func (t Task) SetName(name string) Task {
	t.node.name = name
	return t
}

// Precede makes t a predecessor of each of others: others run only after
// t completes (subject to t's other predecessors too).
func (t Task) Precede(others ...Task) Task {
	for _, o := range others {
		t.node.precede(o.node)
	}
	return t
}

// Succeed makes t a successor of each of others: t runs only after every
// one of others completes.
func (t Task) Succeed(others ...Task) Task {
	for _, o := range others {
		o.node.precede(t.node)
	}
	return t
}

// Priority sets the task's scheduling priority and returns t for
// chaining.
func (t Task) Priority(p TaskPriority) Task {
	t.node.priority = p
	return t
}

// GetPriority returns the task's current scheduling priority.
func (t Task) GetPriority() TaskPriority {
	return t.node.priority
}

// Acquire registers a semaphore this task must hold for the duration of
// its payload; it is acquired before the payload runs and released after.
func (t Task) Acquire(s *Semaphore) Task {
	t.node.semaphores = append(t.node.semaphores, s)
	return t
}

// Release registers a semaphore to release once this task's payload
// returns. The data model (spec §3) keeps a single semaphore set per
// node that is acquired before and released after running, so Release
// and Acquire both add to that same set; CriticalSection.Add calls both
// for every task it manages, matching the C++ source's
// task.acquire(sem)/task.release(sem) pair. Calling it twice for the
// same semaphore is harmless but redundant.
func (t Task) Release(s *Semaphore) Task {
	for _, have := range t.node.semaphores {
		if have == s {
			return t
		}
	}
	t.node.semaphores = append(t.node.semaphores, s)
	return t
}

// Node exposes the underlying Node for callers that need direct access
// (e.g. Runtime.Schedule, observers). Most users should not need this.
func (t Task) Node() *Node { return t.node }
