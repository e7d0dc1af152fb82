package taskgraph

// TaskView is a read-only projection of a Node handed to Observer
// callbacks. It is deliberately not the full *Node so an observer cannot
// mutate topology state from a callback (spec §4.1 "optional shared
// observer list for per-task events"; shape resolved in SPEC_FULL.md
// §12.3, see DESIGN.md Open Question 1).
type TaskView struct {
	Name     string
	Kind     string
	Priority TaskPriority
}

func taskViewOf(n *Node) TaskView {
	return TaskView{Name: n.name, Kind: n.kind.String(), Priority: n.priority}
}

// Observer receives per-task lifecycle events from every worker. A
// metrics reporter (out of core scope, spec §2) would implement this
// interface; none ships with this module.
type Observer interface {
	// OnEntry is called by the owning worker immediately before a task's
	// payload runs.
	OnEntry(workerID int, tv TaskView)
	// OnExit is called by the owning worker immediately after a task's
	// payload returns (including via panic recovery).
	OnExit(workerID int, tv TaskView)
}
