package taskgraph

// CriticalSection is a Semaphore specialized for limiting the maximum
// concurrency over a set of tasks, grounded on
// original_source/rigel/taskflow/algorithm/critical.h. Adding a task to a
// critical section acquires and releases the section's own semaphore
// around that task's run, so callers don't need to spell out matching
// Acquire/Release calls by hand.
type CriticalSection struct {
	*Semaphore
}

// NewCriticalSection creates a critical section admitting at most
// maxWorkers tasks concurrently. maxWorkers defaults to 1 if <= 0.
func NewCriticalSection(maxWorkers int) *CriticalSection {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &CriticalSection{Semaphore: NewSemaphore(maxWorkers)}
}

// Add registers each task against this critical section's semaphore.
func (c *CriticalSection) Add(tasks ...Task) {
	for _, t := range tasks {
		t.Acquire(c.Semaphore)
		t.Release(c.Semaphore)
	}
}
