package taskgraph

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that once every test has released its Executor, no
// worker goroutine is left running — the Go analogue of Testable Property
// 8 ("after wait_for_all() returns, no task payload is executing and no
// task is enqueued"), checked here at the process level across the whole
// suite.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
