package taskgraph

import "go.uber.org/zap"

// WorkerInterface lets a caller hook the lifecycle of every worker
// goroutine (spec §4.1 construction parameter): scheduler_prologue runs
// before a worker enters its scheduling loop, scheduler_epilogue runs
// after it leaves (normally or via a captured panic).
type WorkerInterface interface {
	SchedulerPrologue(w *Worker)
	SchedulerEpilogue(w *Worker, err error)
}

// ExecutorOption configures an Executor at construction time (spec §10.3
// of SPEC_FULL.md: functional options are this library's only
// configuration surface — there are no environment variables and no
// persisted state).
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	workerInterface  WorkerInterface
	logger           *zap.Logger
	observers        []Observer
	maxStealAttempts int
}

func defaultExecutorConfig(numWorkers int) *executorConfig {
	return &executorConfig{
		logger:           defaultLogger(),
		maxStealAttempts: stealAttemptsFor(numWorkers),
	}
}

// stealAttemptsFor grows the steal-retry bound with pool size, per spec
// §4.1 ("The number of steal attempts before giving up is bounded; the
// bound grows with pool size").
func stealAttemptsFor(numWorkers int) int {
	n := numWorkers * 4
	if n < 8 {
		n = 8
	}
	return n
}

// WithWorkerInterface installs a WorkerInterface invoked around every
// worker's scheduling loop.
func WithWorkerInterface(wi WorkerInterface) ExecutorOption {
	return func(c *executorConfig) { c.workerInterface = wi }
}

// WithLogger installs a structured logger (go.uber.org/zap) for
// diagnostic events. The only event logged is a recovered task panic
// (task name, kind, error, stack, topology id); cancellation and worker
// lifecycle errors are not logged. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObservers installs observers notified around every task invocation.
func WithObservers(obs ...Observer) ExecutorOption {
	return func(c *executorConfig) { c.observers = append(c.observers, obs...) }
}

// WithMaxStealAttempts overrides the default steal-retry bound.
func WithMaxStealAttempts(n int) ExecutorOption {
	return func(c *executorConfig) {
		if n > 0 {
			c.maxStealAttempts = n
		}
	}
}
