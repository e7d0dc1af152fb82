package taskgraph

import "go.uber.org/zap"

// defaultLogger is silent by default so the library makes no noise
// unless a caller opts in with WithLogger (spec §6: no required
// configuration, no environment variables).
func defaultLogger() *zap.Logger {
	return zap.NewNop()
}
