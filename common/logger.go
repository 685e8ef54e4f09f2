package common

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// loggerPtr stores the package-wide diagnostic logger.
var loggerPtr atomic.Pointer[zap.Logger]

func init() {
	loggerPtr.Store(zap.NewNop())
}

// SetLogger installs l as the diagnostic stream for every package in this module.
// Passing nil restores the silent default.
//
// Parameters:
//   - l: the logger to install, or nil to disable logging
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

// Logger returns the current diagnostic logger. It is safe for concurrent use and never nil.
//
// Returns:
//   - *zap.Logger: the installed logger
func Logger() *zap.Logger {
	return loggerPtr.Load()
}
