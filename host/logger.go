package host

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var defaultLogger atomic.Pointer[zap.Logger]

func init() {
	defaultLogger.Store(zap.NewNop())
}

// Logger returns the package default logger. It discards everything unless
// replaced with SetLogger.
func Logger() *zap.Logger {
	return defaultLogger.Load()
}

// SetLogger replaces the package default logger used by runtimes created
// without WithLogger. A nil logger restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger.Store(l)
}
