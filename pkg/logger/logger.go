package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop() // replaced by Init; packages can log before configuration
)

// Init builds the global production logger at the given level. An
// unparseable level falls back to info.
func Init(level string) error {
	cfg := zap.NewProductionConfig()

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		parsed = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	built, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	global = built
	mu.Unlock()
	return nil
}

// Logger returns the current global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered log entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger tagged with the owning module name.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
