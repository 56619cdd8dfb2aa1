// Package log provides the module-wide structured logger. Every other
// package logs through here rather than fmt or the bare stdlib log package,
// matching the logging discipline of the node this project is descended
// from.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a contextual logger: New("module", "miner") returns a Logger
// that prefixes every subsequent call with that field.
type Logger struct {
	s *zap.SugaredLogger
}

var (
	mu   sync.Mutex
	base *zap.Logger
)

func init() {
	base = newBase(false)
}

func newBase(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Logging must never be fatal to node startup.
		l = zap.NewNop()
	}
	return l
}

// SetDebug reconfigures the base logger for debug verbosity. Intended to be
// called once at startup from the CLI's --debug flag.
func SetDebug(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	base = newBase(debug)
}

// New returns a Logger scoped with the given alternating key/value context.
func New(ctx ...interface{}) Logger {
	mu.Lock()
	b := base
	mu.Unlock()
	return Logger{s: b.Sugar().With(ctx...)}
}

func (l Logger) With(ctx ...interface{}) Logger {
	return Logger{s: l.s.With(ctx...)}
}

func (l Logger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l Logger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l Logger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l Logger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

// Crit logs at error level and terminates the process. Reserved for
// configuration failures discovered at startup (spec's ConfigurationError).
func (l Logger) Crit(msg string, kv ...interface{}) {
	l.s.Errorw(msg, kv...)
	os.Exit(1)
}
