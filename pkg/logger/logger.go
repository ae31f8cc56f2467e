// Package logger provides a process-wide structured logger with a plain
// function-call API, in the shape of the wrapper toolhive keeps around its
// logging backend: a singleton that can be swapped out under test, with
// Debug/Info/Warn/Error each available in a printf-style "f" and a
// key/value "w" variant, and Fatal in a plain and an "f" variant.
package logger

import (
	"os"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
)

// EnvUnstructuredLogs switches the default JSON encoder for a human-readable
// console encoder, mirroring toolhive's UNSTRUCTURED_LOGS switch.
const EnvUnstructuredLogs = "LOOLBROKERD_UNSTRUCTURED_LOGS"

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	singleton.Store(newDefault(unstructuredLogs()))
}

// envReader lets tests stub environment lookups without mutating the
// process environment.
type envReader interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func unstructuredLogs() bool {
	return unstructuredLogsWithEnv(osEnv{})
}

func unstructuredLogsWithEnv(env envReader) bool {
	v := env.Getenv(EnvUnstructuredLogs)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func newDefault(unstructured bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if unstructured {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a minimal logger; logging must never be fatal to
		// the broker's ability to start.
		l = zap.NewNop()
	}
	return l.Sugar()
}

// Initialize (re)configures the singleton from the environment. Safe to
// call multiple times; the CLI calls it once in PersistentPreRun.
func Initialize() {
	singleton.Store(newDefault(unstructuredLogs()))
}

// InitializeWithEnv is Initialize with an injectable environment reader,
// used by tests.
func InitializeWithEnv(env envReader) {
	singleton.Store(newDefault(unstructuredLogsWithEnv(env)))
}

// Get returns the current process-wide logger.
func Get() *zap.SugaredLogger { return singleton.Load() }

// SetForTest installs l as the singleton and returns a restore func.
func SetForTest(l *zap.SugaredLogger) func() {
	prev := singleton.Load()
	singleton.Store(l)
	return func() { singleton.Store(prev) }
}

func Debug(args ...any)                  { Get().Debug(args...) }
func Debugf(format string, args ...any)  { Get().Debugf(format, args...) }
func Debugw(msg string, kv ...any)       { Get().Debugw(msg, kv...) }
func Info(args ...any)                   { Get().Info(args...) }
func Infof(format string, args ...any)   { Get().Infof(format, args...) }
func Infow(msg string, kv ...any)        { Get().Infow(msg, kv...) }
func Warn(args ...any)                   { Get().Warn(args...) }
func Warnf(format string, args ...any)   { Get().Warnf(format, args...) }
func Warnw(msg string, kv ...any)        { Get().Warnw(msg, kv...) }
func Error(args ...any)                  { Get().Error(args...) }
func Errorf(format string, args ...any)  { Get().Errorf(format, args...) }
func Errorw(msg string, kv ...any)       { Get().Errorw(msg, kv...) }
func Fatal(args ...any)                  { Get().Fatal(args...) }
func Fatalf(format string, args ...any)  { Get().Fatalf(format, args...) }
