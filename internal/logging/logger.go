package logging

import (
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// Configure installs a text handler on stdout as the process-wide default and
// sets its level from name (DEBUG, INFO, WARN, ERROR). Unknown names mean INFO.
func Configure(name string) {
	SetLevel(name)
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the level of the handler installed by Configure.
func SetLevel(name string) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "WARN", "WARNING":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// Logger provides structured logging for one component. Records go to
// whatever slog default is installed at the time of the call, so loggers may
// be created before Configure runs.
type Logger struct {
	prefix string
	attrs  []interface{}
}

// NewLogger creates a new logger tagged with a component prefix
func NewLogger(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

// With returns a logger that adds keysAndValues to every record
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	attrs := make([]interface{}, 0, len(l.attrs)+len(keysAndValues))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, keysAndValues...)
	return &Logger{prefix: l.prefix, attrs: attrs}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.slog().Info(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.slog().Warn(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.slog().Error(msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.slog().Debug(msg, keysAndValues...)
}

func (l *Logger) slog() *slog.Logger {
	lg := slog.Default().With("component", l.prefix)
	if len(l.attrs) > 0 {
		lg = lg.With(l.attrs...)
	}
	return lg
}
