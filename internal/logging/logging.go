// Package logging provides structured logging built on log/slog, shared by
// every package in this module so that all output carries the same
// timestamp formatting, level names, and per-service attribution.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

var (
	structuredLogger *slog.Logger
	loggerMu         sync.RWMutex
)

var currentLogLevel = new(slog.LevelVar)
var initOnce sync.Once

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// defaultReplaceAttr formats timestamps to second precision and gives the
// custom Trace/Fatal levels readable names.
func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			label, exists := levelNames[level]
			if !exists {
				label = level.String()
			}
			a.Value = slog.StringValue(label)
		} else {
			a.Value = slog.StringValue(fmt.Sprintf("%v", a.Value.Any()))
		}
	}
	return a
}

// Init sets up the global JSON logger on stdout at Info level. Safe to
// call more than once; only the first call has effect.
func Init() {
	initOnce.Do(func() {
		currentLogLevel.Set(slog.LevelInfo)

		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: defaultReplaceAttr,
		})

		loggerMu.Lock()
		structuredLogger = slog.New(handler)
		loggerMu.Unlock()

		slog.SetDefault(structuredLogger)
	})
}

// SetLevel changes the logging level for every logger sharing currentLogLevel.
func SetLevel(level slog.Level) {
	currentLogLevel.Set(level)
}

// ForService returns a logger tagged with service=name, falling back to
// slog.Default() if Init has not run yet (so package-level loggers created
// at var-init time still work).
func ForService(name string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()

	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("service", name)
}

// Fatal logs at the custom Fatal level and terminates the process.
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs at the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}
