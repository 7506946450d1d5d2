// Package logging wraps the standard library logger with the leveled,
// prefix-per-component style the teacher codebase uses throughout (it
// reaches for fmt/log directly rather than a third-party logger, so
// Lumen does the same — see DESIGN.md).
package logging

import (
	"log"
	"os"
)

type Level int

const (
	LevelQuiet Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Logger is the sink the runtime, GC and coroutine scheduler write
// diagnostics to. Finalizer errors and abandoned major collections are
// reported here rather than propagated to the mutator (spec.md §7).
type Logger struct {
	level Level
	out   *log.Logger
}

// New builds a Logger writing to stderr at the given level.
func New(level Level) *Logger {
	return &Logger{level: level, out: log.New(os.Stderr, "lumen: ", 0)}
}

// Discard builds a Logger that drops everything, used by tests that
// don't want diagnostic noise.
func Discard() *Logger {
	return &Logger{level: LevelQuiet, out: log.New(os.Stderr, "", 0)}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LevelDebug {
		l.out.Printf(format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LevelInfo {
		l.out.Printf(format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LevelWarn {
		l.out.Printf(format, args...)
	}
}
