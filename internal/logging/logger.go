// Package logging provides a minimal, printf-style logging contract and a
// component-scoped logger used across the server.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

var (
	rootOnce sync.Once
	rootSink *sink
)

// sink is the shared output backing all component loggers.
type sink struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

func root() *sink {
	rootOnce.Do(func() {
		rootSink = &sink{out: os.Stderr, level: LevelInfo}
		if dir := os.Getenv("AIDE_LOG_DIR"); dir != "" {
			path := filepath.Join(dir, "aide-server.log")
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				log.Printf("failed to open log file %s: %v", path, err)
			} else {
				rootSink.out = io.MultiWriter(os.Stderr, file)
			}
		}
		if os.Getenv("AIDE_DEBUG") != "" {
			rootSink.level = LevelDebug
		}
	})
	return rootSink
}

// SetLevel adjusts the minimum level emitted by component loggers.
func SetLevel(level Level) {
	s := root()
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *sink) write(level Level, component, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(s.out, "[%s] [%s] [%s] %s\n", ts, level, component, msg)
}

type componentLogger struct {
	sink      *sink
	component string
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{sink: root(), component: component}
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.sink.write(LevelDebug, l.component, format, args...)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.sink.write(LevelInfo, l.component, format, args...)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.sink.write(LevelWarn, l.component, format, args...)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.sink.write(LevelError, l.component, format, args...)
}
