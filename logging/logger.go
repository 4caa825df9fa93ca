package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface used by every component.
// Args are alternating key/value pairs as with slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// WorkerCallLogger is implemented by loggers that keep a dedicated record
// per worker attempt. The dispatcher prefers it over a plain Debug line.
type WorkerCallLogger interface {
	LogWorkerCall(dropID, missionID string, attempt, tokens int, dur time.Duration, err error)
}

// DropLogger is implemented by loggers that keep a dedicated record per
// finished drop.
type DropLogger interface {
	LogDrop(session, dropID, outcome string, tasks, failed, tokens int, dur time.Duration)
}

// Component tags l with a component name when it supports it and returns l
// unchanged otherwise. Nil becomes a NoOpLogger.
func Component(l Logger, name string) Logger {
	switch v := l.(type) {
	case nil:
		return NoOpLogger{}
	case *ResearchLogger:
		return v.WithComponent(name)
	case *ZapAdapter:
		return v.With("component", name)
	default:
		return l
	}
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }
func (s *SlogAdapter) Info(msg string, args ...any)  { s.Logger.Info(msg, args...) }
func (s *SlogAdapter) Warn(msg string, args ...any)  { s.Logger.Warn(msg, args...) }
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// ResearchLogger is a slog backed Logger that carries a component name and
// fixed attributes, and records worker calls and drops in a uniform shape.
// With* methods return copies; the receiver is never modified.
type ResearchLogger struct {
	handler   slog.Handler
	level     LogLevel
	component string
	attrs     []slog.Attr
}

// LoggerConfig configures construction of a ResearchLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
}

// NewLogger builds a ResearchLogger. Output defaults to stderr and the
// format to JSON.
func NewLogger(cfg LoggerConfig) *ResearchLogger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slog(), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &ResearchLogger{handler: handler, level: cfg.Level}
}

// NewSlogLogger creates a ResearchLogger writing to stderr.
func NewSlogLogger(level LogLevel, format string, addSource bool) *ResearchLogger {
	return NewLogger(LoggerConfig{Level: level, Format: format, AddSource: addSource})
}

// WithComponent sets the logical component (planner, dispatcher, synthesis, etc.).
func (l *ResearchLogger) WithComponent(c string) *ResearchLogger {
	nl := *l
	nl.component = c
	return &nl
}

// With adds key/value attributes attached to every entry of the returned logger.
func (l *ResearchLogger) With(args ...any) *ResearchLogger {
	nl := *l
	r := slog.Record{}
	r.Add(args...)
	nl.attrs = make([]slog.Attr, 0, len(l.attrs)+r.NumAttrs())
	nl.attrs = append(nl.attrs, l.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		nl.attrs = append(nl.attrs, a)
		return true
	})
	return &nl
}

func (l *ResearchLogger) log(level slog.Level, msg string, args ...any) {
	if level < l.level.slog() {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	if l.component != "" {
		r.AddAttrs(slog.String("component", l.component))
	}
	r.AddAttrs(l.attrs...)
	r.Add(args...)
	_ = l.handler.Handle(context.Background(), r)
}

func (l *ResearchLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *ResearchLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *ResearchLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *ResearchLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogWorkerCall records one worker attempt. Failed attempts are warnings.
func (l *ResearchLogger) LogWorkerCall(dropID, missionID string, attempt, tokens int, dur time.Duration, err error) {
	args := []any{"drop", dropID, "mission", missionID, "attempt", attempt, "tokens", tokens, "duration", dur, "success", err == nil}
	if err != nil {
		l.log(slog.LevelWarn, "worker call failed", append(args, "error", err.Error())...)
		return
	}
	l.log(slog.LevelDebug, "worker call completed", args...)
}

// LogDrop records aggregate drop metrics. Drops with failed tasks are warnings.
func (l *ResearchLogger) LogDrop(session, dropID, outcome string, tasks, failed, tokens int, dur time.Duration) {
	level := slog.LevelInfo
	if failed > 0 {
		level = slog.LevelWarn
	}
	l.log(level, "drop completed",
		"session", session,
		"drop", dropID,
		"outcome", outcome,
		"tasks", tasks,
		"failed", failed,
		"tokens", tokens,
		"duration", dur)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}
