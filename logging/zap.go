package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapAdapter wraps *zap.Logger to implement the Logger interface.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
}

// NewZapAdapter creates a Logger from *zap.Logger.
func NewZapAdapter(l *zap.Logger) *ZapAdapter {
	l = l.WithOptions(zap.AddCallerSkip(1))
	return &ZapAdapter{sugar: l.Sugar(), base: l}
}

// Debug logs a debug message.
func (z *ZapAdapter) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// Info logs an informational message.
func (z *ZapAdapter) Info(msg string, args ...any) { z.sugar.Infow(msg, args...) }

// Warn logs a warning message.
func (z *ZapAdapter) Warn(msg string, args ...any) { z.sugar.Warnw(msg, args...) }

// Error logs an error message.
func (z *ZapAdapter) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// With returns an adapter that adds the key/value pairs to every entry.
func (z *ZapAdapter) With(args ...any) *ZapAdapter {
	sugar := z.sugar.With(args...)
	return &ZapAdapter{sugar: sugar, base: sugar.Desugar()}
}

// LogWorkerCall records one worker attempt. Failed attempts are warnings.
func (z *ZapAdapter) LogWorkerCall(dropID, missionID string, attempt, tokens int, dur time.Duration, err error) {
	fields := []zap.Field{
		zap.String("drop", dropID),
		zap.String("mission", missionID),
		zap.Int("attempt", attempt),
		zap.Int("tokens", tokens),
		zap.Duration("duration", dur),
		zap.Bool("success", err == nil),
	}
	if err != nil {
		z.base.Warn("worker call failed", append(fields, zap.Error(err))...)
		return
	}
	z.base.Debug("worker call completed", fields...)
}

// LogDrop records aggregate drop metrics. Drops with failed tasks are warnings.
func (z *ZapAdapter) LogDrop(session, dropID, outcome string, tasks, failed, tokens int, dur time.Duration) {
	fields := []zap.Field{
		zap.String("session", session),
		zap.String("drop", dropID),
		zap.String("outcome", outcome),
		zap.Int("tasks", tasks),
		zap.Int("failed", failed),
		zap.Int("tokens", tokens),
		zap.Duration("duration", dur),
	}
	if failed > 0 {
		z.base.Warn("drop completed", fields...)
		return
	}
	z.base.Info("drop completed", fields...)
}

// Sync flushes buffered entries.
func (z *ZapAdapter) Sync() error { return z.base.Sync() }

// RotationConfig configures the rotated log file. Console additionally writes
// human readable entries to stderr.
type RotationConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Console    bool
}

// NewRotatingZapLogger builds a zap logger writing JSON entries to a
// lumberjack-rotated file, optionally tee'd to the console.
func NewRotatingZapLogger(cfg RotationConfig, level LogLevel) *ZapAdapter {
	rotator := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	zl := zapLevel(level)
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), zl),
	}
	if cfg.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			zl,
		))
	}

	return NewZapAdapter(zap.New(zapcore.NewTee(cores...), zap.AddCaller()))
}

func zapLevel(l LogLevel) zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zap.DebugLevel
	case LogLevelWarn:
		return zap.WarnLevel
	case LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
