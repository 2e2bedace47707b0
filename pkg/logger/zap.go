package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zapLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// zapLogger implements Logger on top of a zap core with JSON encoding.
type zapLogger struct {
	l *zap.Logger
}

func newZapLogger(out io.Writer) *zapLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(out), zapLevel)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &zapLogger{l: l}
}

func (z *zapLogger) Named(name string) Logger {
	return &zapLogger{l: z.l.Named(name)}
}

func (z *zapLogger) Info(_ context.Context, msg string, fields ...Field) {
	z.l.Info(msg, zapFields(fields)...)
}

func (z *zapLogger) Error(_ context.Context, msg string, fields ...Field) {
	z.l.Error(msg, zapFields(fields)...)
}

func (z *zapLogger) Debug(_ context.Context, msg string, fields ...Field) {
	z.l.Debug(msg, zapFields(fields)...)
}

func (z *zapLogger) Warn(_ context.Context, msg string, fields ...Field) {
	z.l.Warn(msg, zapFields(fields)...)
}

func (z *zapLogger) Fatal(_ context.Context, msg string, fields ...Field) {
	z.l.Error(msg, zapFields(fields)...)
	_ = z.l.Sync()
	os.Exit(1)
}

func (z *zapLogger) sync() error {
	return z.l.Sync()
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

func setZapLevel(level slog.Level) {
	switch {
	case level <= slog.LevelDebug:
		zapLevel.SetLevel(zapcore.DebugLevel)
	case level <= slog.LevelInfo:
		zapLevel.SetLevel(zapcore.InfoLevel)
	case level <= slog.LevelWarn:
		zapLevel.SetLevel(zapcore.WarnLevel)
	default:
		zapLevel.SetLevel(zapcore.ErrorLevel)
	}
}
