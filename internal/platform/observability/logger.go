package observability

import (
	"context"
	"maps"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/erp-saas/pdv/internal/platform/requestctx"
)

// LoggerOption customises NewLogger.
type LoggerOption func(*zap.Config)

// WithLevel overrides LOG_LEVEL. Unknown levels are ignored.
func WithLevel(level string) LoggerOption {
	return func(cfg *zap.Config) {
		if parsed, ok := parseLevel(level); ok {
			cfg.Level.SetLevel(parsed)
		}
	}
}

// WithOutputPaths redirects log output.
func WithOutputPaths(paths ...string) LoggerOption {
	return func(cfg *zap.Config) {
		if len(paths) > 0 {
			cfg.OutputPaths = paths
		}
	}
}

// NewLogger builds the JSON logger: message, timestamp and upper-case severity keys, the
// level from LOG_LEVEL (info when unset).
func NewLogger(opts ...LoggerOption) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if level, ok := parseLevel(os.Getenv("LOG_LEVEL")); ok {
		cfg.Level.SetLevel(level)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg.Build()
}

func parseLevel(value string) (zapcore.Level, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return zapcore.InfoLevel, false
	}
	level, err := zapcore.ParseLevel(value)
	return level, err == nil
}

// WithLogger stores logger on ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the logger on ctx or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// EventLogger adapts zap to the func(ctx, event, fields) loggers taken by services. A
// request logger on ctx is preferred over fallback so request and trace ids stay attached.
// Events ending in _failed or _rejected log at warn.
func EventLogger(fallback *zap.Logger, name string) func(ctx context.Context, event string, fields map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		switch {
		case logger == requestctx.NoopLogger():
			logger = fallback
		case name != "":
			logger = logger.Named(name)
		}

		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for _, k := range slices.Sorted(maps.Keys(fields)) {
			zFields = append(zFields, zap.Any(k, fields[k]))
		}

		level := zapcore.InfoLevel
		if strings.HasSuffix(event, "_failed") || strings.HasSuffix(event, "_rejected") {
			level = zapcore.WarnLevel
		}
		logger.Log(level, event, zFields...)
	}
}

// PrintfAdapter exposes a zap logger through Printf.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
}

// NewPrintfAdapter wraps logger; store failures reported through it log at warn.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Warnf(format, args...)
}

// WithRequestFields returns logger with the request-scoped fields attached.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(fields...)
}
