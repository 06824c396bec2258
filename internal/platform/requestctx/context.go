// Package requestctx carries per-request values between middleware and handlers.
package requestctx

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// TerminalHeader identifies the register a request originates from.
const TerminalHeader = "X-Terminal-ID"

// key is unexported and typed per value, so lookups cannot collide with other packages.
type key[T any] struct{ name string }

var (
	loggerKey   = key[*zap.Logger]{"logger"}
	traceKey    = key[TraceInfo]{"trace"}
	terminalKey = key[string]{"terminal"}
)

func (k key[T]) with(ctx context.Context, v T) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, k, v)
}

func (k key[T]) from(ctx context.Context) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(k).(T)
	return v, ok
}

var nop = zap.NewNop()

// NoopLogger is the logger returned when none was attached.
func NoopLogger() *zap.Logger { return nop }

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return loggerKey.with(ctx, logger)
}

// Logger returns the request logger, or NoopLogger.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := loggerKey.from(ctx); ok && logger != nil {
		return logger
	}
	return nop
}

// TraceInfo identifies the span serving a request.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return traceKey.with(ctx, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	return traceKey.from(ctx)
}

// TraceID is Trace(ctx).TraceID, empty without a trace.
func TraceID(ctx context.Context) string {
	info, _ := traceKey.from(ctx)
	return info.TraceID
}

// WithTerminal records the register id, trimmed.
func WithTerminal(ctx context.Context, terminalID string) context.Context {
	return terminalKey.with(ctx, strings.TrimSpace(terminalID))
}

// Terminal returns the register id, empty when the request named none.
func Terminal(ctx context.Context) string {
	id, _ := terminalKey.from(ctx)
	return id
}
