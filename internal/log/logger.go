package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	jobKey     contextKey = "job"
	stepKey    contextKey = "step"
	userIDKey  contextKey = "user_id"
)

// Config holds logger configuration
type Config struct {
	Level  slog.Level
	Writer io.Writer
}

// DefaultConfig returns sensible defaults for logging
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Writer: os.Stdout,
	}
}

// New creates a text logger whose lines carry the batch context values.
func New(config Config) *slog.Logger {
	w := config.Writer
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: config.Level})
	return slog.New(NewContextHandler(handler))
}

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextHandler adds trace id, job, step and user id from the context to
// every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: next}
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		r.AddAttrs(slog.String(FieldTraceID, v))
	}
	if v, ok := ctx.Value(jobKey).(string); ok {
		r.AddAttrs(slog.String(FieldJob, v))
	}
	if v, ok := ctx.Value(stepKey).(string); ok {
		r.AddAttrs(slog.String(FieldStep, v))
	}
	if v, ok := ctx.Value(userIDKey).(int64); ok {
		r.AddAttrs(slog.Int64(FieldUserID, v))
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, jobKey, job)
}

func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, stepKey, step)
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// TraceIDFrom returns the trace id stored in ctx, if any.
func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
