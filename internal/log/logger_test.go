package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandlerAddsBatchContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Writer: &buf})

	ctx := WithTraceID(context.Background(), "abc-123")
	ctx = WithJob(ctx, "monthly-report")
	ctx = WithStep(ctx, "report-step")
	ctx = WithUserID(ctx, 42)
	logger.InfoContext(ctx, "chunk committed")

	line := buf.String()
	assert.Contains(t, line, "trace_id=abc-123")
	assert.Contains(t, line, "job=monthly-report")
	assert.Contains(t, line, "step=report-step")
	assert.Contains(t, line, "user_id=42")
	assert.Equal(t, "abc-123", TraceIDFrom(ctx))
}

func TestContextHandlerKeepsAttrsAcrossWith(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf}).With(FieldComponent, ComponentBatch)

	logger.InfoContext(WithJob(context.Background(), "dead-letter-recovery"), "started")
	assert.Contains(t, buf.String(), "component=batch")
	assert.Contains(t, buf.String(), "job=dead-letter-recovery")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithComponent(ComponentDeadLetter).
		WithOperation(OpSkip).
		WithUserID(7).
		WithError(errors.New("duplicate"))

	assert.Equal(t, ComponentDeadLetter, fields[FieldComponent])
	assert.Equal(t, OpSkip, fields[FieldOperation])
	assert.Equal(t, int64(7), fields[FieldUserID])
	assert.Equal(t, "duplicate", fields[FieldError])
	assert.Len(t, fields.ToSlice(), 8)

	assert.NotContains(t, NewFields().WithError(nil), FieldError)
}

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})

	var seen string
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFrom(r.Context())
		w.WriteHeader(http.StatusUnauthorized)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/batch/report", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rr.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status_code=401")
	assert.Contains(t, buf.String(), "trace_id=req-1")
}
