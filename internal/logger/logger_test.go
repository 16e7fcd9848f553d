package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", &buf).With("component", "test")

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log.InfoContext(ctx, "order created", "order_id", 7)

	entry := decode(t, &buf)
	assert.Equal(t, "order created", entry["msg"])
	assert.Equal(t, "test", entry["component"])
	assert.EqualValues(t, 7, entry["order_id"])
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", entry["trace_id"])
	assert.Equal(t, "0102030405060708", entry["span_id"])
}

func TestNew_NoSpanNoTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	New("info", &buf).Info("hello")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", &buf)
	log.Info("dropped")
	assert.Zero(t, buf.Len())
	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
