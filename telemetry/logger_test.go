package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/clue/log"
)

func TestTemporalLoggerWritesThroughClue(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.Context(context.Background(),
		log.WithOutput(&buf),
		log.WithFormat(log.FormatJSON),
		log.WithDebug())

	logger := NewTemporalLogger(ctx)
	logger.Info("worker started", "queue", "chat-queue", "attempt", 1)
	logger.Debug("poll tick")
	logger.Warn("slow task", "elapsed", "3s")
	logger.Error("task failed", "error", "boom")

	out := buf.String()
	assert.Contains(t, out, `"msg":"worker started"`)
	assert.Contains(t, out, `"queue":"chat-queue"`)
	assert.Contains(t, out, `"msg":"poll tick"`)
	assert.Contains(t, out, `"severity":"warning"`)
	assert.Contains(t, out, `"msg":"task failed"`)
}

func TestFieldersSkipsNonStringKeys(t *testing.T) {
	fs := fielders("m", []interface{}{"ok", 1, 42, "dropped", "odd"})
	require.Len(t, fs, 3)
}

func TestStreamMetrics(t *testing.T) {
	m, err := NewStreamMetrics()
	require.NoError(t, err)
	// No-op meter provider by default; recording must not panic.
	m.RecordSession(context.Background(), 12, 1500*time.Millisecond, "completed")

	var nilMetrics *StreamMetrics
	nilMetrics.RecordSession(context.Background(), 1, time.Second, "failed")
}
