package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/platewatch/internal/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestSlogLogger_ModuleAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	log.Module("pipeline").Module("intake").Info("detection processed",
		logger.String("plate", "AB123C"),
		logger.Int("confidence", 91),
		logger.Float64("similarity", 87.12345),
		logger.Bool("grouped", true),
		logger.Duration("elapsed", 1500*time.Millisecond),
		logger.Error(errors.New("boom")))

	recs := decodeLines(t, buf)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "pipeline.intake", rec["module"])
	assert.Equal(t, "AB123C", rec["plate"])
	assert.InDelta(t, 91, rec["confidence"], 0)
	assert.InDelta(t, 87.123, rec["similarity"], 0.0001)
	assert.Equal(t, true, rec["grouped"])
	assert.Equal(t, "1.5s", rec["elapsed"])
	assert.Equal(t, "boom", rec["error"])
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelWarn, time.UTC)

	log.Debug("hidden")
	log.Info("hidden")
	log.Trace("hidden")
	log.Warn("shown")
	log.Log(logger.LogLevelError, "also shown")

	recs := decodeLines(t, buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "shown", recs[0]["msg"])
	assert.Equal(t, "also shown", recs[1]["msg"])
}

func TestSlogLogger_TraceLevelName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC)
	log.Trace("sql query")

	recs := decodeLines(t, buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "TRACE", recs[0]["level"])
}

func TestSlogLogger_WithDoesNotLeak(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)
	child := base.With(logger.String("worker", "notify"))

	child.Info("one")
	base.Info("two")

	recs := decodeLines(t, buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "notify", recs[0]["worker"])
	assert.NotContains(t, recs[1], "worker")
}

func TestSlogLogger_WithContextTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "req-42")
	log.WithContext(ctx).Info("handled")
	log.WithContext(context.Background()).Info("plain")

	recs := decodeLines(t, buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "req-42", recs[0]["trace_id"])
	assert.NotContains(t, recs[1], "trace_id")
}

func TestCentralLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "platewatch.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"datastore": "error"},
	})
	require.NoError(t, err)

	cl.Module("pipeline").Debug("visible")
	cl.Module("datastore").Info("filtered by module level")
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := readFile(path)
	require.NoError(t, err)
	assert.Contains(t, data, "visible")
	assert.NotContains(t, data, "filtered by module level")
}

func TestCentralLogger_InvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGlobalFallback(t *testing.T) {
	log := logger.Global().Module("test")
	require.NotNil(t, log)
	assert.NotPanics(t, func() { log.Debug("not shown at info level") })
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}
