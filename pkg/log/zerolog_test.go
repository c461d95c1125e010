package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mlerrors "github.com/YuminosukeSato/mlstack/pkg/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestZerologLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo).With(LayerKey, "layer-1")

	logger.Debug("hidden")
	logger.Info("fitting layer", OperationKey, OperationFit, SamplesKey, 100)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "fitting layer", lines[0]["message"])
	assert.Equal(t, "layer-1", lines[0][LayerKey])
	assert.Equal(t, "fit", lines[0][OperationKey])
	assert.Equal(t, float64(100), lines[0][SamplesKey])
	assert.Equal(t, "info", lines[0]["level"])
}

func TestZerologLogger_ErrorFirstField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	logger.Error("job failed", mlerrors.NewValueError("Fit", "bad input"), CaseKey, "sc")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0]["error"], "bad input")
	assert.Equal(t, "sc", lines[0][CaseKey])
}

func TestZerologLogger_OddFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)
	logger.Info("odd", "a", 1, "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, float64(1), lines[0]["a"])
	_, ok := lines[0]["dangling"]
	assert.False(t, ok)
}

func TestZerologLogger_Enabled(t *testing.T) {
	logger := NewZerologLogger(&bytes.Buffer{}, LevelWarn)
	ctx := context.Background()

	assert.False(t, logger.Enabled(ctx, LevelDebug))
	assert.False(t, logger.Enabled(ctx, LevelInfo))
	assert.True(t, logger.Enabled(ctx, LevelWarn))
	assert.True(t, logger.Enabled(ctx, LevelError))
}

func TestSetupRoutesWarnings(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() {
		SetLogger(prev)
		mlerrors.SetZerologWarnFunc(nil)
	})

	var buf bytes.Buffer
	require.NoError(t, Setup("debug", &buf))

	mlerrors.Warn(mlerrors.NewParallelProcessingWarning("sc", "/tmp/sc__t", 0, 0))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	warning, ok := lines[0]["warning"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ParallelProcessingWarning", warning["type"])

	assert.Error(t, Setup("verbose", &buf))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.True(t, mlerrors.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTestLogger_Concurrent(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)
	scoped := logger.With(LayerKey, "layer-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scoped.Info("job done", CaseKey, fmt.Sprintf("case-%d", i))
		}(i)
	}
	wg.Wait()

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
	assert.True(t, logger.ContainsField(LayerKey, "layer-1"))
	assert.Equal(t, 20, logger.Count(LevelInfo))
}

func TestZerologProvider(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, LevelError)
	p.GetLoggerWithName("cache").Info("skipped")
	p.SetLevel(LevelInfo)
	p.GetLoggerWithName("cache").Info("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "cache", lines[0][ComponentKey])
}
