package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewRequiresOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Outputs = nil
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestFileOutputWritesJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Outputs = []string{"file"}
	cfg.OutputFile = filepath.Join(dir, "grid.log")
	cfg.ErrorFile = filepath.Join(dir, "grid.err")

	l, err := New(cfg)
	require.NoError(t, err)
	l.LogGrid("rebuild", map[string]interface{}{"symbol": "ETHUSDC", "levels": 21})
	l.LogError(errors.New("boom"), map[string]interface{}{"symbol": "ETHUSDC"})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"rebuild"`)
	assert.Contains(t, string(data), `"levels":21`)

	errData, err := os.ReadFile(cfg.ErrorFile)
	require.NoError(t, err)
	assert.Contains(t, string(errData), "boom")
	assert.NotContains(t, string(errData), "rebuild")
}

func TestStructuredHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).Named("grid").WithFields(map[string]interface{}{"symbol": "BTCUSDT"})

	l.LogOrder("placed", "abc-1", map[string]interface{}{"level": 3})
	l.LogRisk("assumed_fill", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "order_event", entries[0].Message)
	assert.Equal(t, "abc-1", entries[0].ContextMap()["order_id"])
	assert.Equal(t, "BTCUSDT", entries[0].ContextMap()["symbol"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "assumed_fill", entries[1].ContextMap()["event"])
}
