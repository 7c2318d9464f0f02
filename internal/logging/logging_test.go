package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "JSON", slog.LevelInfo)
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("kept", "device_id", "D")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "D", entry["device_id"])

	_, err = New(&buf, "yaml", slog.LevelInfo)
	assert.Error(t, err)
}

func TestScopedPrefersContextLogger(t *testing.T) {
	var fromCtx, fallback bytes.Buffer
	ctx := ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&fromCtx, nil)))

	Scoped(ctx, slog.New(slog.NewTextHandler(&fallback, nil)), "service", "HistoryService", "MoveDevice", "device_id", "D").Info("moved")

	assert.Empty(t, fallback.String())
	assert.Contains(t, fromCtx.String(), "service=HistoryService")
	assert.Contains(t, fromCtx.String(), "operation=MoveDevice")
	assert.Contains(t, fromCtx.String(), "device_id=D")
}

func TestFromContextWithoutLogger(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.NotNil(t, OrDefault(nil))
}
