package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerniPi/BGBB-IKT/internal/auth"
	"github.com/BerniPi/BGBB-IKT/internal/config"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

const testSecret = "test-secret-value"

func setTestEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "inventory.db")
	t.Setenv("INVENTORY_JWT_SECRET", testSecret)
	t.Setenv("INVENTORY_SQLITE_PATH", dbPath)
	t.Setenv("INVENTORY_LOG_LEVEL", "error")
	return dbPath
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	setTestEnv(t)

	out, err := runCmd(t, "token", "--user", "alice")
	require.NoError(t, err)

	tokens, err := auth.NewTokens(testSecret, time.Hour, time.Now)
	require.NoError(t, err)
	claims, err := tokens.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	_, err = runCmd(t, "token")
	assert.Error(t, err, "--user is required")
}

func TestMigrateCommands(t *testing.T) {
	setTestEnv(t)

	out, err := runCmd(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 00001")

	out, err = runCmd(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")

	out, err = runCmd(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "current version:")
	assert.NotContains(t, out, "pending")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.Config{LogLevel: "warn", LogFormat: "text"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")

	_, err = newLogger(config.Config{LogLevel: "info", LogFormat: "xml"}, &buf)
	assert.Error(t, err)
}

func TestApp_MoveAndListHistory(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.MetricsEnabled = false

	ctx := context.Background()
	logger, err := newLogger(cfg, io.Discard)
	require.NoError(t, err)
	a, err := newApp(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NoError(t, a.storage.InsertRoom(ctx, persistence.Room{ID: "r-101", RoomNumber: "101", RoomName: "Lab"}))
	require.NoError(t, a.storage.InsertRoom(ctx, persistence.Room{ID: "r-202", RoomNumber: "202", RoomName: "Office"}))

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL, time.Now)
	require.NoError(t, err)
	token, _, err := tokens.Issue("alice")
	require.NoError(t, err)

	server := httptest.NewServer(a.handler)
	t.Cleanup(server.Close)

	call := func(method, path string, body any) *http.Response {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, server.URL+path, &buf)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := call(http.MethodPost, "/api/devices", map[string]any{"hostname": "pc-1", "roomId": "r-101", "placedOn": "2025-01-01"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var device struct {
		ID string `json:"deviceId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&device))

	resp = call(http.MethodPost, "/api/devices/"+device.ID+"/move-to-room", map[string]any{"newRoomId": "r-202", "moveDate": "2025-03-01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(http.MethodGet, "/api/devices/"+device.ID+"/rooms-history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []struct {
		RoomID   string  `json:"roomId"`
		FromDate string  `json:"fromDate"`
		ToDate   *string `json:"toDate"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 2)
	assert.Equal(t, "r-101", history[0].RoomID)
	require.NotNil(t, history[0].ToDate)
	assert.Equal(t, "2025-03-01", *history[0].ToDate)
	assert.Equal(t, "r-202", history[1].RoomID)
	assert.Nil(t, history[1].ToDate)

	resp = call(http.MethodPost, "/api/devices/"+device.ID+"/rooms-history", map[string]any{"roomId": "r-202", "fromDate": "2024-12-01", "toDate": "2025-01-15"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = call(http.MethodGet, "/api/devices?roomId=r-202", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []struct {
		ID       string  `json:"deviceId"`
		RoomName *string `json:"roomName"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, device.ID, listed[0].ID)
	require.NotNil(t, listed[0].RoomName)
	assert.Equal(t, "Office", *listed[0].RoomName)

	resp = call(http.MethodDelete, "/api/devices/"+device.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = call(http.MethodGet, "/api/devices/"+device.ID+"/rooms-history", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	health, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
