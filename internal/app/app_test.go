package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"taskboard/internal/config"
	"taskboard/internal/relay"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger(config.LogConfig{Level: "bogus", Format: "text"}, &buf).Info("fallback")
	require.Contains(t, buf.String(), "msg=fallback")
}

func TestNewBrokerMemory(t *testing.T) {
	b, err := NewBroker(context.Background(), config.RelayConfig{Backend: "memory", Buffer: 4}, nil)
	require.NoError(t, err)
	_, ok := b.(*relay.Hub)
	require.True(t, ok)
	require.NoError(t, b.Close())

	_, err = NewBroker(context.Background(), config.RelayConfig{Backend: "kafka"}, nil)
	require.Error(t, err)
}

func TestOpenServesHealth(t *testing.T) {
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "board.db")
	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	h, err := a.Handler()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCloseReportsDroppedMessages(t *testing.T) {
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "board.db")
	cfg.Relay.Buffer = 1
	var buf bytes.Buffer
	a, err := Open(context.Background(), cfg, NewLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf))
	require.NoError(t, err)

	ctx := context.Background()
	sub, err := a.Broker.Subscribe(ctx, "alice")
	require.NoError(t, err)
	defer sub.Close()
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Broker.Publish(ctx, "alice", relay.Message{Type: relay.TypeNewNotification}))
	}
	require.EqualValues(t, 2, a.Broker.Dropped())

	require.NoError(t, a.Close())
	require.Contains(t, buf.String(), "dropped=2")
}
