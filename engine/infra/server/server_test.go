package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/keybot/engine/infra/monitoring"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return w
}

func TestServer_Routes(t *testing.T) {
	ctx := context.Background()

	t.Run("Should answer the uptime probe", func(t *testing.T) {
		srv := New(ctx, Options{Version: "v1"})
		w := get(t, srv.Handler(), "/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Bot is alive", w.Body.String())
	})

	t.Run("Should report healthy components", func(t *testing.T) {
		srv := New(ctx, Options{Version: "v1", Checks: map[string]ReadinessCheck{
			"discord": func(context.Context) error { return nil },
		}})
		w := get(t, srv.Handler(), "/health")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data struct {
				Status     string                    `json:"status"`
				Version    string                    `json:"version"`
				Components map[string]map[string]any `json:"components"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Data.Status)
		assert.Equal(t, "v1", body.Data.Version)
		assert.Equal(t, true, body.Data.Components["discord"]["ready"])
	})

	t.Run("Should return 503 when a component is not ready", func(t *testing.T) {
		srv := New(ctx, Options{Checks: map[string]ReadinessCheck{
			"discord":  func(context.Context) error { return nil },
			"registry": func(context.Context) error { return errors.New("unreachable") },
		}})
		w := get(t, srv.Handler(), "/health")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"not_ready"`)
		assert.Contains(t, w.Body.String(), "unreachable")
	})

	t.Run("Should expose metrics when monitoring is configured", func(t *testing.T) {
		mon, err := monitoring.NewMonitoringService(ctx, monitoring.DefaultConfig())
		require.NoError(t, err)
		defer mon.Shutdown(ctx)
		srv := New(ctx, Options{Monitoring: mon})

		get(t, srv.Handler(), "/")
		w := get(t, srv.Handler(), "/metrics")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "keybot_http_requests_total")
	})

	t.Run("Should not expose metrics without monitoring", func(t *testing.T) {
		srv := New(ctx, Options{})
		assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/metrics").Code)
	})
}

func TestServer_Serve(t *testing.T) {
	t.Run("Should serve until the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		srv := New(ctx, Options{})

		done := make(chan error, 1)
		go func() { done <- srv.Serve(ctx, ln) }()

		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + ln.Addr().String() + "/")
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return string(body) == "Bot is alive"
		}, 2*time.Second, 20*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("server did not stop")
		}
	})

	t.Run("Should format the listen address", func(t *testing.T) {
		srv := New(context.Background(), Options{Host: "0.0.0.0", Port: 3000})
		assert.Equal(t, "0.0.0.0:3000", srv.Address())
	})
}
