package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/logger"
	"github.com/nexconsult/goc-sync/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test", ReadTimeout: 30, WriteTimeout: 30, IdleTimeout: 60},
		Redis:  config.RedisConfig{Host: "127.0.0.1", Port: 1, DialTimeout: 100 * time.Millisecond, CacheTTL: time.Hour},
		Sync:   config.SyncConfig{LockTTL: time.Minute, RunTimeout: time.Minute},
		Forms:  config.FormsConfig{ResponsesDir: t.TempDir()},
		Security: config.SecurityConfig{
			RateLimit: config.RateLimitConfig{RequestsPerMinute: 600, BurstSize: 50},
			CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
			APIKey:    apiKey,
		},
	}
	container, err := services.NewContainer(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	s := NewServer(cfg, logger.Discard(), container)
	t.Cleanup(s.Close)
	return s
}

func get(s *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t, "")

	assert.Equal(t, http.StatusOK, get(s, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, get(s, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, get(s, http.MethodGet, "/health/ready", nil).Code)
	assert.Equal(t, http.StatusOK, get(s, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusOK, get(s, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(s, http.MethodGet, "/api/v1/calendar/stats", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(s, http.MethodGet, "/nada", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, get(s, http.MethodGet, "/api/v1/sync/stock", nil).Code)
}

func TestServerRegistrationsWithoutResponses(t *testing.T) {
	s := newTestServer(t, "")

	w := get(s, http.MethodPost, "/api/v1/sync/registrations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nothing to do")

	w = get(s, http.MethodGet, "/api/v1/runs", nil)
	assert.Contains(t, w.Body.String(), `"kind":"registrations"`)
}

func TestServerRequiresAPIKey(t *testing.T) {
	s := newTestServer(t, "segredo")

	assert.Equal(t, http.StatusUnauthorized, get(s, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusOK, get(s, http.MethodGet, "/api/v1/runs", map[string]string{"X-API-Key": "segredo"}).Code)
	assert.Equal(t, http.StatusOK, get(s, http.MethodGet, "/health", nil).Code, "health stays open")
}
