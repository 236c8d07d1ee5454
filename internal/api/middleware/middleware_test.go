package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(r, http.MethodGet, "/", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())

	w = serve(r, http.MethodGet, "/", map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", w.Body.String())
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(logger.Discard()))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(config.CORSConfig{
		AllowedOrigins: []string{"http://painel.local"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.GET("/", ok)

	w := serve(r, http.MethodGet, "/", map[string]string{"Origin": "http://painel.local"})
	assert.Equal(t, "http://painel.local", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/", map[string]string{"Origin": "http://outro.local"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodOptions, "/", map[string]string{"Origin": "http://painel.local"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(Security())
	r.GET("/", ok)

	w := serve(r, http.MethodGet, "/", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestAPIKeyAuth(t *testing.T) {
	r := gin.New()
	r.Use(APIKeyAuth("segredo"))
	r.GET("/", ok)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/", map[string]string{"X-API-Key": "errado"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", map[string]string{"X-API-Key": "segredo"}).Code)

	open := gin.New()
	open.Use(APIKeyAuth(""))
	open.GET("/", ok)
	assert.Equal(t, http.StatusOK, serve(open, http.MethodGet, "/", nil).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2})
	defer rl.Stop()

	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", ok)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", nil).Code)
	w := serve(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, 1, rl.GetStats()["active_clients"])
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2, CleanupInterval: time.Minute})
	defer rl.Stop()
	now := time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("10.0.0.1")
	now = now.Add(3 * time.Minute)
	rl.getLimiter("10.0.0.2")
	rl.evictIdle()

	assert.Equal(t, 1, rl.GetStats()["active_clients"])
}

func TestRateLimiterStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2, CleanupInterval: time.Millisecond})
	rl.Stop()
	rl.Stop()
	require.NotNil(t, rl)
}
