package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"document-processing-platform/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitedRouter(cfg *config.Config, rdb *redis.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(rdb, cfg))
	r.GET("/documents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func limitedGet(t *testing.T, r *gin.Engine, path, clientAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	req.RemoteAddr = clientAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitBlocksPastWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{RateLimitReqs: 3, RateLimitWindow: 60}
	r := rateLimitedRouter(cfg, rdb)

	for i := 0; i < 3; i++ {
		w := limitedGet(t, r, "/documents", "10.1.2.3:5000")
		require.Equal(t, http.StatusOK, w.Code)
	}
	count, err := mr.Get("ratelimit:10.1.2.3:/documents")
	require.NoError(t, err)
	assert.Equal(t, "3", count)

	w := limitedGet(t, r, "/documents", "10.1.2.3:5000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitCountsPerClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{RateLimitReqs: 1, RateLimitWindow: 60}
	r := rateLimitedRouter(cfg, rdb)

	require.Equal(t, http.StatusOK, limitedGet(t, r, "/documents", "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusTooManyRequests, limitedGet(t, r, "/documents", "10.0.0.1:5000").Code)

	// A different client owns a different counter.
	assert.Equal(t, http.StatusOK, limitedGet(t, r, "/documents", "10.0.0.2:5000").Code)
}

func TestRateLimitExemptsHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{RateLimitReqs: 1, RateLimitWindow: 60}
	r := rateLimitedRouter(cfg, rdb)

	for i := 0; i < 5; i++ {
		w := limitedGet(t, r, "/health", "10.1.2.3:5000")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{RateLimitReqs: 1, RateLimitWindow: 60}
	r := rateLimitedRouter(cfg, rdb)

	mr.Close()

	for i := 0; i < 3; i++ {
		w := limitedGet(t, r, "/documents", "10.1.2.3:5000")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitWindowExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{RateLimitReqs: 1, RateLimitWindow: 60}
	r := rateLimitedRouter(cfg, rdb)

	require.Equal(t, http.StatusOK, limitedGet(t, r, "/documents", "10.1.2.3:5000").Code)
	assert.Equal(t, http.StatusTooManyRequests, limitedGet(t, r, "/documents", "10.1.2.3:5000").Code)

	mr.FastForward(61 * time.Second)

	assert.Equal(t, http.StatusOK, limitedGet(t, r, "/documents", "10.1.2.3:5000").Code)
}
