package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viksharma04/ludo-stacked-backend/internal/auth"
	"github.com/viksharma04/ludo-stacked-backend/internal/config"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{
		RateLimitAPIGlobal: "10-M",
		RateLimitAPIPublic: "5-M",
		RateLimitAPIRooms:  "5-M",
		RateLimitWsIP:      "5-M",
	}

	rl, err := NewRateLimiter(cfg, rc)
	require.NoError(t, err)
	return rl, mr
}

func TestNewRateLimiterMemoryFallback(t *testing.T) {
	cfg := &config.Config{
		RateLimitAPIGlobal: "10-M",
		RateLimitAPIPublic: "5-M",
		RateLimitAPIRooms:  "5-M",
		RateLimitWsIP:      "5-M",
	}
	rl, err := NewRateLimiter(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, rl)
}

func TestNewRateLimiterRejectsInvalidRate(t *testing.T) {
	cfg := &config.Config{RateLimitAPIGlobal: "not-a-rate", RateLimitAPIPublic: "5-M", RateLimitAPIRooms: "5-M", RateLimitWsIP: "5-M"}
	_, err := NewRateLimiter(cfg, nil)
	assert.Error(t, err)
}

func TestGlobalMiddlewarePublicCap(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.GlobalMiddleware())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("GET", "/test", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "5", resp.Header().Get("X-RateLimit-Limit"))
	}

	req, _ := http.NewRequest("GET", "/test", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestGlobalMiddlewareUserCap(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("claims", &auth.Claims{})
		c.Next()
	})
	r.Use(rl.GlobalMiddleware())
	r.GET("/test-user", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 10; i++ {
		req, _ := http.NewRequest("GET", "/test-user", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "10", resp.Header().Get("X-RateLimit-Limit"))
	}

	req, _ := http.NewRequest("GET", "/test-user", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestMiddlewareForEndpointRooms(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/rooms", rl.MiddlewareForEndpoint("rooms"), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("POST", "/rooms", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	req, _ := http.NewRequest("POST", "/rooms", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestCheckWebSocketIPCap(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	ctx := t.Context()
	for i := 0; i < 5; i++ {
		assert.True(t, rl.CheckWebSocketIP(ctx, "1.2.3.4"))
	}
	assert.False(t, rl.CheckWebSocketIP(ctx, "1.2.3.4"))
}

func TestRateLimiterFailsOpenOnStoreFailure(t *testing.T) {
	rl, mr := newTestLimiter(t)
	mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.GlobalMiddleware())
	r.GET("/fail-open", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest("GET", "/fail-open", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}
