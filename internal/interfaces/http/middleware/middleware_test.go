package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/pkg/utils"
)

const (
	testSecret = "test-secret"
	testIssuer = "spec-forge"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserIDFromGin(c), "role": string(GetRoleFromGin(c))})
	}
	r.GET("/health", handler)
	r.GET("/v1/projects", handler)
	return r
}

func serve(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthWithJWT(t *testing.T) {
	r := newRouter(Auth(AuthConfig{
		Secret:    testSecret,
		Issuer:    testIssuer,
		SkipPaths: DefaultSkipPaths,
		Enabled:   true,
	}))
	manager := utils.NewJWTManager(testSecret, testIssuer)

	pair, err := manager.GenerateTokenPair("user-1", string(entity.UserRoleAdmin), time.Minute, time.Hour)
	require.NoError(t, err)

	w := serve(r, "/v1/projects", map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"user-1"`)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	w = serve(r, "/v1/projects", map[string]string{"Authorization": "Bearer " + pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, "/v1/projects", map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, "/v1/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthDevHeader(t *testing.T) {
	r := newRouter(Auth(AuthConfig{DevUserHeader: "X-User-ID"}))

	w := serve(r, "/v1/projects", map[string]string{"X-User-ID": "dev"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"member"`)

	w = serve(r, "/v1/projects", map[string]string{"X-User-ID": "dev", DevRoleHeader: "admin"})
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	w = serve(r, "/v1/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	r := newRouter(Auth(AuthConfig{DevUserHeader: "X-User-ID"}), RequireAdmin())

	w := serve(r, "/v1/projects", map[string]string{"X-User-ID": "dev"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"2004"`)

	w = serve(r, "/v1/projects", map[string]string{"X-User-ID": "dev", DevRoleHeader: "admin"})
	assert.Equal(t, http.StatusOK, w.Code)

	assert.True(t, HasPermission(entity.UserRoleMember, PermSpecGenerate))
	assert.False(t, HasPermission(entity.UserRoleMember, PermAdminAccess))
	assert.False(t, HasPermission(entity.UserRole("guest"), PermProjectRead))
}

type countingLimiter struct {
	counts map[string]int
	err    error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

func TestRateLimitPerUserAndRoute(t *testing.T) {
	limiter := &countingLimiter{counts: map[string]int{}}
	r := newRouter(
		Auth(AuthConfig{DevUserHeader: "X-User-ID"}),
		RateLimit(RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute, KeyPrefix: "rl"}, limiter),
	)

	alice := map[string]string{"X-User-ID": "alice"}
	assert.Equal(t, http.StatusOK, serve(r, "/v1/projects", alice).Code)
	assert.Equal(t, http.StatusOK, serve(r, "/v1/projects", alice).Code)
	w := serve(r, "/v1/projects", alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"error_code":"1006"`)
	assert.Equal(t, http.StatusOK, serve(r, "/v1/projects", map[string]string{"X-User-ID": "bob"}).Code)
	assert.Equal(t, 3, limiter.counts["rl:alice:/v1/projects"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	r := newRouter(RateLimit(RateLimitConfig{Enabled: true, Limit: 1}, limiter))
	assert.Equal(t, http.StatusOK, serve(r, "/v1/projects", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, "/v1/projects", nil).Code)
}

func TestRequestIDSanitizesInbound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "valid id is kept", header: "req-123_abc.1", keep: true},
		{name: "empty is generated", header: ""},
		{name: "newline is replaced", header: "abc\ninjected"},
		{name: "too long is replaced", header: strings.Repeat("a", 65)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			assert.Equal(t, got, w.Body.String())
			if tt.keep {
				assert.Equal(t, tt.header, got)
			} else {
				assert.NotEqual(t, tt.header, got)
				assert.Len(t, got, 36)
			}
		})
	}
}

func TestRecoveryWritesJSONOrSSE(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/json", func(c *gin.Context) { panic("boom") })
	r.GET("/sse", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.SSEvent("content", "partial")
		c.Writer.Flush()
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/json", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sse", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event:content")
	assert.Contains(t, body, "event:error")
}

func TestAuditLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, auditLevel(http.StatusOK))
	assert.Equal(t, slog.LevelWarn, auditLevel(http.StatusNotFound))
	assert.Equal(t, slog.LevelError, auditLevel(http.StatusBadGateway))
}
