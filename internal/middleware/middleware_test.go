package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/pageza/cookbook/backend/internal/types"
)

type stubValidator struct {
	token  string
	claims *types.TokenClaims
}

func (v stubValidator) ValidateToken(token string) (*types.TokenClaims, error) {
	if token != v.token {
		return nil, errors.New("bad token")
	}
	return v.claims, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newStubValidator() (stubValidator, uuid.UUID) {
	id := uuid.New()
	return stubValidator{token: "good", claims: &types.TokenClaims{UserID: id, Username: "alice"}}, id
}

func whoAmI(c *gin.Context) {
	if id := OptionalUserID(c); id != nil {
		c.String(http.StatusOK, id.String())
		return
	}
	c.String(http.StatusOK, "anonymous")
}

func TestAuthMiddleware(t *testing.T) {
	validator, id := newStubValidator()
	router := gin.New()
	router.GET("/me", AuthMiddleware(validator, "session"), whoAmI)

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantStatus int
		wantBody   string
	}{
		{name: "bearer", header: "Bearer good", wantStatus: http.StatusOK, wantBody: id.String()},
		{name: "lowercase scheme", header: "bearer good", wantStatus: http.StatusOK, wantBody: id.String()},
		{name: "cookie", cookie: "good", wantStatus: http.StatusOK, wantBody: id.String()},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", header: "Token good", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "session", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	validator, id := newStubValidator()
	router := gin.New()
	router.GET("/me", OptionalAuth(validator, "session"), whoAmI)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "anonymous", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, id.String(), w.Body.String())
}

func TestRateLimitMiddlewareInMemory(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{Window: time.Hour, Limit: 2, KeyPrefix: "test"}, zap.NewNop())
	router := gin.New()
	router.POST("/contact", rl.RateLimitMiddleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/contact", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := send("10.0.0.1")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusCreated, send("10.0.0.1").Code)

	blocked := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, send("10.0.0.2").Code, "limits are tracked per caller")
}

func TestLocalRateLimitEvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{Window: 10 * time.Millisecond, Limit: 1, KeyPrefix: "test"}, zap.NewNop())
	rl.maxBuckets = 2
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		allowed, _, _, err := rl.IsAllowed(ctx, key)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	time.Sleep(30 * time.Millisecond)

	allowed, _, _, err := rl.IsAllowed(ctx, "c")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Len(t, rl.buckets, 1, "refilled buckets are dropped")
	assert.Contains(t, rl.buckets, "c")
}

func TestLocalRateLimitResetsWhenFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rl := NewRateLimiter(nil, RateLimitConfig{Window: time.Hour, Limit: 1, KeyPrefix: "test"}, zap.New(core))
	rl.maxBuckets = 2
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, _, _, err := rl.IsAllowed(ctx, key)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, len(rl.buckets), 2)
	assert.Equal(t, 1, logs.FilterMessage("Rate limit table full, resetting").Len())
}

func TestLocalRateLimitRateIsFinite(t *testing.T) {
	// more requests than nanoseconds in the window
	rl := NewRateLimiter(nil, RateLimitConfig{Window: 10 * time.Nanosecond, Limit: 100, KeyPrefix: "test"}, zap.NewNop())
	_, _, _, err := rl.IsAllowed(context.Background(), "k")
	require.NoError(t, err)

	lim := rl.buckets["k"]
	require.NotNil(t, lim)
	assert.NotEqual(t, rate.Inf, lim.Limit())
	assert.InDelta(t, 1e10, float64(lim.Limit()), 1)
	assert.Equal(t, 100, lim.Burst())
}

func TestPerRecipeRateLimit(t *testing.T) {
	validator, _ := newStubValidator()
	rl := NewRecipeModificationRateLimiter(nil, 1, time.Hour, zap.NewNop())
	router := gin.New()
	router.PUT("/recipes/:id", AuthMiddleware(validator, ""), rl.PerRecipeRateLimitMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	update := func(id string) int {
		req := httptest.NewRequest(http.MethodPut, "/recipes/"+id, nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, update("a"))
	assert.Equal(t, http.StatusTooManyRequests, update("a"))
	assert.Equal(t, http.StatusOK, update("b"))
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })
	router.NoRoute(NotFound())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["error"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok", entries[0].ContextMap()["path"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.EqualValues(t, 400, entries[1].ContextMap()["status"])
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"http://localhost:5173"}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
