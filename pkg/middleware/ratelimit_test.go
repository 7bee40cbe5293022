package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/contextkeys"
	"github.com/workroomhq/workroom/pkg/observability"
)

func newTestRateLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewRateLimiter(client, limit, window, logger), mr
}

func limitedRequest(userID int64) *http.Request {
	r := httptest.NewRequest("GET", "/api/v1/workspaces", nil)
	authCtx := &auth.AuthContext{Kind: auth.ActorSession, UserID: userID}
	return r.WithContext(contextkeys.WithAuth(r.Context(), authCtx))
}

func TestRateLimiter_UnderLimit(t *testing.T) {
	limiter, _ := newTestRateLimiter(t, 3, time.Minute)
	handler := limiter.Handler(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(42))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_OverLimit(t *testing.T) {
	limiter, _ := newTestRateLimiter(t, 2, time.Minute)
	handler := limiter.Handler(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(42))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(42))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error": "Rate limit exceeded."}`, rec.Body.String())
}

func TestRateLimiter_SeparateActorsSeparateBuckets(t *testing.T) {
	limiter, _ := newTestRateLimiter(t, 1, time.Minute)
	handler := limiter.Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(1))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(2))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	limiter, mr := newTestRateLimiter(t, 1, time.Minute)
	handler := limiter.Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(42))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(42))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	mr.FastForward(2 * time.Minute)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(42))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	limiter, mr := newTestRateLimiter(t, 1, time.Minute)
	handler := limiter.Handler(okHandler())
	mr.Close()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(42))
	assert.Equal(t, http.StatusOK, rec.Code)
}
