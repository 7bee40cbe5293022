package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/observability"
)

// RateLimiter is a Redis-backed fixed-window limiter keyed per actor, so
// limits hold across instances. Redis failures fail open: an unavailable
// limiter must not take the API down with it.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	logger *observability.Logger
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *observability.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Handler enforces the limit and sets the X-RateLimit-* headers.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := "ratelimit:" + actorKey(r)

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.WithError(err).Warn("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.redis.Expire(ctx, key, rl.window)
		}

		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		if reset := rl.resetTime(ctx, key); !reset.IsZero() {
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
		}

		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", rl.window.Seconds()))
			httputil.WriteTooManyRequests(w, "Rate limit exceeded.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) resetTime(ctx context.Context, key string) time.Time {
	ttl, err := rl.redis.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// actorKey buckets requests per API key, per user, or per client IP for
// unauthenticated routes.
func actorKey(r *http.Request) string {
	if authCtx := GetAuthContext(r); authCtx != nil {
		if authCtx.Kind == auth.ActorAPIKey {
			return fmt.Sprintf("key:%d", authCtx.KeyID)
		}
		return fmt.Sprintf("user:%d", authCtx.UserID)
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
