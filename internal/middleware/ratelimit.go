package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Limiter decides whether another request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a per-process sliding window limiter. Keys with no
// request inside the window are dropped.
type MemoryLimiter struct {
	max       int
	window    time.Duration
	requests  map[string][]time.Time // key -> timestamps
	lastSweep time.Time
	mu        sync.Mutex
	now       func() time.Time
}

// NewMemoryLimiter allows max requests per key within window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:      max,
		window:   window,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records a request for key if the window has room.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(windowStart)
		l.lastSweep = now
	}

	// Clean old requests outside the window
	var valid []time.Time
	for _, ts := range l.requests[key] {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= l.max {
		l.requests[key] = valid
		return false, nil
	}
	l.requests[key] = append(valid, now)
	return true, nil
}

// sweep removes keys whose newest request is outside the window.
func (l *MemoryLimiter) sweep(windowStart time.Time) {
	for key, ts := range l.requests {
		if len(ts) == 0 || !ts[len(ts)-1].After(windowStart) {
			delete(l.requests, key)
		}
	}
}

// RedisLimiter is a fixed window limiter shared by every instance.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

// NewRedisLimiter allows max requests per key within window.
func NewRedisLimiter(client redis.UniversalClient, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

// Allow increments the counter for the current window. The window
// starts with the first request for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	storeKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.client.Incr(ctx, storeKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, storeKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("redis rate limit: %w", err)
		}
	}
	return count <= l.max, nil
}

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(r *http.Request) string

// RateLimit refuses requests over the limiter's budget with 429. Limiter
// errors let the request through.
func RateLimit(limiter Limiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.WithError(err).WithField("path", r.URL.Path).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				log.WithFields(log.Fields{"path": r.URL.Path, "request_id": RequestIDFromContext(r.Context())}).Warn("Rate limit exceeded")
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	maxPeekBytes = 1 << 20
	// E.164 allows at most 15 digits plus the leading '+'.
	maxPhoneKeyLen = 16
)

// PhoneKey keys requests by the normalized phoneNumber in their JSON body,
// falling back to the client IP when it is missing or too long to be a
// phone number. The body is restored for the handler.
func PhoneKey(normalize func(string) string) KeyFunc {
	return func(r *http.Request) string {
		if r.Body != nil {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
			if err == nil {
				var req struct {
					PhoneNumber string `json:"phoneNumber"`
				}
				if json.Unmarshal(body, &req) == nil && strings.TrimSpace(req.PhoneNumber) != "" {
					if normalized := normalize(req.PhoneNumber); len(normalized) <= maxPhoneKeyLen {
						return "phone:" + normalized
					}
				}
			}
		}
		return "ip:" + ClientIP(r)
	}
}

// ClientIP extracts the client IP from the request. Forwarded headers are
// only honoured when the peer is a loopback or private address, i.e. a
// reverse proxy in front of the service.
func ClientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !trustedProxy(peer) {
		return peer
	}

	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	return peer
}

func trustedProxy(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
