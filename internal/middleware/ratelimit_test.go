package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, errors.New("backend down")
}

func TestMemoryLimiter(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "a")
	assert.False(t, ok)

	// Other keys have their own budget
	ok, _ = limiter.Allow(ctx, "b")
	assert.True(t, ok)

	// The window slides
	now = now.Add(61 * time.Second)
	ok, _ = limiter.Allow(ctx, "a")
	assert.True(t, ok)
}

func TestRedisLimiter(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, "otp_test", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "phone:+919876543210")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "phone:+919876543210")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, m.TTL("otp_test:phone:+919876543210"))

	m.FastForward(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "phone:+919876543210")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_BackendErrors(t *testing.T) {
	_, err := NewRedisLimiter(nil, "", 1, time.Second).Allow(context.Background(), "k")
	assert.Error(t, err)

	badClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 20 * time.Millisecond})
	t.Cleanup(func() { _ = badClient.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = NewRedisLimiter(badClient, "", 1, time.Second).Allow(ctx, "k")
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	keyFn := PhoneKey(func(s string) string { return strings.TrimPrefix(s, "0") })

	var seenBody string
	handler := RateLimit(limiter, keyFn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seenBody = string(body)
	}))

	t.Run("first request passes with body intact", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/send-otp", strings.NewReader(`{"phoneNumber":"09876543210"}`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `{"phoneNumber":"09876543210"}`, seenBody)
	})

	t.Run("same phone is limited", func(t *testing.T) {
		seenBody = ""
		req := httptest.NewRequest("POST", "/send-otp", strings.NewReader(`{"phoneNumber":"9876543210"}`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), `"error":"RATE_LIMITED"`)
		assert.Empty(t, seenBody)
	})

	t.Run("limiter failure allows request", func(t *testing.T) {
		handlerCalled := false
		h := RateLimit(failingLimiter{}, keyFn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("POST", "/send-otp", nil))
		assert.True(t, handlerCalled)
	})
}

func TestPhoneKey_FallsBackToIP(t *testing.T) {
	keyFn := PhoneKey(func(s string) string { return s })

	req := httptest.NewRequest("POST", "/send-otp", strings.NewReader(`not json`))
	req.RemoteAddr = "192.168.1.2:12345"
	assert.Equal(t, "ip:192.168.1.2", keyFn(req))

	req = httptest.NewRequest("POST", "/send-otp", strings.NewReader(`{"phoneNumber":"  "}`))
	req.RemoteAddr = "127.0.0.1:5000"
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "ip:10.0.0.1", keyFn(req))

	long := strings.Repeat("9", 64)
	req = httptest.NewRequest("POST", "/send-otp", strings.NewReader(`{"phoneNumber":"`+long+`"}`))
	req.RemoteAddr = "203.0.113.7:4000"
	assert.Equal(t, "ip:203.0.113.7", keyFn(req))
	body, _ := io.ReadAll(req.Body)
	assert.Contains(t, string(body), long)
}

func TestMemoryLimiter_DropsIdleKeys(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		ok, err := limiter.Allow(ctx, fmt.Sprintf("phone:+91%010d", i))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Len(t, limiter.requests, 200)

	now = now.Add(2 * time.Minute)
	ok, err := limiter.Allow(ctx, "phone:+919876543210")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, limiter.requests, 1)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	assert.Equal(t, "192.168.1.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.9")
	assert.Equal(t, "172.16.0.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", ClientIP(req))

	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "10.1.1.1", ClientIP(req))
}

func TestClientIP_IgnoresForwardedHeadersFromPublicPeers(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	req.Header.Set("X-Forwarded-For", "10.1.1.1")
	req.Header.Set("X-Real-IP", "10.2.2.2")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}
