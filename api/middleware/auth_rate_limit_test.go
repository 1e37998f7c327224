package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
)

type fakeRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateLimiter() *fakeRateLimiter {
	return &fakeRateLimiter{counts: map[string]int64{}}
}

func (f *fakeRateLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func loginRequest(username, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"`+username+`","password":"secret"}`))
	req.RemoteAddr = remote
	return req
}

func TestAuthRateLimitAllowsUnderLimitAndPreservesBody(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 2, 2)
	handler := AuthRateLimit(policy, newFakeRateLimiter(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"username":"admin"`)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("admin", "1.2.3.4:5678"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitUsernameLimitTriggers(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 2)
	handler := AuthRateLimit(policy, newFakeRateLimiter(), nil)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		// case differences count against the same username
		name := "Admin"
		if i%2 == 0 {
			name = " admin "
		}
		handler.ServeHTTP(rec, loginRequest(name, "1.2.3.4:5678"))

		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
	}
}

func TestAuthRateLimitUsernameScopedByIP(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 1)
	handler := AuthRateLimit(policy, newFakeRateLimiter(), nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("admin", "1.1.1.1:1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("admin", "2.2.2.2:1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimitIPLimitTriggers(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 1, 0)
	handler := AuthRateLimit(policy, newFakeRateLimiter(), nil)(okHandler())

	for i := 0; i < 2; i++ {
		req := loginRequest("user"+string(rune('a'+i)), "5.6.7.8:1234")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i == 0 {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
}

func TestAuthRateLimitStoreFailure(t *testing.T) {
	limiter := newFakeRateLimiter()
	limiter.err = errors.New("redis down")
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 5, 5), limiter, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("admin", "1.2.3.4:1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", 0, 1, 1), newFakeRateLimiter(), nil)(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("admin", "1.2.3.4:1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 9.9.9.9 , 10.0.0.1")
	assert.Equal(t, "9.9.9.9", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "4.4.4.4:80"
	assert.Equal(t, "4.4.4.4", clientIP(req))
}
