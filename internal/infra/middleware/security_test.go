package middleware

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	expected := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_HSTSWithTLS(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}

func TestRateLimit_BlocksExcessiveTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 6, BurstSize: 3})(okHandler())

	success, blocked := 0, 0
	var last *httptest.ResponseRecorder
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/ask", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		switch w.Code {
		case http.StatusOK:
			success++
		case http.StatusTooManyRequests:
			blocked++
			last = w
		}
	}
	assert.Equal(t, 3, success)
	assert.Equal(t, 7, blocked)

	require.NotNil(t, last)
	var body map[string]string
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT", body["code"])
	assert.Equal(t, "Rate limit exceeded", body["detail"])
}

func TestRateLimit_SeparatesClientsByIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 6, BurstSize: 1})(okHandler())

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, addr)
	}
}

func TestVisitorsSweepForgetsIdleClients(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	v := newVisitors(RateLimitConfig{RequestsPerMin: 60, BurstSize: 1})
	v.now = func() time.Time { return clock }

	assert.True(t, v.allow("10.0.0.1"))
	assert.False(t, v.allow("10.0.0.1"))

	clock = clock.Add(idleClientTTL + time.Second)
	assert.True(t, v.allow("10.0.0.2"))
	v.sweep(idleClientTTL)

	v.mu.Lock()
	_, stale := v.byIP["10.0.0.1"]
	_, fresh := v.byIP["10.0.0.2"]
	v.mu.Unlock()
	assert.False(t, stale)
	assert.True(t, fresh)
}

func TestClientIP_SpoofingPrevention(t *testing.T) {
	trusted := parseCIDRs([]string{"10.0.0.0/8"})

	// Untrusted peer: header ignored.
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "203.0.113.9", clientIP(req, trusted))

	// Trusted peer: first forwarded address wins.
	req.RemoteAddr = "10.1.2.3:4000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.1.2.3")
	assert.Equal(t, "1.2.3.4", clientIP(req, trusted))

	// Trusted peer with X-Real-IP only.
	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", clientIP(req, trusted))

	// IPv4-mapped peer still matches an IPv4 prefix.
	req.RemoteAddr = "[::ffff:10.1.2.3]:4000"
	assert.Equal(t, "5.6.7.8", clientIP(req, trusted))

	// No trusted networks configured.
	req.RemoteAddr = "10.1.2.3:4000"
	assert.Equal(t, "10.1.2.3", clientIP(req, nil))
}

func TestClientIP_IPv6(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", clientIP(req, nil))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	_, err := ulid.ParseStrict(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))

	// A valid incoming ULID is kept.
	id := NewID()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, id)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, id, seen)

	// Garbage is replaced.
	req.Header.Set(HeaderRequestID, "not-a-ulid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "not-a-ulid", seen)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(okHandler(), mw("a"), mw("b")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}
