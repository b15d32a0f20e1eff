package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tutor-dispatch/internal/domain"
)

// SecurityHeaders sets the response headers every JSON endpoint carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	RequestsPerMin int
	BurstSize      int
	// TrustedProxies lists CIDRs allowed to set X-Forwarded-For and X-Real-IP.
	TrustedProxies []string
}

const (
	idleClientTTL = 3 * time.Minute
	sweepEvery    = time.Minute
)

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// visitors keeps one token bucket per client address.
type visitors struct {
	mu    sync.Mutex
	byIP  map[string]*visitor
	every rate.Limit
	burst int
	now   func() time.Time
}

func newVisitors(cfg RateLimitConfig) *visitors {
	return &visitors{
		byIP:  make(map[string]*visitor),
		every: rate.Limit(float64(cfg.RequestsPerMin) / 60),
		burst: cfg.BurstSize,
		now:   time.Now,
	}
}

func (v *visitors) allow(ip string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	c, ok := v.byIP[ip]
	if !ok {
		c = &visitor{lim: rate.NewLimiter(v.every, v.burst)}
		v.byIP[ip] = c
	}
	c.lastSeen = now
	return c.lim.AllowN(now, 1)
}

// sweep forgets clients idle for longer than ttl.
func (v *visitors) sweep(ttl time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cutoff := v.now().Add(-ttl)
	for ip, c := range v.byIP {
		if c.lastSeen.Before(cutoff) {
			delete(v.byIP, ip)
		}
	}
}

func (v *visitors) run(ctx context.Context) {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			v.sweep(idleClientTTL)
		}
	}
}

// RateLimit rejects clients that exceed their token bucket with 429. Idle
// buckets are swept until ctx is cancelled. Proxy headers only count when the
// direct peer sits inside cfg.TrustedProxies.
func RateLimit(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	trusted := parseCIDRs(cfg.TrustedProxies)
	v := newVisitors(cfg)
	go v.run(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.allow(clientIP(r, trusted)) {
				WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded", domain.CodeRateLimit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the {"detail", "code"} error body shared with the gin handlers.
func WriteError(w http.ResponseWriter, status int, detail string, code domain.ErrorCode) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail, "code": string(code)})
}

// parseCIDRs skips entries that do not parse.
func parseCIDRs(cidrs []string) []netip.Prefix {
	var out []netip.Prefix
	for _, c := range cidrs {
		if p, err := netip.ParsePrefix(strings.TrimSpace(c)); err == nil {
			out = append(out, p.Masked())
		}
	}
	return out
}

func peerTrusted(host string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if !peerTrusted(host, trusted) {
		return host
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return host
}
