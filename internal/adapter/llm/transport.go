package llm

import (
	"net"
	"net/http"
	"time"

	"tutor-dispatch/internal/infra/config"
)

// Fallbacks for ProviderConfig fields left at zero. A tutor process talks to
// one or two API hosts, so the pool is small and connections live long.
var (
	fallbackConnTimeout = 30 * time.Second
	fallbackRespTimeout = 120 * time.Second
	fallbackPool        = config.PoolConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     2 * time.Minute,
	}
)

// NewHTTPClient builds the client shared by the REST and SDK providers.
// The overall timeout covers dialing plus waiting for response headers.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	conn := orDefault(cfg.ConnTimeout, fallbackConnTimeout)
	resp := orDefault(cfg.RespTimeout, fallbackRespTimeout)
	return &http.Client{
		Transport: pooledTransport(conn, resp, cfg.Pool),
		Timeout:   conn + resp,
	}
}

func pooledTransport(conn, resp time.Duration, pool config.PoolConfig) *http.Transport {
	pool = withPoolDefaults(pool)
	dialer := &net.Dialer{Timeout: conn, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: resp,
		MaxIdleConns:          pool.MaxIdleConns,
		MaxIdleConnsPerHost:   pool.MaxIdleConnsPerHost,
		MaxConnsPerHost:       pool.MaxConnsPerHost,
		IdleConnTimeout:       pool.IdleConnTimeout,
	}
}

func withPoolDefaults(p config.PoolConfig) config.PoolConfig {
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = fallbackPool.MaxIdleConns
	}
	if p.MaxIdleConnsPerHost <= 0 {
		p.MaxIdleConnsPerHost = fallbackPool.MaxIdleConnsPerHost
	}
	if p.MaxConnsPerHost <= 0 {
		p.MaxConnsPerHost = fallbackPool.MaxConnsPerHost
	}
	if p.IdleConnTimeout <= 0 {
		p.IdleConnTimeout = fallbackPool.IdleConnTimeout
	}
	return p
}
