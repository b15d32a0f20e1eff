package llm

import (
	"net/http"
	"testing"
	"time"

	"tutor-dispatch/internal/infra/config"
)

func TestNewHTTPClientDefaults(t *testing.T) {
	c := NewHTTPClient(config.ProviderConfig{})
	if c.Timeout != fallbackConnTimeout+fallbackRespTimeout {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	tr := c.Transport.(*http.Transport)
	if tr.MaxIdleConnsPerHost != 10 || tr.IdleConnTimeout != 2*time.Minute {
		t.Errorf("pool defaults not applied: %d %v", tr.MaxIdleConnsPerHost, tr.IdleConnTimeout)
	}
}

func TestNewHTTPClientHonoursConfig(t *testing.T) {
	c := NewHTTPClient(config.ProviderConfig{
		ConnTimeout: time.Second,
		RespTimeout: 2 * time.Second,
		Pool:        config.PoolConfig{MaxConnsPerHost: 3},
	})
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Timeout)
	}
	tr := c.Transport.(*http.Transport)
	if tr.MaxConnsPerHost != 3 || tr.ResponseHeaderTimeout != 2*time.Second {
		t.Errorf("transport = %d %v", tr.MaxConnsPerHost, tr.ResponseHeaderTimeout)
	}
	if tr.MaxIdleConns != 20 {
		t.Errorf("MaxIdleConns = %d, want fallback 20", tr.MaxIdleConns)
	}
}
