// Package httpclient builds the outbound HTTP client shared by the REST
// provider adapters (Azure, Alibaba, GCP, Nebius).
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// UserAgent is sent on every outbound request that does not set its own.
const UserAgent = "flavorwise"

// ClientConfig holds transport limits and timeouts.
type ClientConfig struct {
	// MaxIdleConnsPerHost is high because catalogs are paged from a handful
	// of hosts by many pool workers at once.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	Timeout               time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns the limits used for provider catalog APIs.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		Timeout:               120 * time.Second,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
}

// ConfigFromSeconds returns DefaultConfig with the request and header
// timeouts replaced. Non-positive values keep the defaults.
func ConfigFromSeconds(timeout, responseHeaderTimeout int) ClientConfig {
	cfg := DefaultConfig()
	if timeout > 0 {
		cfg.Timeout = time.Duration(timeout) * time.Second
	}
	if responseHeaderTimeout > 0 {
		cfg.ResponseHeaderTimeout = time.Duration(responseHeaderTimeout) * time.Second
	}
	return cfg
}

// NewHTTPClient creates a client from cfg; nil means DefaultConfig.
func NewHTTPClient(cfg *ClientConfig) *http.Client {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	dialer := &net.Dialer{Timeout: c.DialTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: c.Timeout,
		Transport: &userAgentTransport{base: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          c.MaxIdleConns,
			MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
			IdleConnTimeout:       c.IdleConnTimeout,
			TLSHandshakeTimeout:   c.TLSHandshakeTimeout,
			ResponseHeaderTimeout: c.ResponseHeaderTimeout,
			ExpectContinueTimeout: time.Second,
		}},
	}
}

type userAgentTransport struct {
	base *http.Transport
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return t.base.RoundTrip(req)
}
