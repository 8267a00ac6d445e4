// Package restclient provides the HTTP client used by the REST provider adapters:
//   - Request building with JSON or form bodies
//   - Per-provider outbound rate limiting
//   - Typed error mapping (credentials, not found, upstream)
//   - Call counters and latency histograms
//
// Requests are never retried; a failed lookup is reported to the caller.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"flavorwise/internal/core"
	"flavorwise/internal/httpclient"
	"flavorwise/internal/observability"
)

// Config holds configuration for the REST client
type Config struct {
	// Provider labels errors and metrics
	Provider core.CloudType

	// BaseURL is the API base URL
	BaseURL string

	// RateLimit is the sustained requests per second; zero or less disables limiting.
	RateLimit float64
	// Burst is the token bucket size (default: 1)
	Burst int
}

// HeaderSetter sets provider-specific headers on an outgoing request.
// It may fetch a token, so it receives the request context and can fail.
type HeaderSetter func(ctx context.Context, req *http.Request) error

// Client is a rate-limited HTTP client for one provider API.
type Client struct {
	httpClient   *http.Client
	config       Config
	headerSetter HeaderSetter
	limiter      *rate.Limiter
}

// New creates a client. A nil httpClient uses httpclient.NewHTTPClient(nil).
func New(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewHTTPClient(nil)
	}
	return &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
		limiter:      NewLimiter(config.RateLimit, config.Burst),
	}
}

// NewLimiter returns a token bucket limiter. A non-positive limit never blocks.
func NewLimiter(limit float64, burst int) *rate.Limiter {
	if limit <= 0 || math.IsInf(limit, 1) {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

// SetBaseURL updates the base URL
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = url
}

// BaseURL returns the current base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Provider returns the provider the client talks to.
func (c *Client) Provider() core.CloudType {
	return c.config.Provider
}

// Request represents an HTTP request to be made
type Request struct {
	// Operation names the call in metrics and errors, e.g. "list_skus".
	Operation string
	Method    string
	// Endpoint is appended to the base URL. URL, when set, is used as-is
	// (pagination links returned by the API).
	Endpoint string
	URL      string
	Query    url.Values
	// Body is JSON marshaled if not nil. Form is sent url-encoded instead.
	Body    interface{}
	Form    url.Values
	Headers map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes a request and unmarshals the JSON response into result
func (c *Client) Do(ctx context.Context, req Request, result interface{}) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return core.NewUpstreamUnavailableError(c.config.Provider, "failed to unmarshal "+req.Operation+" response: "+err.Error(), err)
		}
	}
	return nil
}

// DoRaw executes a request and returns the raw body of a 2xx response.
// Non-2xx responses are mapped with core.ParseProviderError.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.doRequest(ctx, req)

	provider := string(c.config.Provider)
	observability.ProviderCallDuration.WithLabelValues(provider, req.Operation).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = string(core.KindOf(err))
	}
	observability.ProviderCalls.WithLabelValues(provider, req.Operation, outcome).Inc()

	return resp, err
}

func (c *Client) doRequest(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, core.WrapTransportError(c.config.Provider, req.Operation+": rate limiter", err)
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.WrapTransportError(c.config.Provider, req.Operation, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.WrapTransportError(c.config.Provider, req.Operation+": read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.ParseProviderError(c.config.Provider, resp.StatusCode, body, nil)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := req.URL
	if target == "" {
		target = c.config.BaseURL + req.Endpoint
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var (
		bodyReader  io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		bodyReader = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.NewInvalidArgumentError("failed to marshal request", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
		contentType = "application/json"
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, core.NewInvalidArgumentError("failed to create request", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	if c.headerSetter != nil {
		if err := c.headerSetter(ctx, httpReq); err != nil {
			var typed *core.Error
			if errors.As(err, &typed) {
				return nil, err
			}
			return nil, core.NewCredentialsInvalidError(c.config.Provider, "failed to authorize request: "+err.Error(), err)
		}
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}
