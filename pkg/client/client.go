// Package client is the programmatic mirror of the server's resource
// API: one endpoint per resource, with the same filter, pagination and
// batch semantics the HTTP surface exposes.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ocervell/flash/pkg/apierr"
	"github.com/ocervell/flash/pkg/httputil"
)

// DefaultMaxRequestSize bounds the serialized size of one request.
// Batches and id lists beyond it are split across requests.
const DefaultMaxRequestSize = 2900

// Record is one API record, keyed by field name.
type Record = map[string]any

// TokenFunc supplies a bearer token. It is called per request and once
// more when a request comes back 401, so implementations can refresh.
type TokenFunc func(ctx context.Context) (string, error)

// Client talks to one resource server.
type Client struct {
	baseURL        string
	logger         *zap.Logger
	token          TokenFunc
	headers        map[string][]string
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	retry          bool
	maxRequestSize int
}

type Option func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTokenFunc enables bearer-token auth. On a 401 the token is
// refreshed and the request replayed once.
func WithTokenFunc(fn TokenFunc) Option {
	return func(c *Client) { c.token = fn }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = append(c.headers[key], value) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxRetries bounds transport-level retries of 5xx responses.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithoutRetry disables transport-level retries.
func WithoutRetry() Option {
	return func(c *Client) { c.retry = false }
}

// WithMaxRequestSize overrides the request-splitting threshold.
func WithMaxRequestSize(n int) Option {
	return func(c *Client) { c.maxRequestSize = n }
}

// New builds a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		logger:         zap.NewNop(),
		headers:        make(map[string][]string),
		timeout:        5 * time.Second,
		maxRetries:     3,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		retry:          true,
		maxRequestSize: DefaultMaxRequestSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs one API request. Transport errors and 5xx are retried by
// the HTTP layer; a 401 triggers one token refresh and replay; any
// remaining >=400 status decodes into a taxonomy error.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload any) (*httputil.Response, error) {
	resp, err := c.doOnce(ctx, method, path, params, payload)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode == http.StatusUnauthorized && c.token != nil {
		c.logger.Debug("token rejected, refreshing and replaying", zap.String("path", path))
		if resp, err = c.doOnce(ctx, method, path, params, payload); err != nil {
			return resp, err
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, payload any) (*httputil.Response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	cfg := httputil.DefaultRequestConfig(method, u)
	cfg.Logger = c.logger
	cfg.Timeout = c.timeout
	cfg.MaxRetries = c.maxRetries
	cfg.InitialBackoff = c.initialBackoff
	cfg.MaxBackoff = c.maxBackoff
	cfg.RetryEnabled = c.retry
	cfg.Headers = make(map[string][]string, len(c.headers)+1)
	for k, v := range c.headers {
		cfg.Headers[k] = v
	}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, err
		}
		cfg.Headers["Authorization"] = []string{"Bearer " + tok}
	}
	return httputil.Request(ctx, cfg, payload)
}

// decodeError reconstructs a taxonomy error from an error response's
// "Kind: detail" message.
func decodeError(resp *httputil.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Message == "" {
		return apierr.New("HTTPError", resp.StatusCode, "unexpected status %d", resp.StatusCode)
	}
	kind, detail := body.Message, ""
	if i := strings.Index(body.Message, ": "); i > 0 {
		kind, detail = body.Message[:i], body.Message[i+2:]
	}
	return &apierr.Error{Kind: kind, Message: detail, Code: resp.StatusCode}
}
