package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"finance-sync/pkg/logging"
	"finance-sync/pkg/metrics"
	"finance-sync/pkg/resilience"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefreshFunc obtains a new token and installs it with SetAuthToken.
type RefreshFunc func(ctx context.Context) error

// UnauthorizedFunc is called when a request is still rejected after a
// successful refresh.
type UnauthorizedFunc func(ctx context.Context)

// Client is the single gateway to the REST API. It attaches the bearer
// token, encodes JSON bodies and replays a request once after a 401 when a
// refresh handler is installed.
type Client struct {
	baseURL   string
	userAgent string
	doer      resilience.Doer
	metrics   metrics.MetricsCollector
	logger    *logging.Logger

	mu           sync.RWMutex
	token        string
	refresh      RefreshFunc
	unauthorized UnauthorizedFunc
}

// ClientConfig configures the transport.
type ClientConfig struct {
	// BaseURL is the API root, e.g. http://10.0.2.2:8000
	BaseURL string `yaml:"base_url"`

	// UserAgent is sent on every request when set
	UserAgent string `yaml:"user_agent"`
}

// RequestOptions describes one call. Body is JSON-encoded unless nil.
type RequestOptions struct {
	Method  string
	Body    any
	Headers map[string]string
}

// NewClient creates a client that sends requests through doer.
func NewClient(config ClientConfig, doer resilience.Doer) *Client {
	return NewClientWithMetrics(config, doer, metrics.NoOpCollector{})
}

// NewClientWithMetrics creates a client that reports request metrics.
func NewClientWithMetrics(config ClientConfig, doer resilience.Doer, collector metrics.MetricsCollector) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		userAgent: config.UserAgent,
		doer:      doer,
		metrics:   collector,
		logger:    logging.Global().Named("transport"),
	}
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthToken installs the bearer token for subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearAuthToken removes the bearer token.
func (c *Client) ClearAuthToken() {
	c.SetAuthToken("")
}

// AuthToken returns the current bearer token, or "".
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetRefreshHandler installs the 401 refresh callback. nil disables replay.
func (c *Client) SetRefreshHandler(fn RefreshFunc) {
	c.mu.Lock()
	c.refresh = fn
	c.mu.Unlock()
}

// SetUnauthorizedHandler installs the callback for a 401 on the replay.
func (c *Client) SetUnauthorizedHandler(fn UnauthorizedFunc) {
	c.mu.Lock()
	c.unauthorized = fn
	c.mu.Unlock()
}

// JSON sends in as the JSON body (nil for none) and decodes the response
// into out (nil to discard). An absent response body leaves out untouched.
func (c *Client) JSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := c.Request(ctx, path, RequestOptions{Method: method, Body: in})
	if err != nil {
		return err
	}
	if out == nil || payload.Empty() {
		return nil
	}
	if err := payload.Decode(out); err != nil {
		return fmt.Errorf("transport: decode %s %s: %w", method, path, err)
	}
	return nil
}

// Request performs one API call with the 401 refresh-and-replay contract.
func (c *Client) Request(ctx context.Context, path string, opts RequestOptions) (*Payload, error) {
	var body []byte
	contentType := ""
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("transport: encode body: %w", err)
		}
		body = encoded
		contentType = "application/json"
	}
	return c.send(ctx, path, opts.Method, body, contentType, opts.Headers)
}

func (c *Client) send(ctx context.Context, path, method string, body []byte, contentType string, headers map[string]string) (*Payload, error) {
	target, err := c.buildURL(path)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodGet
	}
	route := routeLabel(target)

	status, respBody, err := c.attempt(ctx, method, target, route, body, contentType, headers)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		c.mu.RLock()
		refresh := c.refresh
		unauthorized := c.unauthorized
		c.mu.RUnlock()

		if refresh != nil {
			original := newHTTPError(status, respBody)
			if refreshErr := refresh(ctx); refreshErr != nil {
				c.metrics.RecordAuthRetry(route, metrics.AuthRefreshFailed)
				c.logger.Warn("token refresh failed",
					zap.String("method", method),
					zap.String("route", route),
					zap.Error(refreshErr),
				)
				return nil, original
			}

			status, respBody, err = c.attempt(ctx, method, target, route, body, contentType, headers)
			if err != nil {
				return nil, err
			}
			if status == http.StatusUnauthorized {
				c.metrics.RecordAuthRetry(route, metrics.AuthRejected)
				c.logger.Warn("request rejected after token refresh",
					zap.String("method", method),
					zap.String("route", route),
				)
				if unauthorized != nil {
					unauthorized(ctx)
				}
			} else {
				c.metrics.RecordAuthRetry(route, metrics.AuthReplayed)
			}
		}
	}

	if status < 200 || status >= 300 {
		httpErr := newHTTPError(status, respBody)
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("message", httpErr.Message),
		)
		return nil, httpErr
	}

	return newPayload(status, respBody), nil
}

// attempt issues one HTTP round trip and reads the whole body.
func (c *Client) attempt(ctx context.Context, method, target, route string, body []byte, contentType string, headers map[string]string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("transport: build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("url", target),
		zap.String("request_id", requestID),
	)

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		c.metrics.RecordRequest(route, method, 0, time.Since(start))
		c.logger.Error("request error",
			zap.String("method", method),
			zap.String("url", target),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return 0, nil, &NetworkError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.metrics.RecordRequest(route, method, resp.StatusCode, time.Since(start))
	if err != nil {
		return 0, nil, &NetworkError{Method: method, URL: target, Err: err}
	}

	return resp.StatusCode, respBody, nil
}

func (c *Client) buildURL(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("transport: base URL is not configured")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path, nil
}

// routeLabel is the first path segment, bounded for metric cardinality.
func routeLabel(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}
	segment, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if segment == "" {
		return "root"
	}
	return segment
}
