// Package gateway is the HTTP client of the manufacturing order API
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultPublicPrefix is the path prefix exempt from the bearer credential
	DefaultPublicPrefix = "/api/public/"
	// DefaultTimeout bounds every request when no HTTP client is supplied
	DefaultTimeout = 10 * time.Second

	// RequestIDHeader carries a per-request identifier for log correlation
	RequestIDHeader = "X-Request-ID"
)

// CredentialSource supplies the bearer token for authenticated calls
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialSource returning a fixed token
type StaticToken string

// Token implements CredentialSource
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its timeout is left
// as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCredentials sets the bearer credential source
func WithCredentials(src CredentialSource) Option {
	return func(c *Client) { c.creds = src }
}

// WithPublicPrefix changes the path prefix sent without credentials
func WithPublicPrefix(prefix string) Option {
	return func(c *Client) { c.publicPrefix = prefix }
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the timeout of the default HTTP client. It has no effect
// when WithHTTPClient supplies the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client calls the order API
type Client struct {
	baseURL      string
	httpClient   *http.Client
	creds        CredentialSource
	publicPrefix string
	logger       *zap.Logger
	timeout      time.Duration
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		publicPrefix: DefaultPublicPrefix,
		logger:       zap.NewNop(),
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) public(path string) bool {
	return c.publicPrefix != "" && strings.HasPrefix(path, c.publicPrefix)
}

// errorEnvelope is the body of every non-2xx response
type errorEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details"`
	} `json:"error"`
}

// dataEnvelope wraps the payload of read and write endpoints
type dataEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// do sends one request and decodes a 2xx body into out (when out is non-nil)
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Everything outside the public prefix carries the bearer credential
	if !c.public(path) && c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("obtain credential: %w", err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("order API call failed",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("order API call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	te := &TransportError{Op: op, StatusCode: resp.StatusCode}

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Code != "" {
		te.Code = env.Error.Code
		te.Message = env.Error.Message
		te.Details = env.Error.Details
		return te
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		te.Message = text
	} else {
		te.Message = http.StatusText(resp.StatusCode)
	}
	return te
}
