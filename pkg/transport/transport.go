// Package transport is the HTTP layer under the tracking client: it attaches
// credentials, signs requests when the auth mode demands it, retries
// transient failures, and maps responses onto a small error taxonomy
// (*APIError for server rejections, *NetworkError for exchange failures,
// credential failures passed through untouched).
package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/watcher-go/internal/log"
)

// defaultTimeout bounds a single request attempt.
const defaultTimeout = 10 * time.Second

// AuthSource supplies credentials for outbound requests. Bearer-style
// sources return static headers; signing sources report RequiresSigning and
// are handed each fully-formed request to sign.
type AuthSource interface {
	Headers(ctx context.Context) (map[string]string, error)
	RequiresSigning() bool
	SignRequest(ctx context.Context, req *http.Request, payloadHash string) error
}

// RateLimiter paces outbound requests. Wait blocks until a request may
// proceed or the context is done.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API base URL, e.g. "https://api.example.com". Required.
	BaseURL string

	// Auth supplies credentials; nil sends unauthenticated requests.
	Auth AuthSource

	// Timeout bounds a single attempt (default: 10s).
	Timeout time.Duration

	// Retry configures the retry loop; nil uses DefaultRetryConfig.
	Retry *RetryConfig

	// UserAgent is sent with every request.
	UserAgent string

	// HTTPClient overrides the underlying client, for tests.
	HTTPClient *http.Client

	// Limiter, when set, paces requests before each attempt.
	Limiter RateLimiter

	// Logger receives request/response debug output.
	Logger *slog.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL %q must use http or https", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Timeout)
	}
	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Decode unmarshals the response body into v. An empty body leaves v
// untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Client issues authenticated, retried requests against the tracking API.
type Client struct {
	baseURL    string
	auth       AuthSource
	timeout    time.Duration
	retry      *RetryConfig
	userAgent  string
	httpClient *http.Client
	limiter    RateLimiter
	logger     *slog.Logger
}

// NewClient validates config and builds a Client.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	retry := config.Retry
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		auth:       config.Auth,
		timeout:    timeout,
		retry:      retry,
		userAgent:  config.UserAgent,
		httpClient: httpClient,
		limiter:    config.Limiter,
		logger:     logger,
	}, nil
}

// Call issues one API call with retries. body is the raw request payload;
// extraHeaders are applied after the defaults and may override them. The
// returned response always has a 2xx status. The same correlation ID is sent
// on every attempt of a call so retries can be tied together server-side.
func (c *Client) Call(ctx context.Context, method, path string, body []byte, extraHeaders map[string]string) (*Response, error) {
	correlationID := uuid.NewString()
	op := method + " " + path

	return executeWithRetry(ctx, c.retry, func(ctx context.Context, attempt int) (*Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, classifyNetworkError(op, err)
			}
		}
		return c.do(ctx, method, path, body, extraHeaders, correlationID, attempt)
	})
}

// do executes a single attempt.
func (c *Client) do(ctx context.Context, method, path string, body []byte, extraHeaders map[string]string, correlationID string, attempt int) (*Response, error) {
	op := method + " " + path
	logReq := &log.APIRequest{Method: method, Path: path, CorrelationID: correlationID, Attempt: attempt}
	log.LogAPIRequest(c.logger, logReq)

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, classifyNetworkError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", correlationID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	// Credential failures pass through untouched: the caller must be able to
	// tell "could not authenticate" from "the exchange failed".
	if err := c.applyAuth(attemptCtx, req, body); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		netErr := classifyNetworkError(op, err)
		log.LogAPIResponse(c.logger, logReq, &log.APIResponse{Error: netErr.Message, DurationMs: durationMs})
		return nil, netErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		netErr := classifyNetworkError(op, err)
		log.LogAPIResponse(c.logger, logReq, &log.APIResponse{StatusCode: resp.StatusCode, Error: netErr.Message, DurationMs: durationMs})
		return nil, netErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, respBody, resp.Header)
		log.LogAPIResponse(c.logger, logReq, &log.APIResponse{StatusCode: resp.StatusCode, Error: apiErr.Message, DurationMs: durationMs})
		return nil, apiErr
	}

	log.LogAPIResponse(c.logger, logReq, &log.APIResponse{StatusCode: resp.StatusCode, DurationMs: durationMs})
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// applyAuth attaches credentials: static headers for token sources, a SigV4
// signature over the exact payload for signing sources. The signature covers
// the body hash, so it is computed here where the final body bytes are known.
func (c *Client) applyAuth(ctx context.Context, req *http.Request, body []byte) error {
	if c.auth == nil {
		return nil
	}

	if c.auth.RequiresSigning() {
		sum := sha256.Sum256(body)
		payloadHash := hex.EncodeToString(sum[:])
		req.Header.Set("X-Amz-Content-Sha256", payloadHash)
		return c.auth.SignRequest(ctx, req, payloadHash)
	}

	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}
