package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrDeadlineExceeded is returned when the remaining deadline budget is
// too small to attempt (or finish) a call to the agent. The caller still
// owns enough of the platform response window to serialize a fallback.
var ErrDeadlineExceeded = errors.New("agent: deadline budget exhausted")

// ConnectionError wraps a transport-level failure: the agent was never
// reached. These are the only failures the client retries.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "agent unreachable: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// APIError is a semantic rejection: the agent was reachable and explicitly
// declined the request. Never retried.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("agent returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("agent returned %d", e.StatusCode)
}

// Client calls the agent service over HTTP within a hard deadline budget.
// The platform enforces its own response cutoff, so every call must
// resolve before the context deadline; the transport aborts at the
// deadline instead of relying on a blanket client timeout.
type Client struct {
	baseURL      string
	apiKey       string
	timeout      time.Duration
	maxRetries   int
	safetyMargin time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many extra attempts follow a transport failure.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithSafetyMargin sets the budget reserved for response serialization and
// egress after the agent call returns.
func WithSafetyMargin(d time.Duration) Option {
	return func(c *Client) { c.safetyMargin = d }
}

// NewClient creates a Client for the agent at baseURL. The timeout is the
// default per-call budget applied when the caller's context has none; it
// must sit below the platform's hard response limit.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 4500 * time.Millisecond
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		timeout:      timeout,
		maxRetries:   1,
		safetyMargin: 500 * time.Millisecond,
		httpClient:   &http.Client{},
		logger:       log.With(slog.String("component", "agent_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends a query and returns the agent's answer. Transport failures
// are retried while the deadline budget allows; semantic rejections are
// returned immediately. Chat never blocks past the context deadline.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if time.Until(deadline) < c.safetyMargin {
			// Not enough budget for another round trip plus the
			// response serialization the margin reserves.
			if lastErr != nil {
				c.logger.Warn("retry abandoned, budget exhausted", slog.Int("attempt", attempt))
			}
			return ChatResponse{}, ErrDeadlineExceeded
		}

		resp, err := c.doChat(ctx, req)
		if err == nil {
			return resp, nil
		}

		var connErr *ConnectionError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return ChatResponse{}, ErrDeadlineExceeded
		case errors.As(err, &connErr):
			lastErr = err
			c.logger.Warn("agent transport failure",
				slog.Int("attempt", attempt+1),
				slog.String("error", connErr.Err.Error()))
		default:
			// Semantic rejection or malformed response; retrying
			// would not change a deliberate answer.
			return ChatResponse{}, err
		}
	}
	return ChatResponse{}, lastErr
}

func (c *Client) doChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ChatResponse{}, ctx.Err()
		}
		return ChatResponse{}, &ConnectionError{Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return ChatResponse{}, apiErrorFromResponse(httpResp)
	}

	var resp ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return ChatResponse{}, fmt.Errorf("decode chat response: %w", err)
	}
	resp.clampConfidence()
	return resp, nil
}

// Health probes the agent health endpoint for readiness reporting.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("build health request: %w", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return HealthStatus{}, &ConnectionError{Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return HealthStatus{}, apiErrorFromResponse(httpResp)
	}

	var status HealthStatus
	if err := json.NewDecoder(httpResp.Body).Decode(&status); err != nil {
		return HealthStatus{}, fmt.Errorf("decode health response: %w", err)
	}
	return status, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func apiErrorFromResponse(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != nil {
		apiErr.Detail = fmt.Sprint(payload.Detail)
	}
	return apiErr
}
