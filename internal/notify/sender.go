package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Sender delivers rendered payloads to a channel endpoint.
type Sender interface {
	// SendText posts a plain text message to the webhook URL.
	SendText(ctx context.Context, webhookURL, text string) error
	// SendCard posts an adaptive card to the webhook URL.
	SendCard(ctx context.Context, webhookURL string, card map[string]any) error
}

// RejectionError is a non-retryable delivery failure: the endpoint was
// reached and explicitly refused the payload.
type RejectionError struct {
	StatusCode int
	Body       string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("channel rejected delivery: HTTP %d: %s", e.StatusCode, e.Body)
}

// DeliveryError is a transient failure that survived the whole retry
// budget.
type DeliveryError struct {
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// WebhookSender posts messages to channel webhook endpoints with
// sequential retries and exponential backoff. Attempts are independent;
// the first success wins and nothing retries after a 4xx rejection.
type WebhookSender struct {
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewWebhookSender creates a WebhookSender. maxAttempts and baseDelay fall
// back to 3 attempts and a one second base delay when non-positive.
func NewWebhookSender(timeout time.Duration, maxAttempts int, baseDelay time.Duration, log *slog.Logger) *WebhookSender {
	if log == nil {
		log = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSender{
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      log.With(slog.String("component", "webhook_sender")),
		sleep:       sleepCtx,
	}
}

func (s *WebhookSender) SendText(ctx context.Context, webhookURL, text string) error {
	return s.postWithRetry(ctx, webhookURL, map[string]any{"text": text})
}

func (s *WebhookSender) SendCard(ctx context.Context, webhookURL string, card map[string]any) error {
	payload := map[string]any{
		"type": "message",
		"attachments": []map[string]any{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content":     card,
			},
		},
	}
	return s.postWithRetry(ctx, webhookURL, payload)
}

func (s *WebhookSender) postWithRetry(ctx context.Context, webhookURL string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	delay := s.baseDelay
	var wait time.Duration
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, wait); err != nil {
				return &DeliveryError{Attempts: attempt - 1, Err: err}
			}
		}

		retryable, retryAfter, err := s.post(ctx, webhookURL, body)
		if err == nil {
			s.logger.Info("delivery succeeded", slog.Int("attempt", attempt))
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
		s.logger.Warn("delivery attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		// A rate-limited endpoint dictates the next wait; the exponential
		// schedule only advances when it is actually used.
		if retryAfter > 0 {
			wait = retryAfter
		} else {
			wait = delay
			delay *= 2
		}
	}
	return &DeliveryError{Attempts: s.maxAttempts, Err: lastErr}
}

// post performs one delivery attempt. The boolean reports whether the
// failure is retryable; retryAfter carries the wait a rate-limited
// endpoint requested, zero otherwise.
func (s *WebhookSender) post(ctx context.Context, webhookURL string, body []byte) (retryable bool, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return false, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return true, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, 0, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode == http.StatusTooManyRequests {
		// Rate limited. Retryable, and the endpoint may tell us when.
		after := parseRetryAfter(resp.Header.Get("Retry-After"))
		return true, after, fmt.Errorf("rate limited: HTTP %d", resp.StatusCode)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return false, 0, &RejectionError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return true, 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(raw))
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
