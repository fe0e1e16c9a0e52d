package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/teamsbridge/internal/config"
	"github.com/memohai/teamsbridge/internal/notify"
	"github.com/memohai/teamsbridge/internal/server"
)

type fakeSender struct {
	texts []string
	cards []map[string]any
	err   error
}

func (f *fakeSender) SendText(ctx context.Context, webhookURL, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeSender) SendCard(ctx context.Context, webhookURL string, card map[string]any) error {
	f.cards = append(f.cards, card)
	return f.err
}

func newNotifyEnv(sender notify.Sender, apiKey string) *echo.Echo {
	registry := notify.NewRegistry([]config.Channel{
		{Name: "alerts", WebhookURL: "https://hooks.example.com/alerts", Enabled: true, Description: "Alert notifications"},
		{Name: "muted", WebhookURL: "https://hooks.example.com/muted", Enabled: false},
	}, nil)
	service := notify.NewService(sender, registry, notify.NewCardRenderer(), nil)
	h := NewNotifyHandler(service, registry, apiKey, nil)
	return server.New("notifier-test", ":0", nil, h).Echo()
}

func postJSON(e *echo.Echo, path, body, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNotify_Success(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	e := newNotifyEnv(sender, "secret-key")

	rec := postJSON(e, "/api/v1/notify", `{"channel": "alerts", "message": "deploy finished", "priority": "low"}`, "secret-key")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"status":"sent"`)
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "deploy finished")
}

func TestNotify_CardRequest(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	e := newNotifyEnv(sender, "")

	rec := postJSON(e, "/api/v1/notify", `{"channel": "alerts", "message": "CPU high", "title": "Infra", "card_type": "alert", "priority": "critical"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.cards, 1)
	assert.Empty(t, sender.texts)
}

func TestNotify_APIKeyEnforced(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	e := newNotifyEnv(sender, "secret-key")

	body := `{"channel": "alerts", "message": "hi"}`

	rec := postJSON(e, "/api/v1/notify", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(e, "/api/v1/notify", body, "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sender.texts, "unauthenticated requests never trigger delivery")
}

func TestNotify_ValidationErrors(t *testing.T) {
	t.Parallel()

	e := newNotifyEnv(&fakeSender{}, "")

	for _, body := range []string{
		`{"message": "no channel"}`,
		`{"channel": "alerts"}`,
	} {
		rec := postJSON(e, "/api/v1/notify", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestNotify_ChannelNotFound(t *testing.T) {
	t.Parallel()

	e := newNotifyEnv(&fakeSender{}, "")

	for _, channel := range []string{"unknown", "muted"} {
		rec := postJSON(e, "/api/v1/notify", `{"channel": "`+channel+`", "message": "hi"}`, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "channel %q", channel)
		assert.Contains(t, rec.Body.String(), `"success":false`)
	}
}

func TestNotify_DeliveryFailure(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: errors.New("webhook endpoint down")}
	e := newNotifyEnv(sender, "")

	rec := postJSON(e, "/api/v1/notify", `{"channel": "alerts", "message": "hi"}`, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
	assert.Contains(t, rec.Body.String(), "webhook endpoint down")
}

func TestNotifyAll_FansOutToEnabledChannels(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	e := newNotifyEnv(sender, "")

	rec := postJSON(e, "/api/v1/notify/all", `{"message": "broadcast", "priority": "high"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Len(t, sender.texts, 1, "only the enabled channel receives the broadcast")
}

func TestChannels_OmitsWebhookURLs(t *testing.T) {
	t.Parallel()

	e := newNotifyEnv(&fakeSender{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alerts"`)
	assert.Contains(t, rec.Body.String(), `"muted"`)
	assert.NotContains(t, rec.Body.String(), "hooks.example.com", "webhook urls never leave the process")
}

func TestNotifyHealth(t *testing.T) {
	t.Parallel()

	e := newNotifyEnv(&fakeSender{}, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"channels":1`)
}
