package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/teamsbridge/internal/notify"
)

// NotifyRequest is the wire form of a notification request.
type NotifyRequest struct {
	Channel  string         `json:"channel" validate:"required"`
	Message  string         `json:"message" validate:"required"`
	Title    string         `json:"title"`
	CardType string         `json:"card_type"`
	Priority string         `json:"priority"`
	Metadata map[string]any `json:"metadata"`
}

// BroadcastRequest is NotifyRequest without a channel; delivery fans out to
// every enabled channel.
type BroadcastRequest struct {
	Message  string         `json:"message" validate:"required"`
	Title    string         `json:"title"`
	CardType string         `json:"card_type"`
	Priority string         `json:"priority"`
	Metadata map[string]any `json:"metadata"`
}

// NotifyResponse reports the outcome of one delivery.
type NotifyResponse struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notification_id,omitempty"`
	Channel        string `json:"channel,omitempty"`
	Status         string `json:"status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ChannelInfo is the public shape of a configured channel. The webhook URL
// is deliberately omitted.
type ChannelInfo struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// NotifyHandler serves the outbound notification API.
type NotifyHandler struct {
	service  *notify.Service
	registry *notify.Registry
	apiKey   string
	logger   *slog.Logger
}

// NewNotifyHandler creates the notifier handler. An empty apiKey disables
// authentication, intended for local development only.
func NewNotifyHandler(service *notify.Service, registry *notify.Registry, apiKey string, log *slog.Logger) *NotifyHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NotifyHandler{
		service:  service,
		registry: registry,
		apiKey:   apiKey,
		logger:   log.With(slog.String("handler", "notify")),
	}
}

func (h *NotifyHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	group := e.Group("/api/v1", h.requireAPIKey)
	group.POST("/notify", h.Notify)
	group.POST("/notify/all", h.NotifyAll)
	group.GET("/channels", h.Channels)
}

// requireAPIKey guards the API group with the shared X-API-Key header.
func (h *NotifyHandler) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.apiKey == "" {
			return next(c)
		}
		provided := c.Request().Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.apiKey)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
		}
		return next(c)
	}
}

func (h *NotifyHandler) Notify(c echo.Context) error {
	var req NotifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	n, err := h.service.Notify(c.Request().Context(), notify.Request{
		Channel:  req.Channel,
		Message:  req.Message,
		Title:    req.Title,
		CardType: notify.ParseCardType(req.CardType),
		Priority: notify.ParsePriority(req.Priority),
		Metadata: req.Metadata,
	})
	if err != nil {
		if errors.Is(err, notify.ErrChannelNotFound) {
			return c.JSON(http.StatusNotFound, NotifyResponse{
				Success: false,
				Channel: req.Channel,
				Error:   err.Error(),
			})
		}
		return c.JSON(http.StatusBadGateway, notifyResponseFrom(n, false))
	}
	return c.JSON(http.StatusOK, notifyResponseFrom(n, true))
}

func (h *NotifyHandler) NotifyAll(c echo.Context) error {
	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	notifications := h.service.NotifyAll(c.Request().Context(), notify.Request{
		Message:  req.Message,
		Title:    req.Title,
		CardType: notify.ParseCardType(req.CardType),
		Priority: notify.ParsePriority(req.Priority),
		Metadata: req.Metadata,
	})

	results := make([]NotifyResponse, 0, len(notifications))
	allSent := len(notifications) > 0
	for _, n := range notifications {
		sent := n.Status == notify.StatusSent
		allSent = allSent && sent
		results = append(results, notifyResponseFrom(n, sent))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": allSent,
		"results": results,
	})
}

func (h *NotifyHandler) Channels(c echo.Context) error {
	channels := h.registry.All()
	infos := make([]ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		infos = append(infos, ChannelInfo{
			Name:        ch.Name,
			Enabled:     ch.Enabled,
			Description: ch.Description,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"channels": infos,
	})
}

func (h *NotifyHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"channels": len(h.registry.Enabled()),
	})
}

func notifyResponseFrom(n *notify.Notification, success bool) NotifyResponse {
	if n == nil {
		return NotifyResponse{Success: success}
	}
	return NotifyResponse{
		Success:        success,
		NotificationID: n.ID,
		Channel:        n.Channel,
		Status:         string(n.Status),
		Error:          n.Error,
	}
}
