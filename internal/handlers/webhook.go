package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/teamsbridge/internal/agent"
	"github.com/memohai/teamsbridge/internal/commands"
	"github.com/memohai/teamsbridge/internal/session"
	"github.com/memohai/teamsbridge/internal/teams"
)

// maxWebhookBody bounds inbound payload size. Platform messages are small;
// anything beyond a megabyte is not a chat message.
const maxWebhookBody = 1 << 20

// Canned replies for the failure modes the platform user can hit. The
// webhook always answers 200 with chat-visible text; HTTP errors would
// surface as a silent bot.
const (
	timeoutReply = "The request is taking longer than expected. Teams has a 5-second limit for responses. Please try a simpler question."
	errorReply   = "I'm having trouble connecting to my knowledge base. Please try again in a moment."
)

// AgentClient is the slice of the agent client the webhook handler needs.
type AgentClient interface {
	Chat(ctx context.Context, req agent.ChatRequest) (agent.ChatResponse, error)
	Health(ctx context.Context) (agent.HealthStatus, error)
}

// WebhookHandler serves the platform-facing receiver: the outgoing webhook
// endpoint, its health probe and a development-only test endpoint.
type WebhookHandler struct {
	verifier    *teams.Verifier
	router      *commands.Router
	agent       AgentClient
	sessions    session.Store
	timeout     time.Duration
	environment string
	logger      *slog.Logger
}

// NewWebhookHandler creates the receiver handler. A nil verifier disables
// signature checking; timeout is the per-request agent budget and must sit
// below the platform's 5 second response cutoff.
func NewWebhookHandler(verifier *teams.Verifier, router *commands.Router, agentClient AgentClient, sessions session.Store, timeout time.Duration, environment string, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 4500 * time.Millisecond
	}
	return &WebhookHandler{
		verifier:    verifier,
		router:      router,
		agent:       agentClient,
		sessions:    sessions,
		timeout:     timeout,
		environment: environment,
		logger:      log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.HandleWebhook)
	e.GET("/health", h.Health)
	if h.environment != "production" {
		e.POST("/api/v1/test-message", h.TestMessage)
	}
}

// HandleWebhook receives an outgoing-webhook message from the platform.
// Verification runs over the exact body bytes before any parsing; once a
// request is authenticated, every further failure resolves to a 200 with
// explanatory chat text.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}

	if h.verifier != nil {
		if err := h.verifier.Verify(c.Request().Header.Get(echo.HeaderAuthorization), body); err != nil {
			h.logger.Warn("webhook rejected", slog.String("error", err.Error()))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
	}

	var msg teams.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Warn("unparseable webhook payload", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message payload")
	}

	h.logger.Info("message received",
		slog.String("conversation_type", msg.Conversation.Type),
		slog.String("user", msg.From.Name),
		slog.Bool("thread_reply", msg.IsThreadReply()))

	if resp, handled := h.router.Route(c.Request().Context(), &msg); handled {
		return c.JSON(http.StatusOK, resp.MarshalPayload())
	}

	resp := h.handleQuery(c.Request().Context(), &msg)
	return c.JSON(http.StatusOK, resp.MarshalPayload())
}

// handleQuery forwards free text to the agent and folds every failure into
// a chat-visible reply.
func (h *WebhookHandler) handleQuery(ctx context.Context, msg *teams.Message) teams.Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	query := msg.CleanText()
	key := msg.SessionKey()

	req := agent.ChatRequest{
		Message: query,
		UserID:  msg.UserIdentifier(),
		Context: &agent.RequestContext{
			Platform:       "teams",
			ConversationID: msg.Conversation.ID,
			TenantID:       msg.Conversation.TenantID,
		},
	}
	if h.sessions != nil {
		if sess, ok := h.sessions.Get(key); ok {
			req.SessionID = sess.SessionID
			req.History = historyFrom(sess)
		}
	}

	start := time.Now()
	resp, err := h.agent.Chat(ctx, req)
	if err != nil {
		return h.fallback(err)
	}

	h.logger.Info("query answered",
		slog.String("intent", resp.Intent),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	if h.sessions != nil {
		if resp.SessionID != "" {
			h.sessions.Set(key, resp.SessionID)
		}
		h.sessions.Append(key, "user", query)
		h.sessions.Append(key, "assistant", resp.Message)
	}
	return teams.Response{Text: resp.Message}
}

func (h *WebhookHandler) fallback(err error) teams.Response {
	switch {
	case errors.Is(err, agent.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("agent call timed out")
		return teams.Response{Text: timeoutReply}
	default:
		h.logger.Error("agent call failed", slog.String("error", err.Error()))
		return teams.Response{Text: errorReply}
	}
}

func historyFrom(sess *session.Session) []agent.Message {
	if len(sess.Messages) == 0 {
		return nil
	}
	history := make([]agent.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		history = append(history, agent.Message{Role: m.Role, Content: m.Content})
	}
	return history
}

// Health reports receiver liveness plus the agent's reachability. The
// receiver itself is healthy even when the agent is down; the agent state
// is informational.
func (h *WebhookHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	agentStatus := "unreachable"
	if health, err := h.agent.Health(ctx); err == nil {
		agentStatus = health.Status
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "healthy",
		"agent":  agentStatus,
	})
}

// TestMessage simulates an inbound platform message without signature
// verification. Registered outside production only.
func (h *WebhookHandler) TestMessage(c echo.Context) error {
	var req struct {
		Text     string `json:"text"`
		UserName string `json:"user_name"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.UserName == "" {
		req.UserName = "Test User"
	}

	msg := &teams.Message{
		Type: "message",
		Text: req.Text,
		From: teams.User{ID: "test-user", Name: req.UserName},
		Conversation: teams.Conversation{
			ID:   "test-conversation",
			Type: "personal",
		},
	}

	if resp, handled := h.router.Route(c.Request().Context(), msg); handled {
		return c.JSON(http.StatusOK, resp.MarshalPayload())
	}
	resp := h.handleQuery(c.Request().Context(), msg)
	return c.JSON(http.StatusOK, resp.MarshalPayload())
}
