package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/teamsbridge/internal/agent"
	"github.com/memohai/teamsbridge/internal/session"
	"github.com/memohai/teamsbridge/internal/teams"
)

// Command names form a closed set; anything else degrades to the
// free-text query path.
const (
	CmdHelp   = "help"
	CmdClear  = "clear"
	CmdStatus = "status"
)

// commandHelp lists the built-in commands in display order.
var commandHelp = []struct {
	Name        string
	Description string
}{
	{Name: CmdHelp, Description: "Show available commands"},
	{Name: CmdClear, Description: "Clear conversation history (start fresh)"},
	{Name: CmdStatus, Description: "Check agent connection status"},
}

// HealthProber reports the agent's availability for the status command.
type HealthProber interface {
	Health(ctx context.Context) (agent.HealthStatus, error)
}

// Router recognizes built-in commands in normalized messages and executes
// them locally. It keeps no per-call state and is safe for concurrent use.
type Router struct {
	sessions session.Store
	prober   HealthProber
	logger   *slog.Logger
}

// NewRouter creates a Router. Both dependencies may be nil: without a
// session store /clear is a no-op acknowledgement, without a prober
// /status reports the agent as unknown.
func NewRouter(sessions session.Store, prober HealthProber, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		sessions: sessions,
		prober:   prober,
		logger:   log.With(slog.String("component", "command_router")),
	}
}

// Route inspects the normalized message and executes a built-in command
// when one is recognized. The boolean reports whether the message was
// consumed; when false the caller forwards the full text, including any
// unrecognized command marker, to the free-text path.
func (r *Router) Route(ctx context.Context, msg *teams.Message) (teams.Response, bool) {
	clean := msg.CleanText()
	if clean == "" {
		// Mention-only message: explicit no-input case, never the agent.
		return teams.Response{Text: "I didn't catch that. Please mention me and ask a question."}, true
	}

	name, _, ok := msg.Command()
	if !ok {
		return teams.Response{}, false
	}

	switch name {
	case CmdHelp:
		return r.help(), true
	case CmdClear:
		return r.clear(msg), true
	case CmdStatus:
		return r.status(ctx), true
	default:
		// Commands are a convenience layer, not a grammar; let the
		// agent see the original text.
		r.logger.Debug("unrecognized command, deferring to query path",
			slog.String("command", name))
		return teams.Response{}, false
	}
}

func (r *Router) help() teams.Response {
	var b strings.Builder
	b.WriteString("**Available Commands:**\n")
	for _, cmd := range commandHelp {
		fmt.Fprintf(&b, "- `/%s` - %s\n", cmd.Name, cmd.Description)
	}
	b.WriteString("\n**Or just ask me a question!**")
	return teams.Response{Text: b.String()}
}

func (r *Router) clear(msg *teams.Message) teams.Response {
	if r.sessions != nil {
		if r.sessions.Delete(msg.SessionKey()) {
			r.logger.Info("session cleared",
				slog.String("session_key", msg.SessionKey()))
		}
	}
	return teams.Response{Text: "Conversation cleared. Starting fresh!"}
}

func (r *Router) status(ctx context.Context) teams.Response {
	if r.prober == nil {
		return teams.Response{Text: "**Agent Status:** unknown"}
	}
	health, err := r.prober.Health(ctx)
	if err != nil {
		return teams.Response{Text: fmt.Sprintf("**Agent Status:** Unavailable\n**Error:** %v", err)}
	}
	version := health.Version
	if version == "" {
		version = "unknown"
	}
	return teams.Response{Text: fmt.Sprintf("**Agent Status:** %s\n**Version:** %s", health.Status, version)}
}
