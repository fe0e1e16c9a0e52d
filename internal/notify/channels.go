package notify

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/memohai/teamsbridge/internal/config"
)

// Channel is one named outbound delivery target.
type Channel struct {
	Name        string
	WebhookURL  string
	Enabled     bool
	Description string
}

// Registry resolves channels by name. It is populated once at startup from
// config and read-only afterwards, so lookups need no locking.
type Registry struct {
	channels map[string]Channel
}

// NewRegistry builds a Registry from the configured channels. Entries with
// an empty name or webhook URL are skipped with a warning rather than
// failing startup.
func NewRegistry(channels []config.Channel, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{channels: make(map[string]Channel, len(channels))}
	for _, c := range channels {
		name := strings.TrimSpace(c.Name)
		if name == "" || strings.TrimSpace(c.WebhookURL) == "" {
			log.Warn("skipping misconfigured channel",
				slog.String("name", c.Name))
			continue
		}
		if !strings.HasPrefix(c.WebhookURL, "https://") && !strings.HasPrefix(c.WebhookURL, "http://") {
			log.Warn("channel webhook url has unexpected scheme",
				slog.String("name", name))
		}
		r.channels[name] = Channel{
			Name:        name,
			WebhookURL:  c.WebhookURL,
			Enabled:     c.Enabled,
			Description: c.Description,
		}
		log.Info("channel registered",
			slog.String("name", name),
			slog.Bool("enabled", c.Enabled))
	}
	return r
}

// Get returns the channel by name. The second return is false when the
// channel is unknown or disabled.
func (r *Registry) Get(name string) (Channel, bool) {
	c, ok := r.channels[name]
	if !ok || !c.Enabled {
		return Channel{}, false
	}
	return c, true
}

// All returns every registered channel sorted by name.
func (r *Registry) All() []Channel {
	out := make([]Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enabled returns every enabled channel sorted by name.
func (r *Registry) Enabled() []Channel {
	out := make([]Channel, 0, len(r.channels))
	for _, c := range r.channels {
		if c.Enabled {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
