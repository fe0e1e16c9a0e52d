package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrChannelNotFound is returned when the target channel is unknown or
// disabled. No delivery is attempted.
var ErrChannelNotFound = errors.New("channel not found or disabled")

// Request carries one notification to dispatch.
type Request struct {
	Channel  string
	Message  string
	Title    string
	CardType CardType
	Priority Priority
	Metadata map[string]any
}

// Service dispatches notifications to configured channels. It owns each
// Notification for the duration of its delivery; callers receive the final
// record with its monotonic status already settled.
type Service struct {
	sender   Sender
	registry *Registry
	cards    *CardRenderer
	logger   *slog.Logger
}

// NewService creates the dispatcher.
func NewService(sender Sender, registry *Registry, cards *CardRenderer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cards == nil {
		cards = NewCardRenderer()
	}
	return &Service{
		sender:   sender,
		registry: registry,
		cards:    cards,
		logger:   log.With(slog.String("component", "notify_service")),
	}
}

// Notify resolves the channel, renders the payload and delivers it. The
// returned Notification is always non-nil except for the channel-not-found
// case, so callers can report the generated id and final status.
func (s *Service) Notify(ctx context.Context, req Request) (*Notification, error) {
	channel, ok := s.registry.Get(req.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChannelNotFound, req.Channel)
	}

	n := NewNotification(req.Channel, req.Message, req.Title, req.CardType, req.Priority, req.Metadata)

	log := s.logger.With(
		slog.String("notification_id", n.ID),
		slog.String("channel", n.Channel),
		slog.String("priority", string(n.Priority)))
	log.Info("sending notification", slog.String("card_type", string(n.CardType)))

	var err error
	if n.CardType != CardNone {
		err = s.sender.SendCard(ctx, channel.WebhookURL, s.cards.Render(n))
	} else {
		err = s.sender.SendText(ctx, channel.WebhookURL, s.cards.RenderText(n))
	}

	if err != nil {
		n.MarkFailed(err.Error())
		log.Error("notification failed", slog.String("error", err.Error()))
		return n, err
	}

	n.MarkSent()
	log.Info("notification sent")
	return n, nil
}

// NotifyAll delivers the same notification to every enabled channel,
// returning one record per channel. Failures do not stop the fan-out.
func (s *Service) NotifyAll(ctx context.Context, req Request) []*Notification {
	channels := s.registry.Enabled()
	notifications := make([]*Notification, 0, len(channels))
	for _, channel := range channels {
		perChannel := req
		perChannel.Channel = channel.Name
		n, err := s.Notify(ctx, perChannel)
		if n == nil {
			n = NewNotification(channel.Name, req.Message, req.Title, req.CardType, req.Priority, req.Metadata)
			n.MarkFailed(err.Error())
		}
		notifications = append(notifications, n)
	}
	return notifications
}
