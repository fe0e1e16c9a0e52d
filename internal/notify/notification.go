package notify

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders notifications by urgency. The zero value is treated as
// PriorityMedium at the API boundary.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps a wire value onto the closed priority set. Unknown or
// empty values fall back to medium, the historical default.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// CardType selects the rendered card layout. Empty means plain text.
type CardType string

const (
	CardNone   CardType = ""
	CardAlert  CardType = "alert"
	CardInfo   CardType = "info"
	CardReport CardType = "report"
)

// ParseCardType maps a wire value onto the closed card-type set. Unknown
// values degrade to the info layout so a malformed notification still
// reaches the channel in a visible form.
func ParseCardType(s string) CardType {
	switch CardType(s) {
	case CardNone, CardAlert, CardInfo, CardReport:
		return CardType(s)
	default:
		return CardInfo
	}
}

// Status is the delivery state of a notification. Transitions are
// monotonic: pending → sent or pending → failed, never back.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is one unit of outbound work. It is owned by a single
// delivery for its whole lifetime and never shared between concurrent
// deliveries.
type Notification struct {
	ID        string         `json:"id"`
	Channel   string         `json:"channel"`
	Message   string         `json:"message"`
	Title     string         `json:"title,omitempty"`
	CardType  CardType       `json:"card_type,omitempty"`
	Priority  Priority       `json:"priority"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewNotification creates a pending notification with a generated id.
func NewNotification(channel, message, title string, cardType CardType, priority Priority, metadata map[string]any) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Channel:   channel,
		Message:   message,
		Title:     title,
		CardType:  cardType,
		Priority:  priority,
		Metadata:  metadata,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// MarkSent transitions the notification to sent and records the delivery
// time. A notification that already left pending is not touched.
func (n *Notification) MarkSent() {
	if n.Status != StatusPending {
		return
	}
	now := time.Now()
	n.Status = StatusSent
	n.SentAt = &now
}

// MarkFailed transitions the notification to failed with the final error.
// A notification that already left pending is not touched.
func (n *Notification) MarkFailed(errMsg string) {
	if n.Status != StatusPending {
		return
	}
	n.Status = StatusFailed
	n.Error = errMsg
}
