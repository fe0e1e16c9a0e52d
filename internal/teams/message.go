package teams

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// mentionPattern matches inline mention markup such as "<at>Bot Name</at>".
// It is the fallback when the payload carries markup without a matching
// mention entity.
var mentionPattern = regexp.MustCompile(`<at>[^<]+</at>\s*`)

// User is the sender or recipient of a platform message.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// Conversation carries the conversation context of a message.
// Type is one of "channel", "personal" or "groupChat".
type Conversation struct {
	ID       string `json:"id"`
	Type     string `json:"conversationType,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Mention is one mention entity from the payload: the marker text exactly
// as it appears in the message body, plus the referenced entity.
type Mention struct {
	ID   string
	Name string
	Text string
}

// Entity is the wire form of a payload entity. Only entities with type
// "mention" are meaningful here; everything else is ignored.
type Entity struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Mentioned struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"mentioned"`
}

// Message is an inbound platform message as delivered by an outgoing
// webhook. The raw Text is immutable once parsed; CleanText derives the
// normalized form without mutating it.
type Message struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Text         string       `json:"text"`
	Timestamp    time.Time    `json:"timestamp,omitzero"`
	From         User         `json:"from"`
	Conversation Conversation `json:"conversation"`
	Recipient    *User        `json:"recipient,omitempty"`
	ServiceURL   string       `json:"serviceUrl,omitempty"`
	ChannelID    string       `json:"channelId,omitempty"`
	Entities     []Entity     `json:"entities,omitempty"`
	ReplyToID    string       `json:"replyToId,omitempty"`
}

// Mentions returns the mention entities of the message, in payload order.
func (m *Message) Mentions() []Mention {
	var mentions []Mention
	for _, e := range m.Entities {
		if e.Type != "mention" {
			continue
		}
		mentions = append(mentions, Mention{
			ID:   e.Mentioned.ID,
			Name: e.Mentioned.Name,
			Text: e.Text,
		})
	}
	return mentions
}

// CleanText returns the message text with every mention marker removed and
// surrounding whitespace trimmed. A message that consists solely of mention
// markup normalizes to the empty string; callers must treat that as an
// explicit no-input case.
func (m *Message) CleanText() string {
	clean := m.Text
	for _, mention := range m.Mentions() {
		if mention.Text == "" {
			continue
		}
		clean = strings.ReplaceAll(clean, mention.Text, "")
	}
	// Payloads are not required to list every marker as an entity, so
	// sweep any leftover markup as well.
	clean = mentionPattern.ReplaceAllString(clean, "")
	return strings.TrimSpace(clean)
}

// IsCommand reports whether the normalized text starts a built-in command.
func (m *Message) IsCommand() bool {
	return strings.HasPrefix(m.CleanText(), "/")
}

// Command splits the normalized text into a lower-cased command name
// (without the leading slash) and the remaining argument string. The name
// is the first whitespace-delimited token. The third return is false when
// the message is not a command.
func (m *Message) Command() (name, args string, ok bool) {
	clean := m.CleanText()
	if !strings.HasPrefix(clean, "/") {
		return "", "", false
	}
	token := clean
	if i := strings.IndexFunc(clean, unicode.IsSpace); i >= 0 {
		token = clean[:i]
		args = strings.TrimSpace(clean[i:])
	}
	name = strings.ToLower(strings.TrimPrefix(token, "/"))
	return name, args, true
}

// UserIdentifier returns a stable identifier for the sender, preferring
// the AAD object id over the transient platform id.
func (m *Message) UserIdentifier() string {
	if m.From.AADObjectID != "" {
		return m.From.AADObjectID
	}
	return m.From.ID
}

// SessionKey identifies the conversation thread this message belongs to.
// Thread replies get their own key so each thread keeps its own session.
func (m *Message) SessionKey() string {
	key := m.UserIdentifier() + ":" + m.Conversation.ID
	if m.ReplyToID != "" {
		key += ":" + m.ReplyToID
	}
	return key
}

// IsThreadReply reports whether the message replies to another message.
func (m *Message) IsThreadReply() bool {
	return m.ReplyToID != ""
}

// Attachment is one rich attachment in a response envelope.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

// Response is the envelope returned to the platform from the webhook
// endpoint: plain text, or an adaptive card attachment when Card is set.
type Response struct {
	Text string
	Card map[string]any
}

// MarshalPayload converts the response into the platform envelope.
func (r Response) MarshalPayload() map[string]any {
	if r.Card != nil {
		return map[string]any{
			"type": "message",
			"attachments": []Attachment{
				{
					ContentType: "application/vnd.microsoft.card.adaptive",
					Content:     r.Card,
				},
			},
		}
	}
	return map[string]any{
		"type": "message",
		"text": r.Text,
	}
}
