package notify

import (
	"fmt"
	"sort"
	"time"
)

const (
	cardSchema  = "http://adaptivecards.io/schemas/adaptive-card.json"
	cardVersion = "1.4"
)

// priorityStyles maps priorities to the card container accent. Unknown
// priorities render with the lowest-severity accent so a malformed
// notification still reaches the channel visibly instead of erroring.
var priorityStyles = map[Priority]string{
	PriorityLow:      "good",
	PriorityMedium:   "accent",
	PriorityHigh:     "warning",
	PriorityCritical: "attention",
}

var priorityIcons = map[Priority]string{
	PriorityLow:      "ℹ️",
	PriorityMedium:   "📢",
	PriorityHigh:     "⚠️",
	PriorityCritical: "🚨",
}

func styleFor(p Priority) string {
	if s, ok := priorityStyles[p]; ok {
		return s
	}
	return priorityStyles[PriorityLow]
}

func iconFor(p Priority) string {
	if s, ok := priorityIcons[p]; ok {
		return s
	}
	return priorityIcons[PriorityLow]
}

// CardRenderer builds Adaptive Card payloads for the platform. Rendering
// never fails: unknown card types fall back to the info layout and unknown
// priorities to the lowest-severity accent.
type CardRenderer struct {
	now func() time.Time
}

// NewCardRenderer creates a CardRenderer.
func NewCardRenderer() *CardRenderer {
	return &CardRenderer{now: time.Now}
}

// Render builds the card payload for a notification.
func (r *CardRenderer) Render(n *Notification) map[string]any {
	title := n.Title
	if title == "" {
		title = "Notification"
	}
	switch n.CardType {
	case CardAlert:
		return r.renderAlert(title, n)
	case CardReport:
		return r.renderReport(title, n)
	default:
		return r.renderInfo(title, n)
	}
}

// RenderText formats a notification as plain text with a priority icon.
func (r *CardRenderer) RenderText(n *Notification) string {
	icon := iconFor(n.Priority)
	if n.Title != "" {
		return fmt.Sprintf("%s **%s**\n\n%s", icon, n.Title, n.Message)
	}
	return fmt.Sprintf("%s %s", icon, n.Message)
}

func (r *CardRenderer) renderAlert(title string, n *Notification) map[string]any {
	body := []map[string]any{
		{
			"type":  "Container",
			"style": styleFor(n.Priority),
			"items": []map[string]any{
				{
					"type":   "TextBlock",
					"text":   iconFor(n.Priority) + " " + title,
					"weight": "Bolder",
					"size":   "Large",
					"wrap":   true,
				},
			},
		},
		textBlock(n.Message),
	}

	if source, ok := n.Metadata["source"].(string); ok && source != "" {
		body = append(body, map[string]any{
			"type":     "TextBlock",
			"text":     "Source: " + source,
			"size":     "Small",
			"isSubtle": true,
		})
	}

	card := r.envelope(body)
	if url, ok := n.Metadata["action_url"].(string); ok && url != "" {
		actionTitle, _ := n.Metadata["action_title"].(string)
		if actionTitle == "" {
			actionTitle = "View details"
		}
		card["actions"] = []map[string]any{
			{
				"type":  "Action.OpenUrl",
				"title": actionTitle,
				"url":   url,
			},
		}
	}
	return card
}

func (r *CardRenderer) renderInfo(title string, n *Notification) map[string]any {
	body := []map[string]any{
		{
			"type":   "TextBlock",
			"text":   iconFor(n.Priority) + " " + title,
			"weight": "Bolder",
			"size":   "Medium",
			"wrap":   true,
		},
		textBlock(n.Message),
	}

	if footer, ok := n.Metadata["footer"].(string); ok && footer != "" {
		body = append(body, map[string]any{
			"type":     "TextBlock",
			"text":     footer,
			"size":     "Small",
			"isSubtle": true,
			"wrap":     true,
		})
	}
	return r.envelope(body)
}

func (r *CardRenderer) renderReport(title string, n *Notification) map[string]any {
	body := []map[string]any{
		{
			"type":   "TextBlock",
			"text":   iconFor(n.Priority) + " " + title,
			"weight": "Bolder",
			"size":   "Medium",
			"wrap":   true,
		},
		textBlock(n.Message),
	}

	if data, ok := n.Metadata["data"].(map[string]any); ok && len(data) > 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		facts := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			facts = append(facts, map[string]any{
				"title": k,
				"value": fmt.Sprint(data[k]),
			})
		}
		body = append(body, map[string]any{
			"type":  "FactSet",
			"facts": facts,
		})
	}

	body = append(body, map[string]any{
		"type":     "TextBlock",
		"text":     "Generated: " + r.now().Format("2006-01-02 15:04:05"),
		"size":     "Small",
		"isSubtle": true,
	})
	return r.envelope(body)
}

func (r *CardRenderer) envelope(body []map[string]any) map[string]any {
	return map[string]any{
		"$schema": cardSchema,
		"type":    "AdaptiveCard",
		"version": cardVersion,
		"body":    body,
	}
}

func textBlock(text string) map[string]any {
	return map[string]any{
		"type": "TextBlock",
		"text": text,
		"wrap": true,
	}
}
