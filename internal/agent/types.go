package agent

// Message is one conversation-history entry forwarded to the agent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestContext identifies where a query came from. The agent uses it for
// tracking only; none of the fields change the answer semantics.
type RequestContext struct {
	Platform       string `json:"platform,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
}

// ChatRequest is the payload for the agent chat endpoint.
type ChatRequest struct {
	Message   string          `json:"message"`
	SessionID string          `json:"session_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Context   *RequestContext `json:"context,omitempty"`
	History   []Message       `json:"history,omitempty"`
}

// ChatResponse is the agent's answer. Message is always non-empty on a
// successful exchange; Confidence, when present, is clamped to [0, 1]
// during decoding.
type ChatResponse struct {
	SessionID  string   `json:"session_id"`
	Message    string   `json:"message"`
	Intent     string   `json:"intent,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	DurationMs int64    `json:"duration_ms,omitempty"`
}

// clampConfidence normalizes out-of-range confidence values in place.
func (r *ChatResponse) clampConfidence() {
	if r.Confidence == nil {
		return
	}
	switch {
	case *r.Confidence < 0:
		*r.Confidence = 0
	case *r.Confidence > 1:
		*r.Confidence = 1
	}
}

// HealthStatus is the agent health endpoint response.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
