package session

import (
	"sync"
	"time"
)

// Message is one history entry kept for a session.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session tracks the agent-side session id and the recent conversation
// history for one user+conversation pair.
type Session struct {
	SessionID    string
	Messages     []Message
	CreatedAt    time.Time
	LastActivity time.Time
}

// MessageCount returns the number of history entries.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// Store keeps conversation sessions keyed by the thread session key.
type Store interface {
	// Get returns the session for key, or false when absent or expired.
	Get(key string) (*Session, bool)
	// Set records the agent session id for key, creating the session.
	Set(key, sessionID string)
	// Append adds a history entry, evicting the oldest entries beyond
	// the configured cap.
	Append(key, role, content string)
	// Delete removes the session for key, reporting whether it existed.
	Delete(key string) bool
}

// MemoryStore is the in-process Store. Entries expire lazily on access
// after the TTL; there is no background sweeper.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	ttl         time.Duration
	maxMessages int
	now         func() time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl means entries
// never expire; a non-positive maxMessages means unbounded history.
func NewMemoryStore(ttl time.Duration, maxMessages int) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		ttl:         ttl,
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

func (s *MemoryStore) Get(key string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	if s.expired(sess) {
		delete(s.sessions, key)
		return nil, false
	}

	// Return a copy so callers cannot mutate shared state.
	cp := *sess
	cp.Messages = append([]Message(nil), sess.Messages...)
	return &cp, true
}

func (s *MemoryStore) Set(key, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[key]
	if !ok || s.expired(sess) {
		sess = &Session{CreatedAt: now}
		s.sessions[key] = sess
	}
	sess.SessionID = sessionID
	sess.LastActivity = now
}

func (s *MemoryStore) Append(key, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[key]
	if !ok || s.expired(sess) {
		sess = &Session{CreatedAt: now}
		s.sessions[key] = sess
	}
	sess.Messages = append(sess.Messages, Message{Role: role, Content: content})
	if s.maxMessages > 0 && len(sess.Messages) > s.maxMessages {
		sess.Messages = sess.Messages[len(sess.Messages)-s.maxMessages:]
	}
	sess.LastActivity = now
}

func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; !ok {
		return false
	}
	delete(s.sessions, key)
	return true
}

func (s *MemoryStore) expired(sess *Session) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(sess.LastActivity) > s.ttl
}
