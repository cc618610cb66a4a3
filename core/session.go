package core

import (
	"sync"
	"time"
)

// Role identifies the author side of a conversational turn.
type Role string

const (
	// RoleUser marks a turn authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by a responder.
	RoleAssistant Role = "assistant"
)

// Turn is one message within a session. It is immutable once appended;
// Handler is only populated on assistant turns and names the responder
// profile that produced the text (best-effort metadata, see routing).
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Handler   string    `json:"handler,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is the role/content pair handed to a Responder as conversational
// context. It deliberately omits timestamps and attribution.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session represents one conversation: an opaque identity plus an ordered,
// bounded turn history. It is safe for concurrent access.
//
// Contract:
//   - LastActivity is monotonically non-decreasing and bumped on every mutation
//   - AddTurn applies FIFO truncation so the retained suffix keeps its order
//   - History and Messages return defensive copies
type Session struct {
	ID           string    `json:"id"`
	Turns        []Turn    `json:"turns"`
	Created      time.Time `json:"created"`
	LastActivity time.Time `json:"last_activity"`
	mu           sync.RWMutex
}

// NewSession creates an empty session with the given identity, stamping both
// timestamps with now.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, Turns: []Turn{}, Created: now, LastActivity: now}
}

// AddTurn appends a turn, bumps LastActivity to now and truncates the oldest
// turns when the history exceeds maxTurns (0 means unbounded).
func (s *Session) AddTurn(turn Turn, maxTurns int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns = append(s.Turns, turn)
	if maxTurns > 0 && len(s.Turns) > maxTurns {
		// Copy rather than re-slice so evicted turns become collectable.
		retained := make([]Turn, maxTurns)
		copy(retained, s.Turns[len(s.Turns)-maxTurns:])
		s.Turns = retained
	}
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// Touch bumps LastActivity without mutating the history.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// IdleSince reports whether the session has seen no activity for longer than
// ttl as of now.
func (s *Session) IdleSince(now time.Time, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.LastActivity) > ttl
}

// Len returns the current turn count.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Turns)
}

// History returns a defensive copy of the full turn history.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return turns
}

// Messages returns the retained turns as responder context, preserving order.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]Message, 0, len(s.Turns))
	for _, t := range s.Turns {
		msgs = append(msgs, Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, Turns: make([]Turn, len(s.Turns)), Created: s.Created, LastActivity: s.LastActivity}
	copy(clone.Turns, s.Turns)
	return clone
}
