package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
)

// Options holds configuration overrides passed to NewInMemoryStore.
type Options struct {
	// MaxTurns bounds the per-session history; older turns are evicted first.
	MaxTurns int
	// TTL is the idle window after which a session expires.
	TTL time.Duration
	// Clock supplies the current time; override in tests to drive expiry.
	Clock func() time.Time
	// Logger receives store diagnostics.
	Logger logging.Logger
}

// InMemoryStore is a volatile session store keeping all conversations in a
// process local map. It is safe for concurrent use: the map shape (insert,
// delete, sweep) is guarded by a coarse RWMutex while turn appends go through
// the per-session lock, so unrelated sessions never serialize on each other.
//
// Expiry is lazy: Get deletes an expired entry as a side effect and reports
// absence. An optional background sweep (StartSweeper) bounds memory
// proactively.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session

	maxTurns int
	ttl      time.Duration
	now      func() time.Time
	logger   logging.Logger
}

// NewInMemoryStore constructs an empty in-memory session store. Defaults:
// 50 retained turns, 30 minute idle expiry.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		MaxTurns: 50,
		TTL:      30 * time.Minute,
		Clock:    time.Now,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		maxTurns: opts.MaxTurns,
		ttl:      opts.TTL,
		now:      opts.Clock,
		logger:   opts.Logger,
	}
}

// Create allocates a fresh identity, inserts an empty session and returns
// the identity.
func (s *InMemoryStore) Create() string {
	return s.create().ID
}

func (s *InMemoryStore) create() *core.Session {
	sess := core.NewSession(uuid.NewString(), s.now())

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Debug("session created session_id=%s", sess.ID)
	return sess
}

// Get returns the session iff present and not expired. An expired entry is
// deleted as a side effect and reported as absent.
func (s *InMemoryStore) Get(id string) (*core.Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if sess.IdleSince(s.now(), s.ttl) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent append may have
		// revived the session or a sweep may already have removed it.
		if cur, ok := s.sessions[id]; ok && cur.IdleSince(s.now(), s.ttl) {
			delete(s.sessions, id)
			s.logger.Debug("expired session evicted session_id=%s", id)
		}
		s.mu.Unlock()
		return nil, false
	}

	return sess, true
}

// GetOrCreate returns the existing session for id, or a fresh one when id is
// empty, unknown or expired. An expired identity is never resurrected; the
// caller observes a different identity afterwards. This is the sole entry
// point used by the turn orchestrator.
func (s *InMemoryStore) GetOrCreate(id string) *core.Session {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess
		}
	}
	return s.create()
}

// AppendTurn appends a turn to the session, bumping its activity timestamp
// and truncating history beyond the configured maximum. When id does not
// resolve (absent or expired) this is a logged no-op; an expired entry is
// never revived by a write. Callers are expected to have used GetOrCreate
// first.
func (s *InMemoryStore) AppendTurn(id string, role core.Role, content, handler string) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		s.logger.Warn("append to unknown session dropped session_id=%s", id)
		return
	}

	now := s.now()
	if sess.IdleSince(now, s.ttl) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent append may have
		// revived the session or a sweep may already have removed it.
		if cur, ok := s.sessions[id]; ok && cur.IdleSince(s.now(), s.ttl) {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		s.logger.Warn("append to expired session dropped session_id=%s", id)
		return
	}

	sess.AddTurn(core.Turn{Role: role, Content: content, Handler: handler, Timestamp: now}, s.maxTurns, now)
}

// History returns the ordered turn list for id, or false when the session is
// absent or expired.
func (s *InMemoryStore) History(id string) ([]core.Turn, bool) {
	sess, ok := s.Get(id)
	if !ok {
		return nil, false
	}
	return sess.History(), true
}

// Delete removes the session if present and reports whether it existed.
func (s *InMemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Count returns the number of currently tracked sessions.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepExpired removes every session idle past the expiry window and returns
// the count removed. Safe to call concurrently with all other operations.
func (s *InMemoryStore) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.IdleSince(now, s.ttl) {
			delete(s.sessions, id)
			removed++
		}
	}
	remaining := len(s.sessions)
	s.mu.Unlock()

	if removed > 0 {
		if sl, ok := s.logger.(sweepLogger); ok {
			sl.LogSweep(removed, remaining)
		} else {
			s.logger.Info("expiry sweep removed=%d remaining=%d", removed, remaining)
		}
	}
	return removed
}

// sweepLogger is implemented by loggers that record sweep outcomes as
// structured events instead of a formatted message.
type sweepLogger interface {
	LogSweep(removed, remaining int)
}

// StartSweeper runs a periodic expiry sweep until ctx is cancelled. Lazy
// expiry on Get remains authoritative; the sweeper only bounds memory.
func (s *InMemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepExpired()
			}
		}
	}()
}
