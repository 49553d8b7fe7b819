// Package session keeps one workflow controller per client session.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/metrics"
	"github.com/salulink/authi-claims/workflow"
)

// ErrSessionNotFound is returned for unknown or evicted sessions
var ErrSessionNotFound = errors.New("session not found")

// Session is a workflow instance. Callers hold the session through Do, which
// serializes every operation on its controller.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	controller *workflow.Controller
	// unix nanoseconds, readable without waiting for mu
	lastSeen atomic.Int64
}

// Do runs fn with exclusive access to the controller
func (s *Session) Do(fn func(c *workflow.Controller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(time.Now())
	defer func() { s.touch(time.Now()) }()
	return fn(s.controller)
}

func (s *Session) touch(t time.Time) { s.lastSeen.Store(t.UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Registry holds the live sessions
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     workflow.Deps
	nowFunc  func() time.Time
}

// NewRegistry creates a registry whose sessions share deps
func NewRegistry(deps workflow.Deps) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
		nowFunc:  time.Now,
	}
}

// Create starts a new session at NoteInput
func (r *Registry) Create() *Session {
	now := r.nowFunc()
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		controller: workflow.New(r.deps),
	}
	s.touch(now)

	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	logging.Debug("Session created", "session_id", s.ID)
	return s
}

// Get returns the session with id
func (r *Registry) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete ends a session
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	metrics.ActiveSessions.Set(float64(count))
	return nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EvictIdle removes sessions not used for longer than maxIdle and returns
// how many were removed
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.nowFunc().Add(-maxIdle)

	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	if removed > 0 {
		logging.Info("Evicted idle sessions", "evicted", removed, "remaining", count)
	}
	return removed
}
