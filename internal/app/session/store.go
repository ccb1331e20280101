package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/randx"
)

// Store keeps every collaboration session for the lifetime of the process.
// All methods return copies; callers never share the store's mutable state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
	now      func() time.Time
	logger   zerolog.Logger
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*record),
		now:      time.Now,
		logger:   logx.Component("SessionStore"),
	}
}

// GetOrCreate returns the session registered under sessionID.
// An empty or unknown id creates a new session with a fresh identifier.
func (s *Store) GetOrCreate(sessionID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != "" {
		if r, ok := s.sessions[sessionID]; ok {
			return r.snapshot()
		}
	}

	now := s.now().UTC()
	r := &record{
		id:        randx.NewID(),
		createdAt: now,
		updatedAt: now,
		present:   make(map[string]struct{}),
	}
	s.sessions[r.id] = r

	s.logger.Info().
		Str("session_id", r.id).
		Str("requested_id", sessionID).
		Msg("Session created.")

	return r.snapshot()
}

// Get looks up a session by id.
func (s *Store) Get(sessionID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return r.snapshot(), true
}

// ReplaceDiagram overwrites the session's diagram snapshot. There is no conflict
// detection: the latest write wins.
func (s *Store) ReplaceDiagram(sessionID, xml string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, false
	}

	r.diagram = &xml
	r.updatedAt = s.now().UTC()

	s.logger.Debug().
		Str("session_id", sessionID).
		Int("xml_bytes", len(xml)).
		Msg("Diagram replaced.")

	return r.snapshot(), true
}

// AddPresentUser marks userID as present. No-op when the session does not exist.
func (s *Store) AddPresentUser(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.sessions[sessionID]; ok {
		r.present[userID] = struct{}{}
		r.updatedAt = s.now().UTC()
	}
}

// RemovePresentUser clears userID from the present set. No-op when the session does not exist.
func (s *Store) RemovePresentUser(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.sessions[sessionID]; ok {
		delete(r.present, userID)
		r.updatedAt = s.now().UTC()
	}
}

// Count returns the number of sessions ever created in this process.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
