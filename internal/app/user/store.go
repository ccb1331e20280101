package user

import (
	"sync"

	"github.com/rs/zerolog"

	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/randx"
)

// Store keeps every collaborator identity for the lifetime of the process.
type Store struct {
	mu     sync.RWMutex
	users  map[string]User
	logger zerolog.Logger
}

// NewStore creates an empty user store.
func NewStore() *Store {
	return &Store{
		users:  make(map[string]User),
		logger: logx.Component("UserStore"),
	}
}

// GetOrCreate returns the user registered under userID.
// An empty or unknown id mints a fresh user with a random name and colour.
func (s *Store) GetOrCreate(userID string) User {
	if userID != "" {
		if u, ok := s.Get(userID); ok {
			return u
		}
	}

	u := User{
		ID:    randx.NewID(),
		Name:  randx.Pick(Names),
		Color: randx.Pick(Palette),
	}

	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()

	s.logger.Debug().
		Str("user_id", u.ID).
		Str("requested_id", userID).
		Str("name", u.Name).
		Msg("Minted new user.")

	return u
}

// Get looks up a user by id.
func (s *Store) Get(userID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	return u, ok
}

// Count returns the number of known users.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.users)
}
