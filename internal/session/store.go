package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists sessions keyed by their opaque identifier.
// The in-memory implementation is the default; a Redis-backed one is
// available for durability across restarts.
type Store interface {
	// Create stores a new session for the given broker credentials and
	// returns it with a freshly generated identifier.
	Create(ctx context.Context, userID, accessToken, publicToken string) (*Session, error)

	// Get retrieves a session by ID. Returns ErrNotFound if absent and
	// ErrExpired (after removing it) if past its lifetime.
	Get(ctx context.Context, id string) (*Session, error)

	// Put stores a session under its existing ID, replacing any previous
	// value. Used to rehydrate sessions recovered from the cache.
	Put(ctx context.Context, s *Session) error

	// Delete removes a session by ID. Deleting a missing session is not
	// an error.
	Delete(ctx context.Context, id string) error

	// PurgeExpired removes expired sessions and returns how many were
	// dropped.
	PurgeExpired(ctx context.Context) (int, error)
}

// MemoryStore is an in-process Store backed by a map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	duration time.Duration
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		duration: DefaultDuration,
	}
}

// WithDuration sets a custom session duration.
func (s *MemoryStore) WithDuration(d time.Duration) *MemoryStore {
	s.duration = d
	return s
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, userID, accessToken, publicToken string) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		AccessToken: accessToken,
		PublicToken: publicToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.duration),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if session.IsExpired() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, ErrExpired
	}

	copied := *session
	return &copied, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, session *Session) error {
	copied := *session
	s.mu.Lock()
	s.sessions[session.ID] = &copied
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// PurgeExpired implements Store.
func (s *MemoryStore) PurgeExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, session := range s.sessions {
		if session.IsExpired() {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}
