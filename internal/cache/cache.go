// Package cache provides a best-effort persistence layer mirroring user,
// session and holdings data. The broker remains the source of truth; every
// read here may be stale and every failure is safe to ignore.
package cache

import (
	"context"
	"time"

	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/session"
)

// User is a cached broker user together with the tokens from the most
// recent token exchange.
type User struct {
	UserID       string    `db:"user_id" json:"user_id"`
	UserName     string    `db:"user_name" json:"user_name"`
	Email        string    `db:"email" json:"email"`
	Broker       string    `db:"broker" json:"broker"`
	AccessToken  string    `db:"access_token" json:"-"`
	PublicToken  string    `db:"public_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	LastLogin    time.Time `db:"last_login" json:"last_login"`
}

// Store mirrors application state into a local database. Implementations
// must be safe to call when nothing is configured: the NoopStore variant
// returns empty results and never errors.
type Store interface {
	// Configured reports whether a real backing store is present.
	Configured() bool

	// SaveUser upserts a user row keyed by user ID.
	SaveUser(ctx context.Context, user *User) error

	// GetUser returns a cached user or nil when unknown.
	GetUser(ctx context.Context, userID string) (*User, error)

	// ReplaceHoldings drops all cached holdings for the user and inserts
	// the given snapshot. There is no incremental merge.
	ReplaceHoldings(ctx context.Context, userID string, holdings []kite.Holding) error

	// Holdings returns the cached holdings snapshot for a user.
	Holdings(ctx context.Context, userID string) ([]kite.Holding, error)

	// SaveSession upserts a session row keyed by session ID.
	SaveSession(ctx context.Context, s *session.Session) error

	// GetSession returns a cached, unexpired session or nil.
	GetSession(ctx context.Context, id string) (*session.Session, error)

	// DeleteSession removes a session row.
	DeleteSession(ctx context.Context, id string) error

	// DeleteExpiredSessions removes expired session rows and returns the
	// count.
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// SaveRequestToken records a request token for audit purposes. Called
	// once with a placeholder identity at callback arrival and again with
	// the real user ID after a successful exchange.
	SaveRequestToken(ctx context.Context, requestToken, userID string) error

	// Close releases the backing store.
	Close() error
}

// NoopStore is the unconfigured Store variant. Writes succeed without
// effect and reads return empty results.
type NoopStore struct{}

// NewNoopStore creates a NoopStore.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

// Configured implements Store.
func (*NoopStore) Configured() bool { return false }

// SaveUser implements Store.
func (*NoopStore) SaveUser(context.Context, *User) error { return nil }

// GetUser implements Store.
func (*NoopStore) GetUser(context.Context, string) (*User, error) { return nil, nil }

// ReplaceHoldings implements Store.
func (*NoopStore) ReplaceHoldings(context.Context, string, []kite.Holding) error { return nil }

// Holdings implements Store.
func (*NoopStore) Holdings(context.Context, string) ([]kite.Holding, error) { return nil, nil }

// SaveSession implements Store.
func (*NoopStore) SaveSession(context.Context, *session.Session) error { return nil }

// GetSession implements Store.
func (*NoopStore) GetSession(context.Context, string) (*session.Session, error) { return nil, nil }

// DeleteSession implements Store.
func (*NoopStore) DeleteSession(context.Context, string) error { return nil }

// DeleteExpiredSessions implements Store.
func (*NoopStore) DeleteExpiredSessions(context.Context) (int64, error) { return 0, nil }

// SaveRequestToken implements Store.
func (*NoopStore) SaveRequestToken(context.Context, string, string) error { return nil }

// Close implements Store.
func (*NoopStore) Close() error { return nil }
