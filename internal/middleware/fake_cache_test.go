package middleware

import (
	"context"

	"kite_dashboard/internal/cache"
	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/session"
)

// fakeCache is an in-memory cache.Store for middleware tests.
type fakeCache struct {
	users    map[string]*cache.User
	sessions map[string]*session.Session
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		users:    make(map[string]*cache.User),
		sessions: make(map[string]*session.Session),
	}
}

func (f *fakeCache) Configured() bool { return true }

func (f *fakeCache) SaveUser(_ context.Context, user *cache.User) error {
	f.users[user.UserID] = user
	return nil
}

func (f *fakeCache) GetUser(_ context.Context, userID string) (*cache.User, error) {
	return f.users[userID], nil
}

func (f *fakeCache) ReplaceHoldings(context.Context, string, []kite.Holding) error { return nil }

func (f *fakeCache) Holdings(context.Context, string) ([]kite.Holding, error) { return nil, nil }

func (f *fakeCache) SaveSession(_ context.Context, s *session.Session) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeCache) GetSession(_ context.Context, id string) (*session.Session, error) {
	sess, ok := f.sessions[id]
	if !ok || sess.IsExpired() {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

func (f *fakeCache) DeleteSession(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeCache) DeleteExpiredSessions(context.Context) (int64, error) { return 0, nil }

func (f *fakeCache) SaveRequestToken(context.Context, string, string) error { return nil }

func (f *fakeCache) Close() error { return nil }
