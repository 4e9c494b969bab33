// Package middleware provides HTTP middleware for the dashboard.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"kite_dashboard/internal/cache"
	"kite_dashboard/internal/logger"
	"kite_dashboard/internal/session"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// SessionContextKey is the context key for the loaded session.
	SessionContextKey ContextKey = "session"

	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session_id"
)

// SessionMiddleware loads and enforces sessions on incoming requests.
type SessionMiddleware struct {
	store  session.Store
	cache  cache.Store
	secret string
	maxAge int
	secure bool
}

// NewSessionMiddleware creates a SessionMiddleware. The secret signs cookie
// values; secure controls the cookie's Secure flag.
func NewSessionMiddleware(store session.Store, cacheStore cache.Store, secret string, maxAge int, secure bool) *SessionMiddleware {
	return &SessionMiddleware{
		store:  store,
		cache:  cacheStore,
		secret: secret,
		maxAge: maxAge,
		secure: secure,
	}
}

// LoadSession loads the session referenced by the request cookie, if any,
// into the request context. It does not require authentication.
func (m *SessionMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		id, ok := m.verifyCookieValue(cookie.Value)
		if !ok {
			m.ClearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		sess, err := m.store.Get(r.Context(), id)
		if errors.Is(err, session.ErrNotFound) {
			// The primary store may have lost the session across a
			// restart; try to rehydrate it from the cache mirror.
			sess = m.rehydrate(r.Context(), id)
		} else if err != nil {
			sess = nil
		}

		if sess == nil || !sess.Authenticated() {
			m.ClearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects requests without an authenticated session.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetSession(r).Authenticated() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Not authenticated"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rehydrate rebuilds a session from the cache mirror. Returns nil when the
// cache has no usable row; all cache failures are swallowed.
func (m *SessionMiddleware) rehydrate(ctx context.Context, id string) *session.Session {
	sess, err := m.cache.GetSession(ctx, id)
	if err != nil {
		logger.Log.WithError(err).Warn("Cache session lookup failed")
		return nil
	}
	if sess == nil {
		return nil
	}

	// Older mirrors kept tokens on the user row only
	if sess.AccessToken == "" {
		user, err := m.cache.GetUser(ctx, sess.UserID)
		if err != nil {
			logger.Log.WithError(err).Warn("Cache user lookup failed")
			return nil
		}
		if user == nil {
			return nil
		}
		sess.AccessToken = user.AccessToken
		sess.PublicToken = user.PublicToken
	}

	if !sess.Authenticated() {
		return nil
	}
	if err := m.store.Put(ctx, sess); err != nil {
		logger.Log.WithError(err).Warn("Session rehydration store failed")
	}
	logger.Log.WithField("user_id", sess.UserID).Info("Session rehydrated from cache")
	return sess
}

// GetSession retrieves the loaded session from the request context.
// Returns nil if no session is present.
func GetSession(r *http.Request) *session.Session {
	sess, ok := r.Context().Value(SessionContextKey).(*session.Session)
	if !ok {
		return nil
	}
	return sess
}

// SetSessionCookie sets the signed session cookie.
func (m *SessionMiddleware) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    m.signCookieValue(sessionID),
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie clears the session cookie.
func (m *SessionMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})
}

// signCookieValue returns "id.signature" where the signature is an HMAC
// over the session ID with the configured secret.
func (m *SessionMiddleware) signCookieValue(id string) string {
	return id + "." + m.signature(id)
}

// verifyCookieValue splits and checks a signed cookie value, returning the
// embedded session ID.
func (m *SessionMiddleware) verifyCookieValue(value string) (string, bool) {
	id, sig, found := strings.Cut(value, ".")
	if !found || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(m.signature(id))) {
		return "", false
	}
	return id, true
}

func (m *SessionMiddleware) signature(id string) string {
	mac := hmac.New(sha256.New, []byte(m.secret))
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}
