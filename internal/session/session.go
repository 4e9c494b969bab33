// Package session provides session state and pluggable session stores.
package session

import (
	"errors"
	"time"
)

// DefaultDuration is the default session lifetime. It matches the broker's
// access token lifetime of one trading day.
const DefaultDuration = 24 * time.Hour

var (
	// ErrNotFound is returned when a session doesn't exist.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned when a session has expired.
	ErrExpired = errors.New("session expired")
)

// Session binds an opaque cookie-carried identifier to the broker
// credentials obtained during token exchange.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	PublicToken string    `json:"public_token"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the session lifetime has elapsed.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Authenticated reports whether the session can authenticate broker calls.
// A session without an access token is never authenticated.
func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != "" && !s.IsExpired()
}
