// Package sso implements session login through a single OpenID Connect
// provider, Redis-backed browser sessions, and just-in-time user
// provisioning with a personal workspace per user.
package sso

import (
	"errors"
	"time"
)

// Identity is the subset of OIDC claims we act on.
type Identity struct {
	ExternalID string
	Email      string
	FullName   string
}

// Session is a logged-in browser session. Sessions live in Redis under a
// TTL; expiry is enforced by the store, not by application sweeps.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionTTL is how long a session stays valid without re-login.
const SessionTTL = 24 * time.Hour

// Errors returned by the session manager.
var (
	ErrNoSession      = errors.New("no session")
	ErrSessionExpired = errors.New("session expired")
)
