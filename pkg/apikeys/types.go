// Package apikeys issues, authenticates, and revokes workspace-scoped API keys.
package apikeys

import (
	"errors"
	"time"

	"github.com/workroomhq/workroom/pkg/auth"
)

// APIKey represents a stored key. Only the SHA-256 hash is persisted; the
// plaintext is returned exactly once at issuance.
type APIKey struct {
	ID          int64        `json:"id"`
	WorkspaceID int64        `json:"workspace_id"`
	CreatedBy   int64        `json:"created_by"`
	Name        string       `json:"name"`
	KeyHash     string       `json:"-"`
	KeyPrefix   string       `json:"key_prefix"`
	Scopes      []auth.Scope `json:"scopes"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time   `json:"last_used_at,omitempty"`
}

// Expired reports whether the key has an expiry in the past.
func (k *APIKey) Expired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}

// IssueRequest is the payload for creating a key.
type IssueRequest struct {
	Name      string       `json:"name"`
	Scopes    []auth.Scope `json:"scopes"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// Authentication failures form a closed taxonomy; the messages are the
// exact strings returned to API clients.
var (
	// ErrKeyMissing: no bearer key, or one that does not parse as a key at all (401).
	ErrKeyMissing = errors.New("Missing or invalid API key.")
	// ErrKeyInvalid: well-formed but unknown, including revoked keys (401).
	ErrKeyInvalid = errors.New("Invalid API key.")
	// ErrKeyExpired: known key past its expiry (401).
	ErrKeyExpired = errors.New("API key has expired.")
	// ErrInsufficientScope: authenticated key lacking the endpoint's scope (403).
	ErrInsufficientScope = errors.New("Insufficient scope.")

	// ErrKeyNotFound is for management operations on unknown key IDs.
	ErrKeyNotFound = errors.New("api key not found")
)

// Service defines the API key lifecycle.
type Service interface {
	Issue(workspaceID, issuerID int64, req *IssueRequest) (*APIKey, string, error)
	Authenticate(bearer string) (*APIKey, error)
	List(workspaceID int64) ([]*APIKey, error)
	Get(workspaceID, keyID int64) (*APIKey, error)
	Revoke(workspaceID, keyID int64) error
}
