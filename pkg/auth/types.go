// Package auth defines the role model, capabilities, API key scopes, and
// the authenticated-actor context shared by the rest of the service.
package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// User represents a human account resolved from a session.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Role represents workspace-level roles. Exactly one member per workspace
// holds RoleOwner; the workspaces service enforces that invariant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Level returns the position of r in the fixed role order (owner > admin > member).
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Capability represents a named workspace permission. The enumeration is
// closed: unknown names are rejected at validation, never wildcard-matched.
type Capability string

const (
	CapabilityManageBilling       Capability = "manage_billing"
	CapabilityManageTeam          Capability = "manage_team"
	CapabilityManageWebhooks      Capability = "manage_webhooks"
	CapabilityViewActivityLogging Capability = "view_activity_logging"
)

// AllCapabilities returns every defined capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityManageBilling,
		CapabilityManageTeam,
		CapabilityManageWebhooks,
		CapabilityViewActivityLogging,
	}
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	for _, known := range AllCapabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// CapabilitySet is an in-memory set of capabilities. It serializes to a
// sorted JSON array at the storage boundary; business logic never touches
// the JSON form.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet creates a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains c. No wildcard matching.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c into the set.
func (s CapabilitySet) Add(c Capability) {
	s[c] = struct{}{}
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []Capability {
	caps := make([]Capability, 0, len(s))
	for c := range s {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// MarshalJSON encodes the set as a sorted JSON array of strings.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON decodes a JSON array of strings into the set.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var names []Capability
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewCapabilitySet(names...)
	return nil
}

// ValidateCapabilities checks that every name is a known capability.
func ValidateCapabilities(caps []Capability) error {
	for _, c := range caps {
		if !c.Valid() {
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	return nil
}

// DefaultCapabilities returns the static default capability set for a role.
// The owner's set is informational only: authorization short-circuits to
// allow before consulting it.
func DefaultCapabilities(r Role) CapabilitySet {
	switch r {
	case RoleOwner:
		return NewCapabilitySet(AllCapabilities()...)
	case RoleAdmin:
		return NewCapabilitySet(
			CapabilityManageTeam,
			CapabilityManageWebhooks,
			CapabilityViewActivityLogging,
		)
	default:
		return NewCapabilitySet()
	}
}

// Scope represents an API key scope. Scopes are narrower than capabilities
// and are checked per endpoint, not globally.
type Scope string

const (
	ScopeWorkspacesRead  Scope = "workspaces:read"
	ScopeWorkspacesWrite Scope = "workspaces:write"
	ScopeTeamRead        Scope = "team:read"
	ScopeTeamWrite       Scope = "team:write"
	ScopeWebhooksRead    Scope = "webhooks:read"
	ScopeWebhooksWrite   Scope = "webhooks:write"
	ScopeActivityRead    Scope = "activity:read"
)

// AllScopes returns every defined API key scope.
func AllScopes() []Scope {
	return []Scope{
		ScopeWorkspacesRead,
		ScopeWorkspacesWrite,
		ScopeTeamRead,
		ScopeTeamWrite,
		ScopeWebhooksRead,
		ScopeWebhooksWrite,
		ScopeActivityRead,
	}
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	for _, known := range AllScopes() {
		if s == known {
			return true
		}
	}
	return false
}

// ValidateScopes rejects requests containing unknown scopes rather than
// silently dropping them.
func ValidateScopes(scopes []Scope) error {
	if len(scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	for _, s := range scopes {
		if !s.Valid() {
			return fmt.Errorf("unknown scope %q", s)
		}
	}
	return nil
}

// ActorKind distinguishes how a request authenticated.
type ActorKind string

const (
	ActorSession ActorKind = "session"
	ActorAPIKey  ActorKind = "api_key"
)

// AuthContext holds the authenticated actor for a request.
type AuthContext struct {
	Kind ActorKind

	// Session actors
	UserID int64
	Email  string

	// API key actors
	KeyID       int64
	WorkspaceID int64
	Scopes      []Scope
}

// HasScope reports whether an API key context carries the given scope.
func (ac *AuthContext) HasScope(scope Scope) bool {
	for _, s := range ac.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
