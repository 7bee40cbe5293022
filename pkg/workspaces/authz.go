package workspaces

import (
	"errors"
	"fmt"

	"github.com/workroomhq/workroom/pkg/auth"
)

// Allowed evaluates a capability check against a membership. The decision
// order is fixed:
//
//  1. no membership → deny
//  2. owner → allow (overrides and defaults never consulted)
//  3. role default grants the capability → allow
//  4. per-member override grants the capability → allow
//  5. deny
//
// A nil membership means the actor is not a member of the workspace.
func Allowed(m *Membership, capability auth.Capability) bool {
	if m == nil {
		return false
	}
	if m.Role == auth.RoleOwner {
		return true
	}
	if auth.DefaultCapabilities(m.Role).Has(capability) {
		return true
	}
	return m.Overrides.Has(capability)
}

// Can answers "may this user exercise this capability in this workspace?".
// Non-members get a plain false, not an error.
func (s *PostgresService) Can(userID, workspaceID int64, capability auth.Capability) (bool, error) {
	if !capability.Valid() {
		return false, fmt.Errorf("unknown capability %q", capability)
	}

	m, err := s.GetMembership(workspaceID, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve membership: %w", err)
	}

	return Allowed(m, capability), nil
}
