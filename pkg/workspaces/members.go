package workspaces

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/workroomhq/workroom/pkg/auth"
)

// ListMembers retrieves all members of a workspace with user details
func (s *PostgresService) ListMembers(workspaceID int64) ([]*Membership, error) {
	query := `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.permission_overrides, m.joined_at,
		       u.email, u.full_name
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.joined_at ASC
	`
	rows, err := s.db.Query(query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		member := &Membership{}
		var overridesJSON []byte
		if err := rows.Scan(
			&member.ID, &member.WorkspaceID, &member.UserID, &member.Role,
			&overridesJSON, &member.JoinedAt, &member.Email, &member.FullName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if err := json.Unmarshal(overridesJSON, &member.Overrides); err != nil {
			return nil, fmt.Errorf("failed to decode permission overrides: %w", err)
		}
		members = append(members, member)
	}

	return members, nil
}

// GetMembership retrieves a specific membership
func (s *PostgresService) GetMembership(workspaceID, userID int64) (*Membership, error) {
	query := `
		SELECT id, workspace_id, user_id, role, permission_overrides, joined_at
		FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2
	`
	member := &Membership{}
	var overridesJSON []byte
	err := s.db.QueryRow(query, workspaceID, userID).Scan(
		&member.ID, &member.WorkspaceID, &member.UserID, &member.Role,
		&overridesJSON, &member.JoinedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	if err := json.Unmarshal(overridesJSON, &member.Overrides); err != nil {
		return nil, fmt.Errorf("failed to decode permission overrides: %w", err)
	}

	return member, nil
}

// UpdateMemberRole changes a member's role between admin and member. The
// owner row can only change via TransferOwnership, and nobody can be
// promoted to owner directly.
func (s *PostgresService) UpdateMemberRole(workspaceID, userID int64, role auth.Role) error {
	if role != auth.RoleAdmin && role != auth.RoleMember {
		return fmt.Errorf("role must be admin or member, got %q", role)
	}

	member, err := s.GetMembership(workspaceID, userID)
	if err != nil {
		return err
	}
	if member.Role == auth.RoleOwner {
		return ErrOwnerImmutable
	}

	query := `UPDATE workspace_members SET role = $1 WHERE workspace_id = $2 AND user_id = $3 AND role <> $4`
	result, err := s.db.Exec(query, role, workspaceID, userID, auth.RoleOwner)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// SetMemberPermissions replaces a member's capability overrides. The owner
// is rejected as a target: owner access is unconditional and stored
// overrides would be dead data.
func (s *PostgresService) SetMemberPermissions(workspaceID, userID int64, caps []auth.Capability) error {
	if err := auth.ValidateCapabilities(caps); err != nil {
		return err
	}

	member, err := s.GetMembership(workspaceID, userID)
	if err != nil {
		return err
	}
	if member.Role == auth.RoleOwner {
		return ErrOwnerOverrides
	}

	overridesJSON, err := json.Marshal(auth.NewCapabilitySet(caps...))
	if err != nil {
		return fmt.Errorf("failed to encode permission overrides: %w", err)
	}

	query := `UPDATE workspace_members SET permission_overrides = $1 WHERE workspace_id = $2 AND user_id = $3`
	result, err := s.db.Exec(query, overridesJSON, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("failed to set member permissions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// RemoveMember removes a user from a workspace. The owner cannot be removed.
func (s *PostgresService) RemoveMember(workspaceID, userID int64) error {
	member, err := s.GetMembership(workspaceID, userID)
	if err != nil {
		return err
	}
	if member.Role == auth.RoleOwner {
		return ErrOwnerImmutable
	}

	query := `DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2 AND role <> $3`
	result, err := s.db.Exec(query, workspaceID, userID, auth.RoleOwner)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// TransferOwnership atomically promotes an admin to owner and demotes the
// current owner to admin. The target must already hold the admin role, and
// personal workspaces are refused.
func (s *PostgresService) TransferOwnership(workspaceID, newOwnerID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID int64
	var personal bool
	err = tx.QueryRow(
		"SELECT owner_id, personal FROM workspaces WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", workspaceID,
	).Scan(&ownerID, &personal)
	if err == sql.ErrNoRows {
		return ErrWorkspaceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if personal {
		return ErrPersonalWorkspace
	}

	var targetRole auth.Role
	err = tx.QueryRow(
		"SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2 FOR UPDATE",
		workspaceID, newOwnerID,
	).Scan(&targetRole)
	if err == sql.ErrNoRows {
		return ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock target membership: %w", err)
	}
	if targetRole != auth.RoleAdmin {
		return ErrTargetNotAdmin
	}

	// Demote the current owner first, then promote; both rows change or neither
	if _, err := tx.Exec(
		"UPDATE workspace_members SET role = $1 WHERE workspace_id = $2 AND user_id = $3",
		auth.RoleAdmin, workspaceID, ownerID,
	); err != nil {
		return fmt.Errorf("failed to demote current owner: %w", err)
	}

	if _, err := tx.Exec(
		"UPDATE workspace_members SET role = $1 WHERE workspace_id = $2 AND user_id = $3",
		auth.RoleOwner, workspaceID, newOwnerID,
	); err != nil {
		return fmt.Errorf("failed to promote new owner: %w", err)
	}

	if _, err := tx.Exec(
		"UPDATE workspaces SET owner_id = $1, updated_at = NOW() WHERE id = $2",
		newOwnerID, workspaceID,
	); err != nil {
		return fmt.Errorf("failed to update workspace owner: %w", err)
	}

	return tx.Commit()
}
