package workspaces

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/workroomhq/workroom/pkg/auth"
)

// CreateInvitation creates a new invitation. Re-inviting the same email to
// the same workspace refreshes the token and expiry rather than erroring.
func (s *PostgresService) CreateInvitation(invitation *Invitation) error {
	if invitation.Role != auth.RoleAdmin && invitation.Role != auth.RoleMember {
		return fmt.Errorf("invitations may propose admin or member, got %q", invitation.Role)
	}

	token, err := generateToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	invitation.Token = token

	if invitation.CreatedAt.IsZero() {
		invitation.CreatedAt = time.Now()
	}
	if invitation.ExpiresAt.IsZero() {
		invitation.ExpiresAt = invitation.CreatedAt.Add(InvitationTTL)
	}

	query := `
		INSERT INTO workspace_invitations (workspace_id, email, role, token, invited_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workspace_id, email) DO UPDATE
		SET role = EXCLUDED.role, token = EXCLUDED.token, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		RETURNING id
	`
	err = s.db.QueryRow(query, invitation.WorkspaceID, invitation.Email, invitation.Role,
		invitation.Token, nullableUserID(invitation.InvitedBy), invitation.CreatedAt, invitation.ExpiresAt).
		Scan(&invitation.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// GetInvitation retrieves an invitation by token
func (s *PostgresService) GetInvitation(token string) (*Invitation, error) {
	query := `
		SELECT id, workspace_id, email, role, token, invited_by, created_at, expires_at
		FROM workspace_invitations
		WHERE token = $1
	`
	invitation := &Invitation{}
	var invitedBy sql.NullInt64
	err := s.db.QueryRow(query, token).Scan(
		&invitation.ID, &invitation.WorkspaceID, &invitation.Email, &invitation.Role,
		&invitation.Token, &invitedBy, &invitation.CreatedAt, &invitation.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	invitation.InvitedBy = invitedBy.Int64

	return invitation, nil
}

// ListInvitations lists pending, unexpired invitations for a workspace
func (s *PostgresService) ListInvitations(workspaceID int64) ([]*Invitation, error) {
	query := `
		SELECT id, workspace_id, email, role, token, invited_by, created_at, expires_at
		FROM workspace_invitations
		WHERE workspace_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		invitation := &Invitation{}
		var invitedBy sql.NullInt64
		if err := rows.Scan(
			&invitation.ID, &invitation.WorkspaceID, &invitation.Email, &invitation.Role,
			&invitation.Token, &invitedBy, &invitation.CreatedAt, &invitation.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitation.InvitedBy = invitedBy.Int64
		invitations = append(invitations, invitation)
	}

	return invitations, nil
}

// CountPendingInvitations counts unexpired invitations for a workspace.
// Pending invitations reserve team seats for quota purposes.
func (s *PostgresService) CountPendingInvitations(workspaceID int64) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM workspace_invitations WHERE workspace_id = $1 AND expires_at > NOW()", workspaceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending invitations: %w", err)
	}
	return count, nil
}

// AcceptInvitation consumes an invitation and creates the membership in one
// transaction. The row lock makes concurrent accepts of the same token
// serialize: the first wins, the rest see not-found.
//
// Outcomes:
//   - token unknown → ErrInvitationNotFound
//   - expired → row deleted, ErrInvitationExpired
//   - already a member → row deleted, ErrAlreadyMember
//   - otherwise → membership created with the proposed role, row deleted
func (s *PostgresService) AcceptInvitation(token string, userID int64, userEmail string) (*Membership, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, workspace_id, email, role, expires_at
		FROM workspace_invitations
		WHERE token = $1
		FOR UPDATE
	`
	var id, workspaceID int64
	var email string
	var role auth.Role
	var expiresAt time.Time

	err = tx.QueryRow(query, token).Scan(&id, &workspaceID, &email, &role, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if time.Now().After(expiresAt) {
		if _, err := tx.Exec("DELETE FROM workspace_invitations WHERE id = $1", id); err != nil {
			return nil, fmt.Errorf("failed to delete expired invitation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit expired invitation cleanup: %w", err)
		}
		return nil, ErrInvitationExpired
	}

	query = `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`
	result, err := tx.Exec(query, workspaceID, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	// The invitation is consumed either way
	if _, err := tx.Exec("DELETE FROM workspace_invitations WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("failed to delete invitation: %w", err)
	}

	if rowsAffected == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit invitation consumption: %w", err)
		}
		return nil, ErrAlreadyMember
	}

	var member Membership
	var overridesJSON []byte
	err = tx.QueryRow(
		"SELECT id, workspace_id, user_id, role, permission_overrides, joined_at FROM workspace_members WHERE workspace_id = $1 AND user_id = $2",
		workspaceID, userID,
	).Scan(&member.ID, &member.WorkspaceID, &member.UserID, &member.Role, &overridesJSON, &member.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read new membership: %w", err)
	}
	if err := json.Unmarshal(overridesJSON, &member.Overrides); err != nil {
		return nil, fmt.Errorf("failed to decode permission overrides: %w", err)
	}
	member.Email = userEmail

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}

	return &member, nil
}

// nullableUserID maps the zero user ID to SQL NULL. Invitations sent by an
// API key have no user to attribute, and the users FK rejects a literal 0.
func nullableUserID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// CancelInvitation removes a pending invitation
func (s *PostgresService) CancelInvitation(workspaceID, invitationID int64) error {
	query := `DELETE FROM workspace_invitations WHERE id = $1 AND workspace_id = $2`
	result, err := s.db.Exec(query, invitationID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvitationNotFound
	}

	return nil
}

// CleanupExpiredInvitations removes expired invitations and reports how
// many were deleted. Run from the cron scheduler.
func (s *PostgresService) CleanupExpiredInvitations() (int64, error) {
	result, err := s.db.Exec("DELETE FROM workspace_invitations WHERE expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
