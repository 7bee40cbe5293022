package workspaces

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/workroomhq/workroom/pkg/auth"
)

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateWorkspace creates a workspace and its owner membership in one
// transaction. The owner membership row is what makes the single-owner
// invariant hold from the first moment.
func (s *PostgresService) CreateWorkspace(name string, ownerID int64, personal bool) (*Workspace, error) {
	slug := generateSlug(name)
	if slug == "" {
		return nil, fmt.Errorf("workspace name %q produces an empty slug", name)
	}

	// Random suffix keeps slugs unique without a read-check race
	suffix, err := generateToken(4)
	if err != nil {
		return nil, fmt.Errorf("failed to generate slug suffix: %w", err)
	}
	slug = slug + "-" + suffix

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ws := &Workspace{
		Name:     name,
		Slug:     slug,
		Plan:     PlanFree,
		OwnerID:  ownerID,
		Personal: personal,
	}

	query := `
		INSERT INTO workspaces (name, slug, plan, owner_id, personal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(query, ws.Name, ws.Slug, ws.Plan, ws.OwnerID, ws.Personal).
		Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	query = `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(query, ws.ID, ownerID, auth.RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit workspace creation: %w", err)
	}

	return ws, nil
}

// GetWorkspace retrieves a live workspace by ID
func (s *PostgresService) GetWorkspace(id int64) (*Workspace, error) {
	query := `
		SELECT id, name, slug, plan, owner_id, personal, created_at, updated_at, deleted_at
		FROM workspaces
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.scanWorkspace(s.db.QueryRow(query, id))
}

// GetWorkspaceBySlug retrieves a live workspace by slug
func (s *PostgresService) GetWorkspaceBySlug(slug string) (*Workspace, error) {
	query := `
		SELECT id, name, slug, plan, owner_id, personal, created_at, updated_at, deleted_at
		FROM workspaces
		WHERE slug = $1 AND deleted_at IS NULL
	`
	return s.scanWorkspace(s.db.QueryRow(query, slug))
}

// GetPersonalWorkspace retrieves the user's personal workspace. Its plan is
// what workspace-creation quota checks are scored against.
func (s *PostgresService) GetPersonalWorkspace(userID int64) (*Workspace, error) {
	query := `
		SELECT id, name, slug, plan, owner_id, personal, created_at, updated_at, deleted_at
		FROM workspaces
		WHERE owner_id = $1 AND personal = TRUE AND deleted_at IS NULL
	`
	return s.scanWorkspace(s.db.QueryRow(query, userID))
}

func (s *PostgresService) scanWorkspace(row *sql.Row) (*Workspace, error) {
	ws := &Workspace{}
	var deletedAt sql.NullTime
	err := row.Scan(
		&ws.ID, &ws.Name, &ws.Slug, &ws.Plan, &ws.OwnerID, &ws.Personal,
		&ws.CreatedAt, &ws.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	if deletedAt.Valid {
		ws.DeletedAt = &deletedAt.Time
	}
	return ws, nil
}

// ListWorkspacesForUser returns every live workspace the user is a member of
func (s *PostgresService) ListWorkspacesForUser(userID int64) ([]*Workspace, error) {
	query := `
		SELECT w.id, w.name, w.slug, w.plan, w.owner_id, w.personal, w.created_at, w.updated_at, w.deleted_at
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1 AND w.deleted_at IS NULL
		ORDER BY w.created_at ASC
	`
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var result []*Workspace
	for rows.Next() {
		ws := &Workspace{}
		var deletedAt sql.NullTime
		if err := rows.Scan(
			&ws.ID, &ws.Name, &ws.Slug, &ws.Plan, &ws.OwnerID, &ws.Personal,
			&ws.CreatedAt, &ws.UpdatedAt, &deletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		result = append(result, ws)
	}

	return result, nil
}

// CountOwnedWorkspaces counts live workspaces owned by the user, the
// personal workspace included.
func (s *PostgresService) CountOwnedWorkspaces(userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM workspaces WHERE owner_id = $1 AND deleted_at IS NULL", userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned workspaces: %w", err)
	}
	return count, nil
}

// DeleteWorkspace soft-deletes a workspace. Memberships, invitations, API
// keys, and webhook endpoints are removed by FK cascade on hard delete; the
// soft-delete marker takes the workspace out of every query immediately.
// Personal workspaces are refused.
func (s *PostgresService) DeleteWorkspace(id int64) error {
	ws, err := s.GetWorkspace(id)
	if err != nil {
		return err
	}
	if ws.Personal {
		return ErrPersonalWorkspace
	}

	result, err := s.db.Exec(
		"UPDATE workspaces SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrWorkspaceNotFound
	}

	return nil
}

// UpdatePlan sets the workspace plan tier. Called by the billing webhook
// consumer; limits take effect on the next check because counts are never
// cached.
func (s *PostgresService) UpdatePlan(workspaceID int64, plan PlanTier) error {
	if !plan.Valid() {
		return fmt.Errorf("unknown plan tier %q", plan)
	}

	result, err := s.db.Exec(
		"UPDATE workspaces SET plan = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL",
		plan, workspaceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrWorkspaceNotFound
	}

	return nil
}

// generateSlug lowercases the name and strips everything but [a-z0-9-]
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}

// generateToken generates n random bytes as a hex string
func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
