package sso

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// UserProvisioner creates or refreshes a user record on login and makes
// sure every user has a personal workspace.
type UserProvisioner struct {
	db         *sql.DB
	workspaces workspaces.Service
	logger     *observability.Logger
}

// NewUserProvisioner creates a UserProvisioner.
func NewUserProvisioner(db *sql.DB, ws workspaces.Service, logger *observability.Logger) *UserProvisioner {
	return &UserProvisioner{db: db, workspaces: ws, logger: logger}
}

// Provision upserts the user keyed by email and stamps last_login_at. The
// external ID from the identity provider is recorded on first login and
// never overwritten afterwards.
func (p *UserProvisioner) Provision(identity *Identity) (*auth.User, error) {
	query := `
		INSERT INTO users (email, full_name, external_id, last_login_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (email) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			external_id = COALESCE(users.external_id, EXCLUDED.external_id),
			last_login_at = NOW(),
			updated_at = NOW()
		RETURNING id, email, full_name, created_at, updated_at, last_login_at
	`
	user := &auth.User{}
	var lastLogin sql.NullTime
	err := p.db.QueryRow(query, identity.Email, identity.FullName, identity.ExternalID).
		Scan(&user.ID, &user.Email, &user.FullName, &user.CreatedAt, &user.UpdatedAt, &lastLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}

	if err := p.ensurePersonalWorkspace(user); err != nil {
		return nil, err
	}

	return user, nil
}

// ensurePersonalWorkspace creates the user's personal workspace on first
// login. Personal workspaces are undeletable and always on the free tier
// until upgraded.
func (p *UserProvisioner) ensurePersonalWorkspace(user *auth.User) error {
	_, err := p.workspaces.GetPersonalWorkspace(user.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, workspaces.ErrWorkspaceNotFound) {
		return fmt.Errorf("failed to look up personal workspace: %w", err)
	}

	workspace, err := p.workspaces.CreateWorkspace(personalWorkspaceName(user), user.ID, true)
	if err != nil {
		return fmt.Errorf("failed to create personal workspace: %w", err)
	}

	p.logger.WithFields(map[string]interface{}{
		"user_id":      user.ID,
		"workspace_id": workspace.ID,
	}).Info("created personal workspace")

	return nil
}

func personalWorkspaceName(user *auth.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	if at := strings.Index(user.Email, "@"); at > 0 {
		return user.Email[:at]
	}
	return user.Email
}
