package plans

import (
	"database/sql"
	"fmt"

	"github.com/workroomhq/workroom/pkg/workspaces"
)

// Checker answers "is there headroom to create one more X?" with a
// user-facing message. Every check queries the store directly; nothing is
// cached, so callers always see the current plan and counts. Checks run
// before the mutating write, never as create-then-rollback.
type Checker struct {
	db *sql.DB
}

// NewChecker creates a plan limit checker over the service database.
func NewChecker(db *sql.DB) *Checker {
	return &Checker{db: db}
}

// CanCreateWorkspace checks the user's owned-workspace count (personal
// workspace included) against the plan of the user's personal workspace.
func (c *Checker) CanCreateWorkspace(userID int64) (bool, string, error) {
	var plan workspaces.PlanTier
	err := c.db.QueryRow(
		"SELECT plan FROM workspaces WHERE owner_id = $1 AND personal = TRUE AND deleted_at IS NULL", userID,
	).Scan(&plan)
	if err == sql.ErrNoRows {
		return false, "", workspaces.ErrWorkspaceNotFound
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to get personal workspace plan: %w", err)
	}

	limit := LimitsFor(plan).Workspaces
	if limit == Unlimited {
		return true, UnlimitedMessage("workspace"), nil
	}

	var used int64
	err = c.db.QueryRow(
		"SELECT COUNT(*) FROM workspaces WHERE owner_id = $1 AND deleted_at IS NULL", userID,
	).Scan(&used)
	if err != nil {
		return false, "", fmt.Errorf("failed to count owned workspaces: %w", err)
	}

	return c.verdict(used, int64(limit), "workspace")
}

// CanInvite checks members plus pending invitations against the
// team_members limit. Pending invitations reserve seats so concurrent
// invites cannot oversubscribe the plan.
func (c *Checker) CanInvite(workspaceID int64) (bool, string, error) {
	plan, err := c.workspacePlan(workspaceID)
	if err != nil {
		return false, "", err
	}

	limit := LimitsFor(plan).TeamMembers
	if limit == Unlimited {
		return true, UnlimitedMessage("team member"), nil
	}

	var used int64
	err = c.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1) +
			(SELECT COUNT(*) FROM workspace_invitations WHERE workspace_id = $1 AND expires_at > NOW())
	`, workspaceID).Scan(&used)
	if err != nil {
		return false, "", fmt.Errorf("failed to count team seats: %w", err)
	}

	remaining := int64(limit) - used
	if remaining <= 0 {
		return false, InviteMessage(0, used, int64(limit)), nil
	}
	return true, InviteMessage(remaining, used, int64(limit)), nil
}

// CanCreateAPIKey checks the workspace's key count against the api_keys limit.
func (c *Checker) CanCreateAPIKey(workspaceID int64) (bool, string, error) {
	plan, err := c.workspacePlan(workspaceID)
	if err != nil {
		return false, "", err
	}

	limit := LimitsFor(plan).APIKeys
	if limit == Unlimited {
		return true, UnlimitedMessage("API key"), nil
	}

	var used int64
	err = c.db.QueryRow(
		"SELECT COUNT(*) FROM api_keys WHERE workspace_id = $1", workspaceID,
	).Scan(&used)
	if err != nil {
		return false, "", fmt.Errorf("failed to count api keys: %w", err)
	}

	return c.verdict(used, int64(limit), "API key")
}

// CanCreateWebhook checks the workspace's endpoint count against the
// webhooks limit.
func (c *Checker) CanCreateWebhook(workspaceID int64) (bool, string, error) {
	plan, err := c.workspacePlan(workspaceID)
	if err != nil {
		return false, "", err
	}

	limit := LimitsFor(plan).Webhooks
	if limit == Unlimited {
		return true, UnlimitedMessage("webhook"), nil
	}

	var used int64
	err = c.db.QueryRow(
		"SELECT COUNT(*) FROM webhook_endpoints WHERE workspace_id = $1", workspaceID,
	).Scan(&used)
	if err != nil {
		return false, "", fmt.Errorf("failed to count webhook endpoints: %w", err)
	}

	return c.verdict(used, int64(limit), "webhook")
}

func (c *Checker) workspacePlan(workspaceID int64) (workspaces.PlanTier, error) {
	var plan workspaces.PlanTier
	err := c.db.QueryRow(
		"SELECT plan FROM workspaces WHERE id = $1 AND deleted_at IS NULL", workspaceID,
	).Scan(&plan)
	if err == sql.ErrNoRows {
		return "", workspaces.ErrWorkspaceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get workspace plan: %w", err)
	}
	return plan, nil
}

func (c *Checker) verdict(used, limit int64, resource string) (bool, string, error) {
	remaining := limit - used
	if remaining <= 0 {
		return false, CreateMessage(0, resource, used, limit), nil
	}
	return true, CreateMessage(remaining, resource, used, limit), nil
}
