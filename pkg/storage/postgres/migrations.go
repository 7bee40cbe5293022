package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full schema, ordered by version.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255) NOT NULL DEFAULT '',
					external_id VARCHAR(255) UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create workspaces table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspaces (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					plan VARCHAR(50) NOT NULL DEFAULT 'free',
					owner_id BIGINT NOT NULL REFERENCES users(id),
					personal BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_workspaces_owner_id ON workspaces(owner_id);
				CREATE INDEX IF NOT EXISTS idx_workspaces_slug ON workspaces(slug);
			`,
		},
		{
			Version:     3,
			Description: "Create workspace_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspace_members (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL DEFAULT 'member',
					permission_overrides JSONB NOT NULL DEFAULT '[]',
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(workspace_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_workspace_members_workspace_id ON workspace_members(workspace_id);
				CREATE INDEX IF NOT EXISTS idx_workspace_members_user_id ON workspace_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create workspace_invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspace_invitations (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(50) NOT NULL DEFAULT 'member',
					token VARCHAR(255) NOT NULL UNIQUE,
					invited_by BIGINT REFERENCES users(id),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					UNIQUE(workspace_id, email)
				);

				CREATE INDEX IF NOT EXISTS idx_workspace_invitations_token ON workspace_invitations(token);
				CREATE INDEX IF NOT EXISTS idx_workspace_invitations_workspace_id ON workspace_invitations(workspace_id);
			`,
		},
		{
			Version:     5,
			Description: "Create api_keys table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_keys (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					created_by BIGINT REFERENCES users(id),
					name VARCHAR(255) NOT NULL,
					key_hash VARCHAR(64) NOT NULL UNIQUE,
					key_prefix VARCHAR(20) NOT NULL,
					scopes JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_api_keys_key_hash ON api_keys(key_hash);
				CREATE INDEX IF NOT EXISTS idx_api_keys_workspace_id ON api_keys(workspace_id);
			`,
		},
		{
			Version:     6,
			Description: "Create webhook_endpoints and webhook_deliveries tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS webhook_endpoints (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					url TEXT NOT NULL,
					secret VARCHAR(255) NOT NULL,
					events JSONB NOT NULL DEFAULT '[]',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_by BIGINT REFERENCES users(id),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_webhook_endpoints_workspace_id ON webhook_endpoints(workspace_id);

				CREATE TABLE IF NOT EXISTS webhook_deliveries (
					id VARCHAR(36) PRIMARY KEY,
					endpoint_id BIGINT NOT NULL REFERENCES webhook_endpoints(id) ON DELETE CASCADE,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					status_code INT,
					attempts INT NOT NULL DEFAULT 0,
					error TEXT,
					delivered_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_endpoint_id ON webhook_deliveries(endpoint_id);
			`,
		},
		{
			Version:     7,
			Description: "Create activity_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS activity_events (
					id VARCHAR(36) PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					actor_id BIGINT,
					event_type VARCHAR(100) NOT NULL,
					metadata JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_activity_events_workspace_id ON activity_events(workspace_id, created_at DESC);
			`,
		},
		{
			Version:     8,
			Description: "Create subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE UNIQUE,
					stripe_customer_id VARCHAR(255),
					stripe_subscription_id VARCHAR(255),
					plan VARCHAR(50) NOT NULL DEFAULT 'free',
					status VARCHAR(50) NOT NULL DEFAULT 'active',
					current_period_end TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations applies pending migrations, tracking applied versions in a
// schema_migrations table.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, m := range GetMigrations() {
		var exists bool
		err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
