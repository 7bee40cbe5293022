package billing

import (
	"database/sql"
	"fmt"

	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// PostgresService implements Service backed by PostgreSQL. Plan changes
// received from Stripe are propagated to the workspaces service so that
// quota checks see the new tier immediately.
type PostgresService struct {
	db            *sql.DB
	workspaces    workspaces.Service
	webhookSecret string
	logger        *observability.Logger
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB, ws workspaces.Service, webhookSecret string, logger *observability.Logger) *PostgresService {
	return &PostgresService{
		db:            db,
		workspaces:    ws,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// GetSubscription returns the billing record for a workspace.
func (s *PostgresService) GetSubscription(workspaceID int64) (*Subscription, error) {
	query := `
		SELECT id, workspace_id, stripe_customer_id, stripe_subscription_id,
		       plan, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE workspace_id = $1
	`
	sub := &Subscription{}
	var customerID, subscriptionID sql.NullString
	var periodEnd sql.NullTime
	err := s.db.QueryRow(query, workspaceID).Scan(
		&sub.ID, &sub.WorkspaceID, &customerID, &subscriptionID,
		&sub.Plan, &sub.Status, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	if customerID.Valid {
		sub.StripeCustomerID = customerID.String
	}
	if subscriptionID.Valid {
		sub.StripeSubscriptionID = subscriptionID.String
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}

	return sub, nil
}

// upsertSubscription writes the workspace's billing row, one per workspace.
func (s *PostgresService) upsertSubscription(sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (workspace_id, stripe_customer_id, stripe_subscription_id, plan, status, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workspace_id) DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = NOW()
	`
	_, err := s.db.Exec(query, sub.WorkspaceID, sub.StripeCustomerID, sub.StripeSubscriptionID,
		sub.Plan, sub.Status, sub.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// workspaceForCustomer resolves a workspace by its Stripe customer ID, for
// events whose subscription metadata does not carry the workspace ID.
func (s *PostgresService) workspaceForCustomer(customerID string) (int64, error) {
	var workspaceID int64
	err := s.db.QueryRow(
		"SELECT workspace_id FROM subscriptions WHERE stripe_customer_id = $1", customerID,
	).Scan(&workspaceID)
	if err == sql.ErrNoRows {
		return 0, ErrSubscriptionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve customer: %w", err)
	}
	return workspaceID, nil
}
