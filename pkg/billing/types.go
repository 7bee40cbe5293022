// Package billing tracks workspace subscriptions and keeps the workspace
// plan in sync with Stripe via its webhook events.
package billing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/workroomhq/workroom/pkg/workspaces"
)

// SubscriptionStatus mirrors Stripe's subscription status values.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is the billing record for a workspace. One row per
// workspace; personal and free workspaces may have none.
type Subscription struct {
	ID                   int64               `json:"id"`
	WorkspaceID          int64               `json:"workspace_id"`
	StripeCustomerID     string              `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string              `json:"stripe_subscription_id,omitempty"`
	Plan                 workspaces.PlanTier `json:"plan"`
	Status               SubscriptionStatus  `json:"status"`
	CurrentPeriodEnd     *time.Time          `json:"current_period_end,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// StripeEvent is the envelope of a Stripe webhook payload.
type StripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// stripeSubscription is the subset of Stripe's subscription object we read.
type stripeSubscription struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Metadata         struct {
		WorkspaceID string `json:"workspace_id"`
		Plan        string `json:"plan"`
	} `json:"metadata"`
	Items struct {
		Data []struct {
			Price struct {
				LookupKey string `json:"lookup_key"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Errors returned by the billing service.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
)

// Service defines billing operations.
type Service interface {
	GetSubscription(workspaceID int64) (*Subscription, error)
	HandleStripeWebhook(payload []byte, signatureHeader string) error
}
