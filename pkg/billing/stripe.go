package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/workroomhq/workroom/pkg/workspaces"
)

// signatureTolerance bounds how old a signed webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// VerifyStripeSignature checks a Stripe-Signature header value of the form
// "t=<unix>,v1=<hex hmac>" against the payload. The signed message is
// "<t>.<payload>" keyed with the endpoint's webhook secret.
func VerifyStripeSignature(payload []byte, header, secret string, now time.Time) error {
	var timestamp int64
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return ErrInvalidSignature
	}
	if now.Sub(time.Unix(timestamp, 0)) > signatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// HandleStripeWebhook verifies and applies one Stripe event. Unknown event
// types are acknowledged and ignored.
func (s *PostgresService) HandleStripeWebhook(payload []byte, signatureHeader string) error {
	if err := VerifyStripeSignature(payload, signatureHeader, s.webhookSecret, time.Now()); err != nil {
		return err
	}

	var event StripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse webhook event: %w", err)
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return s.applySubscriptionEvent(&event, false)
	case "customer.subscription.deleted":
		return s.applySubscriptionEvent(&event, true)
	default:
		s.logger.WithField("event_type", event.Type).Debug("ignoring stripe event")
		return nil
	}
}

// applySubscriptionEvent syncs the subscription row and workspace plan from
// a customer.subscription.* event. Deleted subscriptions downgrade the
// workspace to the free tier.
func (s *PostgresService) applySubscriptionEvent(event *StripeEvent, deleted bool) error {
	var stripeSub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &stripeSub); err != nil {
		return fmt.Errorf("failed to parse subscription object: %w", err)
	}

	workspaceID, err := s.resolveWorkspace(&stripeSub)
	if err != nil {
		return err
	}

	plan := workspaces.PlanFree
	status := SubscriptionStatusCanceled
	if !deleted {
		plan = planFromSubscription(&stripeSub)
		status = SubscriptionStatus(stripeSub.Status)
	}

	sub := &Subscription{
		WorkspaceID:          workspaceID,
		StripeCustomerID:     stripeSub.Customer,
		StripeSubscriptionID: stripeSub.ID,
		Plan:                 plan,
		Status:               status,
	}
	if stripeSub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(stripeSub.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &periodEnd
	}

	if err := s.upsertSubscription(sub); err != nil {
		return err
	}
	if err := s.workspaces.UpdatePlan(workspaceID, plan); err != nil {
		return fmt.Errorf("failed to apply plan change: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"workspace_id": workspaceID,
		"plan":         plan,
		"status":       status,
	}).Info("subscription synced from stripe")

	return nil
}

// resolveWorkspace finds the workspace for a subscription, preferring the
// workspace_id we stamp into subscription metadata at checkout.
func (s *PostgresService) resolveWorkspace(sub *stripeSubscription) (int64, error) {
	if sub.Metadata.WorkspaceID != "" {
		workspaceID, err := strconv.ParseInt(sub.Metadata.WorkspaceID, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid workspace_id in subscription metadata: %w", err)
		}
		return workspaceID, nil
	}
	return s.workspaceForCustomer(sub.Customer)
}

// planFromSubscription maps a Stripe subscription onto a plan tier. The
// metadata plan wins; otherwise the first price's lookup key is tried.
// Anything unrecognized falls back to free so a mapping gap can never
// over-grant.
func planFromSubscription(sub *stripeSubscription) workspaces.PlanTier {
	if plan := workspaces.PlanTier(sub.Metadata.Plan); plan.Valid() {
		return plan
	}
	if len(sub.Items.Data) > 0 {
		if plan := workspaces.PlanTier(sub.Items.Data[0].Price.LookupKey); plan.Valid() {
			return plan
		}
	}
	return workspaces.PlanFree
}
