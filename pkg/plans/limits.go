// Package plans maps plan tiers to resource limits and checks live usage
// against them. Counts are recomputed on every check so a plan change takes
// effect immediately.
package plans

import (
	"fmt"

	"github.com/workroomhq/workroom/pkg/workspaces"
)

// Unlimited marks a resource without a cap.
const Unlimited = -1

// Limits holds per-resource caps for a plan tier.
type Limits struct {
	Workspaces  int `json:"workspaces"`
	TeamMembers int `json:"team_members"`
	APIKeys     int `json:"api_keys"`
	Webhooks    int `json:"webhooks"`
}

// Table maps each plan tier to its limits. Deployments may override the
// values at boot; the defaults are the shipped pricing table.
var Table = map[workspaces.PlanTier]Limits{
	workspaces.PlanFree: {
		Workspaces:  1,
		TeamMembers: 3,
		APIKeys:     2,
		Webhooks:    1,
	},
	workspaces.PlanPro: {
		Workspaces:  5,
		TeamMembers: 15,
		APIKeys:     10,
		Webhooks:    5,
	},
	workspaces.PlanBusiness: {
		Workspaces:  Unlimited,
		TeamMembers: Unlimited,
		APIKeys:     Unlimited,
		Webhooks:    Unlimited,
	},
}

// LimitsFor returns the limit table row for a plan. Unknown tiers fall back
// to free so a bad value can only under-grant, never over-grant.
func LimitsFor(plan workspaces.PlanTier) Limits {
	if limits, ok := Table[plan]; ok {
		return limits
	}
	return Table[workspaces.PlanFree]
}

// CreateMessage is the user-facing remaining-headroom message for finite
// create limits.
func CreateMessage(remaining int64, resource string, used, limit int64) string {
	return fmt.Sprintf("You can create %d more %s(s). (%d/%d used)", remaining, resource, used, limit)
}

// InviteMessage is the variant used for team-member invitations.
func InviteMessage(remaining, used, limit int64) string {
	return fmt.Sprintf("You can invite %d more member(s). (%d/%d used)", remaining, used, limit)
}

// UnlimitedMessage is the message for plans without a cap on the resource.
func UnlimitedMessage(resource string) string {
	return fmt.Sprintf("Your plan has no %s limit.", resource)
}
