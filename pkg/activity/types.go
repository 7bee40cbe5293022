// Package activity records workspace activity events: who did what, when.
// Recording is fire-and-forget so a logging failure never blocks the
// operation being recorded.
package activity

import (
	"time"
)

// EventType identifies what happened. The enumeration is closed; handlers
// emit only these values.
type EventType string

const (
	EventWorkspaceCreated     EventType = "workspace.created"
	EventWorkspaceDeleted     EventType = "workspace.deleted"
	EventWorkspacePlanChanged EventType = "workspace.plan_changed"

	EventMemberInvited        EventType = "team.member_invited"
	EventMemberJoined         EventType = "team.member_joined"
	EventMemberRemoved        EventType = "team.member_removed"
	EventRoleChanged          EventType = "team.role_changed"
	EventPermissionsChanged   EventType = "team.permissions_changed"
	EventOwnershipTransferred EventType = "team.ownership_transferred"
	EventInvitationCancelled  EventType = "team.invitation_cancelled"

	EventAPIKeyCreated EventType = "apikey.created"
	EventAPIKeyRevoked EventType = "apikey.revoked"

	EventWebhookCreated EventType = "webhook.created"
	EventWebhookDeleted EventType = "webhook.deleted"
)

// Event is one activity log entry. ActorID is nil for system-originated
// events (e.g. plan changes driven by billing webhooks).
type Event struct {
	ID          string                 `json:"id"`
	WorkspaceID int64                  `json:"workspace_id"`
	ActorID     *int64                 `json:"actor_id,omitempty"`
	Type        EventType              `json:"type"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Recorder persists and lists events.
type Recorder interface {
	Record(event *Event) error
	List(workspaceID int64, limit int) ([]*Event, error)
}
