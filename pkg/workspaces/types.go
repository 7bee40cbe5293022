package workspaces

import (
	"errors"
	"time"

	"github.com/workroomhq/workroom/pkg/auth"
)

// PlanTier represents subscription plan tiers
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanPro      PlanTier = "pro"
	PlanBusiness PlanTier = "business"
)

// Valid reports whether p is a known plan tier.
func (p PlanTier) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanBusiness:
		return true
	}
	return false
}

// Workspace represents a tenant. Every user has exactly one personal
// workspace, created at signup; it can never be deleted or transferred.
type Workspace struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Plan      PlanTier   `json:"plan"`
	OwnerID   int64      `json:"owner_id"`
	Personal  bool       `json:"personal"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Membership ties a user to a workspace with a role and optional
// capability overrides. The override set is empty by default and never
// consulted for the owner.
type Membership struct {
	ID          int64              `json:"id"`
	WorkspaceID int64              `json:"workspace_id"`
	UserID      int64              `json:"user_id"`
	Role        auth.Role          `json:"role"`
	Overrides   auth.CapabilitySet `json:"permission_overrides"`
	JoinedAt    time.Time          `json:"joined_at"`

	// Denormalized user fields for listings
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Invitation represents a pending invitation to join a workspace.
type Invitation struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Email       string    `json:"email"`
	Role        auth.Role `json:"role"`
	Token       string    `json:"token,omitempty"`
	InvitedBy   int64     `json:"invited_by"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the invitation's window has passed.
func (i *Invitation) Expired() bool {
	return time.Now().After(i.ExpiresAt)
}

// InvitationTTL is how long an invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// CreateWorkspaceRequest represents a request to create a workspace
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

// InviteMemberRequest represents a request to invite a member
type InviteMemberRequest struct {
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

// UpdateMemberRoleRequest represents a request to change a member's role
type UpdateMemberRoleRequest struct {
	Role auth.Role `json:"role"`
}

// UpdateMemberPermissionsRequest replaces a member's capability overrides
type UpdateMemberPermissionsRequest struct {
	Capabilities []auth.Capability `json:"capabilities"`
}

// TransferOwnershipRequest names the member to promote
type TransferOwnershipRequest struct {
	NewOwnerID int64 `json:"new_owner_id"`
}

// Sentinel errors for outcomes callers must distinguish.
var (
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrMemberNotFound     = errors.New("member not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation has expired")
	ErrAlreadyMember      = errors.New("already a member of this workspace")
	ErrOwnerImmutable     = errors.New("the workspace owner cannot be removed or re-roled; transfer ownership first")
	ErrOwnerOverrides     = errors.New("permission overrides cannot be set on the workspace owner")
	ErrTargetNotAdmin     = errors.New("ownership can only be transferred to an admin")
	ErrPersonalWorkspace  = errors.New("personal workspaces cannot be deleted or transferred")
)

// Service defines workspace, membership, and invitation management.
type Service interface {
	// Workspace CRUD
	CreateWorkspace(name string, ownerID int64, personal bool) (*Workspace, error)
	GetWorkspace(id int64) (*Workspace, error)
	GetWorkspaceBySlug(slug string) (*Workspace, error)
	GetPersonalWorkspace(userID int64) (*Workspace, error)
	ListWorkspacesForUser(userID int64) ([]*Workspace, error)
	DeleteWorkspace(id int64) error
	UpdatePlan(workspaceID int64, plan PlanTier) error

	// Member management
	ListMembers(workspaceID int64) ([]*Membership, error)
	GetMembership(workspaceID, userID int64) (*Membership, error)
	UpdateMemberRole(workspaceID, userID int64, role auth.Role) error
	SetMemberPermissions(workspaceID, userID int64, caps []auth.Capability) error
	RemoveMember(workspaceID, userID int64) error
	TransferOwnership(workspaceID, newOwnerID int64) error

	// Invitation lifecycle
	CreateInvitation(invitation *Invitation) error
	GetInvitation(token string) (*Invitation, error)
	ListInvitations(workspaceID int64) ([]*Invitation, error)
	AcceptInvitation(token string, userID int64, userEmail string) (*Membership, error)
	CancelInvitation(workspaceID, invitationID int64) error
	CleanupExpiredInvitations() (int64, error)

	// Authorization
	Can(userID, workspaceID int64, capability auth.Capability) (bool, error)
}
