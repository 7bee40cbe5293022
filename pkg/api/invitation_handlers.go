package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/middleware"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/plans"
	"github.com/workroomhq/workroom/pkg/webhooks"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// InvitationHandlers serves the invitation lifecycle.
type InvitationHandlers struct {
	workspaces workspaces.Service
	plans      *plans.Checker
	emitter    *activity.Emitter
	dispatcher *webhooks.Dispatcher
	metrics    *observability.Metrics
}

// NewInvitationHandlers creates an InvitationHandlers.
func NewInvitationHandlers(ws workspaces.Service, checker *plans.Checker, emitter *activity.Emitter, dispatcher *webhooks.Dispatcher, metrics *observability.Metrics) *InvitationHandlers {
	return &InvitationHandlers{
		workspaces: ws,
		plans:      checker,
		emitter:    emitter,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// Create handles POST .../invitations. Pending invitations reserve team
// seats, so the quota check covers members plus open invitations.
func (h *InvitationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	actor := middleware.GetAuthContext(r)

	var req workspaces.InviteMemberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}

	allowed, message, err := h.plans.CanInvite(workspace.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !allowed {
		quotaDenied(h.metrics, w, "team member", workspace.Plan, message)
		return
	}

	invitation := &workspaces.Invitation{
		WorkspaceID: workspace.ID,
		Email:       req.Email,
		Role:        req.Role,
	}
	if actor.Kind == auth.ActorSession {
		invitation.InvitedBy = actor.UserID
	}

	if err := h.workspaces.CreateInvitation(invitation); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	h.emitter.Emit(workspace.ID, actorID(actor), activity.EventMemberInvited, map[string]interface{}{
		"email": req.Email,
		"role":  req.Role,
	})
	h.dispatcher.Dispatch(workspace.ID, activity.EventMemberInvited, map[string]interface{}{
		"email": req.Email,
		"role":  req.Role,
	})

	httputil.WriteCreated(w, invitation)
}

// List handles GET .../invitations; only unexpired invitations are shown.
func (h *InvitationHandlers) List(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.workspaces.ListInvitations(middleware.GetWorkspace(r).ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// Cancel handles DELETE .../invitations/{id}.
func (h *InvitationHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	invitationID := pathID(r, "id")

	if err := h.workspaces.CancelInvitation(workspace.ID, invitationID); err != nil {
		if errors.Is(err, workspaces.ErrInvitationNotFound) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.emitter.Emit(workspace.ID, actorID(middleware.GetAuthContext(r)), activity.EventInvitationCancelled, map[string]interface{}{
		"invitation_id": invitationID,
	})

	httputil.WriteNoContent(w)
}

// Accept handles POST /api/v1/invitations/{token}/accept. The acceptor is
// the session user, whatever email the invitation was sent to.
func (h *InvitationHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.Kind != auth.ActorSession {
		httputil.WriteForbidden(w, "accepting an invitation requires a user session")
		return
	}

	token := mux.Vars(r)["token"]
	membership, err := h.workspaces.AcceptInvitation(token, actor.UserID, actor.Email)
	if err != nil {
		switch {
		case errors.Is(err, workspaces.ErrInvitationNotFound):
			httputil.WriteNotFoundError(w, err.Error())
		case errors.Is(err, workspaces.ErrInvitationExpired):
			httputil.WriteErrorMessage(w, http.StatusGone, err.Error())
		case errors.Is(err, workspaces.ErrAlreadyMember):
			httputil.WriteConflict(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	h.emitter.Emit(membership.WorkspaceID, &actor.UserID, activity.EventMemberJoined, map[string]interface{}{
		"user_id": actor.UserID,
		"role":    membership.Role,
	})
	h.dispatcher.Dispatch(membership.WorkspaceID, activity.EventMemberJoined, map[string]interface{}{
		"user_id": actor.UserID,
		"role":    membership.Role,
	})

	httputil.WriteSuccess(w, membership)
}
