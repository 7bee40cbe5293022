package api

import (
	"errors"
	"net/http"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/middleware"
	"github.com/workroomhq/workroom/pkg/webhooks"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// MemberHandlers serves team membership management.
type MemberHandlers struct {
	workspaces workspaces.Service
	emitter    *activity.Emitter
	dispatcher *webhooks.Dispatcher
}

// NewMemberHandlers creates a MemberHandlers.
func NewMemberHandlers(ws workspaces.Service, emitter *activity.Emitter, dispatcher *webhooks.Dispatcher) *MemberHandlers {
	return &MemberHandlers{workspaces: ws, emitter: emitter, dispatcher: dispatcher}
}

// List handles GET .../members.
func (h *MemberHandlers) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.workspaces.ListMembers(middleware.GetWorkspace(r).ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// UpdateRole handles PUT .../members/{user_id}/role. Only admin and member
// are accepted; the owner row never changes here.
func (h *MemberHandlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	userID := pathID(r, "user_id")

	var req workspaces.UpdateMemberRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.workspaces.UpdateMemberRole(workspace.ID, userID, req.Role); err != nil {
		switch {
		case errors.Is(err, workspaces.ErrMemberNotFound):
			httputil.WriteNotFoundError(w, err.Error())
		case errors.Is(err, workspaces.ErrOwnerImmutable):
			httputil.WriteConflict(w, err.Error())
		default:
			httputil.WriteBadRequest(w, err.Error())
		}
		return
	}

	actor := middleware.GetAuthContext(r)
	h.emitter.Emit(workspace.ID, actorID(actor), activity.EventRoleChanged, map[string]interface{}{
		"user_id": userID,
		"role":    req.Role,
	})
	h.dispatcher.Dispatch(workspace.ID, activity.EventRoleChanged, map[string]interface{}{
		"user_id": userID,
		"role":    req.Role,
	})

	httputil.WriteNoContent(w)
}

// UpdatePermissions handles PUT .../members/{user_id}/permissions,
// replacing the member's capability overrides wholesale.
func (h *MemberHandlers) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	userID := pathID(r, "user_id")

	var req workspaces.UpdateMemberPermissionsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.workspaces.SetMemberPermissions(workspace.ID, userID, req.Capabilities); err != nil {
		switch {
		case errors.Is(err, workspaces.ErrMemberNotFound):
			httputil.WriteNotFoundError(w, err.Error())
		case errors.Is(err, workspaces.ErrOwnerOverrides):
			httputil.WriteConflict(w, err.Error())
		default:
			httputil.WriteBadRequest(w, err.Error())
		}
		return
	}

	actor := middleware.GetAuthContext(r)
	h.emitter.Emit(workspace.ID, actorID(actor), activity.EventPermissionsChanged, map[string]interface{}{
		"user_id":      userID,
		"capabilities": req.Capabilities,
	})

	httputil.WriteNoContent(w)
}

// Remove handles DELETE .../members/{user_id}.
func (h *MemberHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	userID := pathID(r, "user_id")

	if err := h.workspaces.RemoveMember(workspace.ID, userID); err != nil {
		switch {
		case errors.Is(err, workspaces.ErrMemberNotFound):
			httputil.WriteNotFoundError(w, err.Error())
		case errors.Is(err, workspaces.ErrOwnerImmutable):
			httputil.WriteConflict(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	actor := middleware.GetAuthContext(r)
	h.emitter.Emit(workspace.ID, actorID(actor), activity.EventMemberRemoved, map[string]interface{}{
		"user_id": userID,
	})
	h.dispatcher.Dispatch(workspace.ID, activity.EventMemberRemoved, map[string]interface{}{
		"user_id": userID,
	})

	httputil.WriteNoContent(w)
}

// TransferOwnership handles POST .../transfer-ownership. Session actors
// must be the current owner.
func (h *MemberHandlers) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	actor := middleware.GetAuthContext(r)

	if actor.Kind == auth.ActorSession && workspace.OwnerID != actor.UserID {
		httputil.WriteForbidden(w, "only the workspace owner can transfer ownership")
		return
	}

	var req workspaces.TransferOwnershipRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.workspaces.TransferOwnership(workspace.ID, req.NewOwnerID); err != nil {
		switch {
		case errors.Is(err, workspaces.ErrMemberNotFound):
			httputil.WriteNotFoundError(w, err.Error())
		case errors.Is(err, workspaces.ErrTargetNotAdmin), errors.Is(err, workspaces.ErrPersonalWorkspace):
			httputil.WriteConflict(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	h.emitter.Emit(workspace.ID, actorID(actor), activity.EventOwnershipTransferred, map[string]interface{}{
		"previous_owner_id": workspace.OwnerID,
		"new_owner_id":      req.NewOwnerID,
	})
	h.dispatcher.Dispatch(workspace.ID, activity.EventOwnershipTransferred, map[string]interface{}{
		"previous_owner_id": workspace.OwnerID,
		"new_owner_id":      req.NewOwnerID,
	})

	httputil.WriteNoContent(w)
}
