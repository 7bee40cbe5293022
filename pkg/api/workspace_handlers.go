package api

import (
	"errors"
	"net/http"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/middleware"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/plans"
	"github.com/workroomhq/workroom/pkg/webhooks"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// WorkspaceHandlers serves workspace CRUD.
type WorkspaceHandlers struct {
	workspaces workspaces.Service
	plans      *plans.Checker
	emitter    *activity.Emitter
	dispatcher *webhooks.Dispatcher
	metrics    *observability.Metrics
}

// NewWorkspaceHandlers creates a WorkspaceHandlers.
func NewWorkspaceHandlers(ws workspaces.Service, checker *plans.Checker, emitter *activity.Emitter, dispatcher *webhooks.Dispatcher, metrics *observability.Metrics) *WorkspaceHandlers {
	return &WorkspaceHandlers{
		workspaces: ws,
		plans:      checker,
		emitter:    emitter,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// Create handles POST /api/v1/workspaces. Sessions only: a new workspace
// has no API key yet, and keys are pinned to their own workspace anyway.
func (h *WorkspaceHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.Kind != auth.ActorSession {
		httputil.WriteForbidden(w, "workspace creation requires a user session")
		return
	}

	var req workspaces.CreateWorkspaceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "workspace name is required")
		return
	}

	allowed, message, err := h.plans.CanCreateWorkspace(actor.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !allowed {
		quotaDenied(h.metrics, w, "workspace", "", message)
		return
	}

	workspace, err := h.workspaces.CreateWorkspace(req.Name, actor.UserID, false)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.emitter.Emit(workspace.ID, &actor.UserID, activity.EventWorkspaceCreated, map[string]interface{}{
		"name": workspace.Name,
		"slug": workspace.Slug,
	})

	httputil.WriteCreated(w, workspace)
}

// List handles GET /api/v1/workspaces for the session user.
func (h *WorkspaceHandlers) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAuthContext(r)
	if actor == nil || actor.Kind != auth.ActorSession {
		httputil.WriteForbidden(w, "listing workspaces requires a user session")
		return
	}

	list, err := h.workspaces.ListWorkspacesForUser(actor.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// Get handles GET /api/v1/workspaces/{workspace_id}.
func (h *WorkspaceHandlers) Get(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, middleware.GetWorkspace(r))
}

// Delete handles DELETE /api/v1/workspaces/{workspace_id}. Session actors
// must be the owner; personal workspaces are always refused.
func (h *WorkspaceHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	actor := middleware.GetAuthContext(r)

	if actor.Kind == auth.ActorSession && workspace.OwnerID != actor.UserID {
		httputil.WriteForbidden(w, "only the workspace owner can delete a workspace")
		return
	}

	if err := h.workspaces.DeleteWorkspace(workspace.ID); err != nil {
		switch {
		case errors.Is(err, workspaces.ErrPersonalWorkspace):
			httputil.WriteForbidden(w, err.Error())
		case errors.Is(err, workspaces.ErrWorkspaceNotFound):
			httputil.WriteNotFoundError(w, "workspace not found")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	h.emitter.Emit(workspace.ID, actorID(actor), activity.EventWorkspaceDeleted, map[string]interface{}{
		"name": workspace.Name,
	})
	h.dispatcher.Dispatch(workspace.ID, activity.EventWorkspaceDeleted, map[string]interface{}{
		"workspace_id": workspace.ID,
		"name":         workspace.Name,
	})

	httputil.WriteNoContent(w)
}

