package middleware

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/contextkeys"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// WorkspaceResolver loads the workspace named in the route and pins API key
// actors to their own workspace.
type WorkspaceResolver struct {
	workspaces workspaces.Service
}

// NewWorkspaceResolver creates a WorkspaceResolver.
func NewWorkspaceResolver(ws workspaces.Service) *WorkspaceResolver {
	return &WorkspaceResolver{workspaces: ws}
}

// Handler resolves {workspace_id} and stores the workspace in the context.
// An API key used against another workspace gets the same 404 as a
// workspace that does not exist.
func (m *WorkspaceResolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workspaceID, err := strconv.ParseInt(mux.Vars(r)["workspace_id"], 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid workspace ID")
			return
		}

		authCtx := GetAuthContext(r)
		if authCtx != nil && authCtx.Kind == auth.ActorAPIKey && authCtx.WorkspaceID != workspaceID {
			httputil.WriteNotFoundError(w, "workspace not found")
			return
		}

		workspace, err := m.workspaces.GetWorkspace(workspaceID)
		if err != nil {
			httputil.WriteNotFoundError(w, "workspace not found")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithWorkspace(r.Context(), workspace)))
	})
}

// GetWorkspace extracts the resolved workspace from a request.
func GetWorkspace(r *http.Request) *workspaces.Workspace {
	workspace, _ := r.Context().Value(contextkeys.WorkspaceKey).(*workspaces.Workspace)
	return workspace
}
