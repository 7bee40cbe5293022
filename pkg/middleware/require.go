package middleware

import (
	"net/http"

	"github.com/workroomhq/workroom/pkg/apikeys"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// Authorizer enforces per-endpoint access: scopes for API key actors,
// membership and capabilities for session actors.
type Authorizer struct {
	workspaces workspaces.Service
	metrics    *observability.Metrics
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(ws workspaces.Service, metrics *observability.Metrics) *Authorizer {
	return &Authorizer{workspaces: ws, metrics: metrics}
}

// RequireScope gates an endpoint on a scope for API key actors; session
// actors only need to be a member of the workspace.
func (a *Authorizer) RequireScope(scope auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, workspace := a.requestActor(w, r)
			if authCtx == nil {
				return
			}

			if authCtx.Kind == auth.ActorAPIKey {
				if !authCtx.HasScope(scope) {
					httputil.WriteForbidden(w, apikeys.ErrInsufficientScope.Error())
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if _, err := a.workspaces.GetMembership(workspace.ID, authCtx.UserID); err != nil {
				httputil.WriteForbidden(w, "not a member of this workspace")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCapability gates an endpoint on a capability for session actors
// and a scope for API key actors. Owners pass unconditionally; everyone
// else goes through role defaults and per-member overrides.
func (a *Authorizer) RequireCapability(capability auth.Capability, scope auth.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, workspace := a.requestActor(w, r)
			if authCtx == nil {
				return
			}

			if authCtx.Kind == auth.ActorAPIKey {
				if !authCtx.HasScope(scope) {
					httputil.WriteForbidden(w, apikeys.ErrInsufficientScope.Error())
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := a.workspaces.Can(authCtx.UserID, workspace.ID, capability)
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			if !allowed {
				if a.metrics != nil {
					a.metrics.CapabilityDenialsTotal.WithLabelValues(string(capability)).Inc()
				}
				httputil.WriteForbidden(w, "You do not have permission to perform this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestActor pulls the actor and workspace set by the earlier layers,
// failing the request when either is absent.
func (a *Authorizer) requestActor(w http.ResponseWriter, r *http.Request) (*auth.AuthContext, *workspaces.Workspace) {
	authCtx := GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, apikeys.ErrKeyMissing.Error())
		return nil, nil
	}
	workspace := GetWorkspace(r)
	if workspace == nil {
		httputil.WriteNotFoundError(w, "workspace not found")
		return nil, nil
	}
	return authCtx, workspace
}
