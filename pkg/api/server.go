// Package api wires the HTTP surface: routing, middleware ordering, and the
// request handlers for workspaces, team, API keys, webhooks, and activity.
package api

import (
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/apikeys"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/billing"
	"github.com/workroomhq/workroom/pkg/config"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/middleware"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/plans"
	"github.com/workroomhq/workroom/pkg/sso"
	"github.com/workroomhq/workroom/pkg/webhooks"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// Services bundles everything the HTTP layer depends on.
type Services struct {
	Workspaces workspaces.Service
	APIKeys    apikeys.Service
	Plans      *plans.Checker
	Billing    billing.Service
	Webhooks   *webhooks.PostgresStore
	Dispatcher *webhooks.Dispatcher
	Activity   activity.Recorder
	Emitter    *activity.Emitter
	Sessions   *sso.SessionManager
	SSO        *sso.Handlers
}

// Server is the API HTTP server.
type Server struct {
	router  *mux.Router
	config  *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer builds the router with the full middleware chain.
func NewServer(cfg *config.Config, services *Services, redisClient *redis.Client, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}

	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
	)
	if metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	// Unauthenticated surface: login flow and the Stripe consumer, which
	// authenticates by webhook signature instead.
	if services.SSO != nil {
		services.SSO.RegisterRoutes(s.router)
	}
	billingHandlers := NewBillingHandlers(services.Billing, logger)
	s.router.HandleFunc("/api/v1/billing/stripe/webhook", billingHandlers.StripeWebhook).Methods(http.MethodPost)

	// Everything else requires an actor.
	api := s.router.PathPrefix("/api/v1").Subrouter()
	authn := middleware.NewAuthenticator(services.APIKeys, services.Sessions, metrics, logger)
	api.Use(authn.Handler)
	if cfg.RateLimit.Enabled && redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window, logger)
		api.Use(limiter.Handler)
	}

	workspaceHandlers := NewWorkspaceHandlers(services.Workspaces, services.Plans, services.Emitter, services.Dispatcher, metrics)
	memberHandlers := NewMemberHandlers(services.Workspaces, services.Emitter, services.Dispatcher)
	invitationHandlers := NewInvitationHandlers(services.Workspaces, services.Plans, services.Emitter, services.Dispatcher, metrics)
	keyHandlers := NewAPIKeyHandlers(services.APIKeys, services.Plans, services.Emitter, services.Dispatcher, metrics)
	webhookHandlers := NewWebhookHandlers(services.Webhooks, services.Plans, services.Emitter, metrics)
	activityHandlers := NewActivityHandlers(services.Activity)

	// Session-only top level
	api.HandleFunc("/workspaces", workspaceHandlers.Create).Methods(http.MethodPost)
	api.HandleFunc("/workspaces", workspaceHandlers.List).Methods(http.MethodGet)
	api.HandleFunc("/invitations/{token}/accept", invitationHandlers.Accept).Methods(http.MethodPost)

	// Workspace-scoped
	scoped := api.PathPrefix("/workspaces/{workspace_id:[0-9]+}").Subrouter()
	resolver := middleware.NewWorkspaceResolver(services.Workspaces)
	scoped.Use(resolver.Handler)
	authz := middleware.NewAuthorizer(services.Workspaces, metrics)

	handle := func(path, method string, gate func(http.Handler) http.Handler, fn http.HandlerFunc) {
		scoped.Handle(path, gate(fn)).Methods(method)
	}

	readWorkspaces := authz.RequireScope(auth.ScopeWorkspacesRead)
	manageTeam := authz.RequireCapability(auth.CapabilityManageTeam, auth.ScopeTeamWrite)
	manageKeys := authz.RequireCapability(auth.CapabilityManageTeam, auth.ScopeWorkspacesWrite)
	manageWebhooks := authz.RequireCapability(auth.CapabilityManageWebhooks, auth.ScopeWebhooksWrite)

	handle("", http.MethodGet, readWorkspaces, workspaceHandlers.Get)
	handle("", http.MethodDelete, authz.RequireScope(auth.ScopeWorkspacesWrite), workspaceHandlers.Delete)
	handle("/transfer-ownership", http.MethodPost, authz.RequireScope(auth.ScopeWorkspacesWrite), memberHandlers.TransferOwnership)

	handle("/members", http.MethodGet, authz.RequireScope(auth.ScopeTeamRead), memberHandlers.List)
	handle("/members/{user_id:[0-9]+}/role", http.MethodPut, manageTeam, memberHandlers.UpdateRole)
	handle("/members/{user_id:[0-9]+}/permissions", http.MethodPut, manageTeam, memberHandlers.UpdatePermissions)
	handle("/members/{user_id:[0-9]+}", http.MethodDelete, manageTeam, memberHandlers.Remove)

	handle("/invitations", http.MethodPost, manageTeam, invitationHandlers.Create)
	handle("/invitations", http.MethodGet, authz.RequireScope(auth.ScopeTeamRead), invitationHandlers.List)
	handle("/invitations/{id:[0-9]+}", http.MethodDelete, manageTeam, invitationHandlers.Cancel)

	handle("/api-keys", http.MethodPost, manageKeys, keyHandlers.Issue)
	handle("/api-keys", http.MethodGet, readWorkspaces, keyHandlers.List)
	handle("/api-keys/{id:[0-9]+}", http.MethodDelete, manageKeys, keyHandlers.Revoke)

	handle("/webhooks", http.MethodPost, manageWebhooks, webhookHandlers.Create)
	handle("/webhooks", http.MethodGet, authz.RequireScope(auth.ScopeWebhooksRead), webhookHandlers.List)
	handle("/webhooks/{id:[0-9]+}", http.MethodDelete, manageWebhooks, webhookHandlers.Delete)
	handle("/webhooks/{id:[0-9]+}/deliveries", http.MethodGet, authz.RequireScope(auth.ScopeWebhooksRead), webhookHandlers.ListDeliveries)

	handle("/activity", http.MethodGet, authz.RequireCapability(auth.CapabilityViewActivityLogging, auth.ScopeActivityRead), activityHandlers.List)

	return s
}

// Router exposes the configured router.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
