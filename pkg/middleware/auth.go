// Package middleware provides the request authentication, workspace
// resolution, authorization, and rate limiting layers of the HTTP API.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/workroomhq/workroom/pkg/apikeys"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/contextkeys"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/sso"
)

// Authenticator resolves the request actor: a workspace API key presented
// as a bearer token, or a browser session cookie.
type Authenticator struct {
	apiKeys  apikeys.Service
	sessions *sso.SessionManager
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(apiKeys apikeys.Service, sessions *sso.SessionManager, metrics *observability.Metrics, logger *observability.Logger) *Authenticator {
	return &Authenticator{
		apiKeys:  apiKeys,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handler authenticates the request and stores the actor in the context.
// A bearer token always takes the API key path; its absence falls through
// to the session cookie.
func (m *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			m.authenticateKey(w, r, next, authHeader)
			return
		}
		m.authenticateSession(w, r, next)
	})
}

func (m *Authenticator) authenticateKey(w http.ResponseWriter, r *http.Request, next http.Handler, authHeader string) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		m.reject(w, apikeys.ErrKeyMissing)
		return
	}

	key, err := m.apiKeys.Authenticate(parts[1])
	if err != nil {
		// Only the credential taxonomy reaches the client verbatim; an
		// infrastructure failure is not the caller's fault.
		if errors.Is(err, apikeys.ErrKeyMissing) || errors.Is(err, apikeys.ErrKeyInvalid) || errors.Is(err, apikeys.ErrKeyExpired) {
			m.reject(w, err)
			return
		}
		if m.metrics != nil {
			m.metrics.AuthAttemptsTotal.WithLabelValues("error").Inc()
		}
		m.logger.WithError(err).Error("api key authentication failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if m.metrics != nil {
		m.metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	}

	authCtx := &auth.AuthContext{
		Kind:        auth.ActorAPIKey,
		KeyID:       key.ID,
		WorkspaceID: key.WorkspaceID,
		Scopes:      key.Scopes,
	}
	next.ServeHTTP(w, r.WithContext(contextkeys.WithAuth(r.Context(), authCtx)))
}

func (m *Authenticator) authenticateSession(w http.ResponseWriter, r *http.Request, next http.Handler) {
	// Session auth is optional; without a session backend only bearer keys
	// can authenticate.
	if m.sessions == nil {
		m.reject(w, apikeys.ErrKeyMissing)
		return
	}

	session, err := m.sessions.FromRequest(r)
	if err != nil {
		m.reject(w, apikeys.ErrKeyMissing)
		return
	}

	if m.metrics != nil {
		m.metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	}

	authCtx := &auth.AuthContext{
		Kind:   auth.ActorSession,
		UserID: session.UserID,
		Email:  session.Email,
	}
	ctx := contextkeys.WithAuth(r.Context(), authCtx)
	ctx = contextkeys.WithUserID(ctx, session.UserID)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (m *Authenticator) reject(w http.ResponseWriter, err error) {
	if m.metrics != nil {
		m.metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
	}
	httputil.WriteUnauthorized(w, err.Error())
}

// GetAuthContext extracts the authenticated actor from a request.
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, _ := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	return authCtx
}
