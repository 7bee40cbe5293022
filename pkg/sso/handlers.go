package sso

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/observability"
)

const stateCookieName = "workroom_oauth_state"

// Handlers serves the browser login flow.
type Handlers struct {
	oidc        *OIDCClient
	sessions    *SessionManager
	provisioner *UserProvisioner
	logger      *observability.Logger
}

// NewHandlers creates the login flow handlers.
func NewHandlers(oidc *OIDCClient, sessions *SessionManager, provisioner *UserProvisioner, logger *observability.Logger) *Handlers {
	return &Handlers{
		oidc:        oidc,
		sessions:    sessions,
		provisioner: provisioner,
		logger:      logger,
	}
}

// RegisterRoutes registers the login flow routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodGet)
	router.HandleFunc("/auth/callback", h.callback).Methods(http.MethodGet)
	router.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
}

// login starts the OIDC authorization flow with a one-shot state cookie.
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})

	http.Redirect(w, r, h.oidc.AuthCodeURL(state), http.StatusFound)
}

// callback completes the flow: state check, code exchange, provisioning,
// session issue.
func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		httputil.WriteBadRequest(w, "invalid state parameter")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	identity, err := h.oidc.Exchange(r.Context(), code)
	if err != nil {
		h.logger.WithError(err).Warn("OIDC code exchange failed")
		httputil.WriteUnauthorized(w, "authentication failed")
		return
	}

	user, err := h.provisioner.Provision(identity)
	if err != nil {
		h.logger.WithError(err).Error("failed to provision user")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to complete login")
		return
	}

	session, err := h.sessions.Create(r.Context(), user.ID, user.Email)
	if err != nil {
		h.logger.WithError(err).Error("failed to create session")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to complete login")
		return
	}
	h.sessions.SetCookie(w, session)

	http.Redirect(w, r, "/", http.StatusFound)
}

// logout revokes the current session, if any.
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if session, err := h.sessions.FromRequest(r); err == nil {
		if err := h.sessions.Delete(r.Context(), session.ID); err != nil {
			h.logger.WithError(err).Warn("failed to delete session")
		}
	}
	h.sessions.ClearCookie(w)
	httputil.WriteNoContent(w)
}
