package api

import (
	"errors"
	"net/http"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/apikeys"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/middleware"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/plans"
	"github.com/workroomhq/workroom/pkg/webhooks"
)

// APIKeyHandlers serves API key management.
type APIKeyHandlers struct {
	apiKeys    apikeys.Service
	plans      *plans.Checker
	emitter    *activity.Emitter
	dispatcher *webhooks.Dispatcher
	metrics    *observability.Metrics
}

// NewAPIKeyHandlers creates an APIKeyHandlers.
func NewAPIKeyHandlers(keys apikeys.Service, checker *plans.Checker, emitter *activity.Emitter, dispatcher *webhooks.Dispatcher, metrics *observability.Metrics) *APIKeyHandlers {
	return &APIKeyHandlers{
		apiKeys:    keys,
		plans:      checker,
		emitter:    emitter,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
}

// issueResponse carries the plaintext key alongside the stored record. The
// plaintext appears here and nowhere else, ever.
type issueResponse struct {
	*apikeys.APIKey
	PlainTextKey string `json:"plain_text_key"`
}

// Issue handles POST .../api-keys.
func (h *APIKeyHandlers) Issue(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	actor := middleware.GetAuthContext(r)

	var req apikeys.IssueRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	allowed, message, err := h.plans.CanCreateAPIKey(workspace.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !allowed {
		quotaDenied(h.metrics, w, "API key", workspace.Plan, message)
		return
	}

	var issuerID int64
	if actor.Kind == auth.ActorSession {
		issuerID = actor.UserID
	}

	key, plaintext, err := h.apiKeys.Issue(workspace.ID, issuerID, &req)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	h.emitter.Emit(workspace.ID, actorID(actor), activity.EventAPIKeyCreated, map[string]interface{}{
		"key_id":     key.ID,
		"name":       key.Name,
		"key_prefix": key.KeyPrefix,
	})
	h.dispatcher.Dispatch(workspace.ID, activity.EventAPIKeyCreated, map[string]interface{}{
		"key_id":     key.ID,
		"name":       key.Name,
		"key_prefix": key.KeyPrefix,
	})

	httputil.WriteCreated(w, &issueResponse{APIKey: key, PlainTextKey: plaintext})
}

// List handles GET .../api-keys. Hashes never leave the service; prefixes
// are all a caller sees.
func (h *APIKeyHandlers) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.apiKeys.List(middleware.GetWorkspace(r).ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, keys)
}

// Revoke handles DELETE .../api-keys/{id}. Revocation is immediate and
// permanent; the next Authenticate with the old key sees "Invalid API key."
func (h *APIKeyHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	keyID := pathID(r, "id")

	if err := h.apiKeys.Revoke(workspace.ID, keyID); err != nil {
		if errors.Is(err, apikeys.ErrKeyNotFound) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.emitter.Emit(workspace.ID, actorID(middleware.GetAuthContext(r)), activity.EventAPIKeyRevoked, map[string]interface{}{
		"key_id": keyID,
	})
	h.dispatcher.Dispatch(workspace.ID, activity.EventAPIKeyRevoked, map[string]interface{}{
		"key_id": keyID,
	})

	httputil.WriteNoContent(w)
}
