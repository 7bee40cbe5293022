package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/middleware"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/plans"
	"github.com/workroomhq/workroom/pkg/webhooks"
)

// WebhookHandlers serves webhook endpoint management.
type WebhookHandlers struct {
	store   *webhooks.PostgresStore
	plans   *plans.Checker
	emitter *activity.Emitter
	metrics *observability.Metrics
}

// NewWebhookHandlers creates a WebhookHandlers.
func NewWebhookHandlers(store *webhooks.PostgresStore, checker *plans.Checker, emitter *activity.Emitter, metrics *observability.Metrics) *WebhookHandlers {
	return &WebhookHandlers{store: store, plans: checker, emitter: emitter, metrics: metrics}
}

// Create handles POST .../webhooks. The signing secret is returned once on
// this response and omitted from listings.
func (h *WebhookHandlers) Create(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	actor := middleware.GetAuthContext(r)

	var req webhooks.CreateEndpointRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	allowed, message, err := h.plans.CanCreateWebhook(workspace.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !allowed {
		quotaDenied(h.metrics, w, "webhook", workspace.Plan, message)
		return
	}

	var createdBy int64
	if actor.Kind == auth.ActorSession {
		createdBy = actor.UserID
	}

	endpoint, err := h.store.CreateEndpoint(workspace.ID, createdBy, &req)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	h.emitter.Emit(workspace.ID, actorID(actor), activity.EventWebhookCreated, map[string]interface{}{
		"endpoint_id": endpoint.ID,
		"url":         endpoint.URL,
	})

	httputil.WriteCreated(w, endpoint)
}

// List handles GET .../webhooks.
func (h *WebhookHandlers) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.store.ListEndpoints(middleware.GetWorkspace(r).ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, endpoints)
}

// Delete handles DELETE .../webhooks/{id}.
func (h *WebhookHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r)
	endpointID := pathID(r, "id")

	if err := h.store.DeleteEndpoint(workspace.ID, endpointID); err != nil {
		if errors.Is(err, webhooks.ErrEndpointNotFound) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.emitter.Emit(workspace.ID, actorID(middleware.GetAuthContext(r)), activity.EventWebhookDeleted, map[string]interface{}{
		"endpoint_id": endpointID,
	})

	httputil.WriteNoContent(w)
}

// ListDeliveries handles GET .../webhooks/{id}/deliveries.
func (h *WebhookHandlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	endpointID := pathID(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	deliveries, err := h.store.ListDeliveries(endpointID, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, deliveries)
}
