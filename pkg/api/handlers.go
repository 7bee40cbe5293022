package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// quotaDenied writes the plan-limit message as a 403 and counts the denial.
func quotaDenied(metrics *observability.Metrics, w http.ResponseWriter, resource string, plan workspaces.PlanTier, message string) {
	if metrics != nil {
		metrics.QuotaDenialsTotal.WithLabelValues(resource, string(plan)).Inc()
	}
	httputil.WriteForbidden(w, message)
}

// actorID returns the acting user for activity records, nil for API keys.
func actorID(actor *auth.AuthContext) *int64 {
	if actor != nil && actor.Kind == auth.ActorSession {
		return &actor.UserID
	}
	return nil
}

// pathID parses a numeric path variable; the route patterns guarantee the
// variable is present and numeric.
func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}
