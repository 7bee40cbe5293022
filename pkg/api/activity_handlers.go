package api

import (
	"net/http"
	"strconv"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/httputil"
	"github.com/workroomhq/workroom/pkg/middleware"
)

// ActivityHandlers serves the activity log.
type ActivityHandlers struct {
	recorder activity.Recorder
}

// NewActivityHandlers creates an ActivityHandlers.
func NewActivityHandlers(recorder activity.Recorder) *ActivityHandlers {
	return &ActivityHandlers{recorder: recorder}
}

// List handles GET .../activity, newest first.
func (h *ActivityHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.recorder.List(middleware.GetWorkspace(r).ID, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, events)
}
