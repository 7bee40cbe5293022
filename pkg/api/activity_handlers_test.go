package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

func TestActivityList(t *testing.T) {
	var gotWorkspaceID int64
	var gotLimit int
	recorder := &mockActivityRecorder{
		listFunc: func(workspaceID int64, limit int) ([]*activity.Event, error) {
			gotWorkspaceID = workspaceID
			gotLimit = limit
			return []*activity.Event{{
				ID:          "evt-1",
				WorkspaceID: workspaceID,
				Type:        activity.EventMemberJoined,
				Metadata:    map[string]interface{}{"user_id": 42},
				CreatedAt:   time.Now(),
			}}, nil
		},
	}
	handlers := NewActivityHandlers(recorder)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/10/activity?limit=25", nil)
	r = withWorkspace(r, &workspaces.Workspace{ID: 10})
	w := httptest.NewRecorder()
	handlers.List(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(10), gotWorkspaceID)
	assert.Equal(t, 25, gotLimit)
	assert.Contains(t, w.Body.String(), `"team.member_joined"`)
}
