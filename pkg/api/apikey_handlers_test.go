package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workroomhq/workroom/pkg/apikeys"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

func newTestAPIKeyHandlers(t *testing.T, svc apikeys.Service) (*APIKeyHandlers, sqlmock.Sqlmock) {
	t.Helper()
	checker, mock := newTestChecker(t)
	return NewAPIKeyHandlers(svc, checker, newTestEmitter(), newInertDispatcher(t), nil), mock
}

func TestAPIKeyIssue_ReturnsPlaintextOnce(t *testing.T) {
	svc := &mockAPIKeyService{
		issueFunc: func(workspaceID, issuerID int64, req *apikeys.IssueRequest) (*apikeys.APIKey, string, error) {
			require.Equal(t, int64(10), workspaceID)
			require.Equal(t, int64(1), issuerID)
			key := &apikeys.APIKey{
				ID:          3,
				WorkspaceID: workspaceID,
				CreatedBy:   issuerID,
				Name:        req.Name,
				KeyPrefix:   "wsk_abcd1234",
				Scopes:      req.Scopes,
			}
			return key, "wsk_abcd1234efgh5678", nil
		},
	}
	handlers, mock := newTestAPIKeyHandlers(t, svc)

	mock.ExpectQuery("SELECT plan FROM workspaces WHERE id").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow("pro"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM api_keys").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	r := jsonRequest(t, http.MethodPost, "/api/v1/workspaces/10/api-keys", map[string]interface{}{
		"name":   "ci",
		"scopes": []string{"workspaces:read"},
	})
	r = withActor(r, sessionActor(1))
	r = withWorkspace(r, &workspaces.Workspace{ID: 10, Plan: workspaces.PlanPro})
	w := httptest.NewRecorder()
	handlers.Issue(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "wsk_abcd1234efgh5678", body["plain_text_key"])
	assert.Equal(t, "wsk_abcd1234", body["key_prefix"])
	assert.NotContains(t, body, "key_hash")
}

func TestAPIKeyIssue_KeyActorPassesZeroIssuer(t *testing.T) {
	svc := &mockAPIKeyService{
		issueFunc: func(workspaceID, issuerID int64, req *apikeys.IssueRequest) (*apikeys.APIKey, string, error) {
			// A key actor has no user identity to attribute.
			require.Equal(t, int64(0), issuerID)
			key := &apikeys.APIKey{
				ID:          4,
				WorkspaceID: workspaceID,
				Name:        req.Name,
				KeyPrefix:   "wsk_efgh5678",
				Scopes:      req.Scopes,
			}
			return key, "wsk_efgh5678ijkl9012", nil
		},
	}
	handlers, mock := newTestAPIKeyHandlers(t, svc)

	mock.ExpectQuery("SELECT plan FROM workspaces WHERE id").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow("pro"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM api_keys").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	r := jsonRequest(t, http.MethodPost, "/api/v1/workspaces/10/api-keys", map[string]interface{}{
		"name":   "automation",
		"scopes": []string{"workspaces:read"},
	})
	r = withActor(r, keyActor(10, auth.ScopeWorkspacesWrite))
	r = withWorkspace(r, &workspaces.Workspace{ID: 10, Plan: workspaces.PlanPro})
	w := httptest.NewRecorder()
	handlers.Issue(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "wsk_efgh5678ijkl9012")
}

func TestAPIKeyIssue_QuotaDenied(t *testing.T) {
	handlers, mock := newTestAPIKeyHandlers(t, &mockAPIKeyService{})

	mock.ExpectQuery("SELECT plan FROM workspaces WHERE id").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow("free"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM api_keys").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	r := jsonRequest(t, http.MethodPost, "/api/v1/workspaces/10/api-keys", map[string]interface{}{
		"name":   "ci",
		"scopes": []string{"workspaces:read"},
	})
	r = withActor(r, sessionActor(1))
	r = withWorkspace(r, &workspaces.Workspace{ID: 10, Plan: workspaces.PlanFree})
	w := httptest.NewRecorder()
	handlers.Issue(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error": "You can create 0 more API key(s). (2/2 used)"}`, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyList_OmitsPlaintextAndHash(t *testing.T) {
	svc := &mockAPIKeyService{
		listFunc: func(workspaceID int64) ([]*apikeys.APIKey, error) {
			return []*apikeys.APIKey{{
				ID:          3,
				WorkspaceID: workspaceID,
				Name:        "ci",
				KeyHash:     "deadbeef",
				KeyPrefix:   "wsk_abcd1234",
				Scopes:      []auth.Scope{auth.ScopeWorkspacesRead},
			}}, nil
		},
	}
	handlers, _ := newTestAPIKeyHandlers(t, svc)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/10/api-keys", nil)
	r = withActor(r, sessionActor(1))
	r = withWorkspace(r, &workspaces.Workspace{ID: 10})
	w := httptest.NewRecorder()
	handlers.List(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"key_prefix":"wsk_abcd1234"`)
	assert.NotContains(t, w.Body.String(), "plain_text_key")
	assert.NotContains(t, w.Body.String(), "deadbeef")
}

func TestAPIKeyRevoke_NotFound(t *testing.T) {
	svc := &mockAPIKeyService{
		revokeFunc: func(workspaceID, keyID int64) error {
			return apikeys.ErrKeyNotFound
		},
	}
	handlers, _ := newTestAPIKeyHandlers(t, svc)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/workspaces/10/api-keys/99", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "99"})
	r = withActor(r, sessionActor(1))
	r = withWorkspace(r, &workspaces.Workspace{ID: 10})
	w := httptest.NewRecorder()
	handlers.Revoke(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error": "api key not found"}`, w.Body.String())
}

func TestAPIKeyRevoke_Success(t *testing.T) {
	var revoked int64
	svc := &mockAPIKeyService{
		revokeFunc: func(workspaceID, keyID int64) error {
			revoked = keyID
			return nil
		},
	}
	handlers, _ := newTestAPIKeyHandlers(t, svc)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/workspaces/10/api-keys/3", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "3"})
	r = withActor(r, sessionActor(1))
	r = withWorkspace(r, &workspaces.Workspace{ID: 10})
	w := httptest.NewRecorder()
	handlers.Revoke(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(3), revoked)
}
