package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/workroomhq/workroom/pkg/activity"
	"github.com/workroomhq/workroom/pkg/apikeys"
	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/contextkeys"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/plans"
	"github.com/workroomhq/workroom/pkg/webhooks"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

// mockWorkspaceService is a mock implementation of workspaces.Service for testing
type mockWorkspaceService struct {
	createWorkspaceFunc       func(name string, ownerID int64, personal bool) (*workspaces.Workspace, error)
	getWorkspaceFunc          func(id int64) (*workspaces.Workspace, error)
	listWorkspacesForUserFunc func(userID int64) ([]*workspaces.Workspace, error)
	deleteWorkspaceFunc       func(id int64) error
	listMembersFunc           func(workspaceID int64) ([]*workspaces.Membership, error)
	updateMemberRoleFunc      func(workspaceID, userID int64, role auth.Role) error
	setMemberPermissionsFunc  func(workspaceID, userID int64, caps []auth.Capability) error
	removeMemberFunc          func(workspaceID, userID int64) error
	transferOwnershipFunc     func(workspaceID, newOwnerID int64) error
	createInvitationFunc      func(invitation *workspaces.Invitation) error
	listInvitationsFunc       func(workspaceID int64) ([]*workspaces.Invitation, error)
	acceptInvitationFunc      func(token string, userID int64, userEmail string) (*workspaces.Membership, error)
	cancelInvitationFunc      func(workspaceID, invitationID int64) error
	canFunc                   func(userID, workspaceID int64, capability auth.Capability) (bool, error)
}

func (m *mockWorkspaceService) CreateWorkspace(name string, ownerID int64, personal bool) (*workspaces.Workspace, error) {
	if m.createWorkspaceFunc != nil {
		return m.createWorkspaceFunc(name, ownerID, personal)
	}
	return &workspaces.Workspace{Name: name, OwnerID: ownerID, Personal: personal}, nil
}

func (m *mockWorkspaceService) GetWorkspace(id int64) (*workspaces.Workspace, error) {
	if m.getWorkspaceFunc != nil {
		return m.getWorkspaceFunc(id)
	}
	return &workspaces.Workspace{ID: id}, nil
}

func (m *mockWorkspaceService) GetWorkspaceBySlug(slug string) (*workspaces.Workspace, error) {
	return &workspaces.Workspace{Slug: slug}, nil
}

func (m *mockWorkspaceService) GetPersonalWorkspace(userID int64) (*workspaces.Workspace, error) {
	return &workspaces.Workspace{OwnerID: userID, Personal: true}, nil
}

func (m *mockWorkspaceService) ListWorkspacesForUser(userID int64) ([]*workspaces.Workspace, error) {
	if m.listWorkspacesForUserFunc != nil {
		return m.listWorkspacesForUserFunc(userID)
	}
	return []*workspaces.Workspace{}, nil
}

func (m *mockWorkspaceService) DeleteWorkspace(id int64) error {
	if m.deleteWorkspaceFunc != nil {
		return m.deleteWorkspaceFunc(id)
	}
	return nil
}

func (m *mockWorkspaceService) UpdatePlan(workspaceID int64, plan workspaces.PlanTier) error {
	return nil
}

func (m *mockWorkspaceService) ListMembers(workspaceID int64) ([]*workspaces.Membership, error) {
	if m.listMembersFunc != nil {
		return m.listMembersFunc(workspaceID)
	}
	return []*workspaces.Membership{}, nil
}

func (m *mockWorkspaceService) GetMembership(workspaceID, userID int64) (*workspaces.Membership, error) {
	return &workspaces.Membership{WorkspaceID: workspaceID, UserID: userID}, nil
}

func (m *mockWorkspaceService) UpdateMemberRole(workspaceID, userID int64, role auth.Role) error {
	if m.updateMemberRoleFunc != nil {
		return m.updateMemberRoleFunc(workspaceID, userID, role)
	}
	return nil
}

func (m *mockWorkspaceService) SetMemberPermissions(workspaceID, userID int64, caps []auth.Capability) error {
	if m.setMemberPermissionsFunc != nil {
		return m.setMemberPermissionsFunc(workspaceID, userID, caps)
	}
	return nil
}

func (m *mockWorkspaceService) RemoveMember(workspaceID, userID int64) error {
	if m.removeMemberFunc != nil {
		return m.removeMemberFunc(workspaceID, userID)
	}
	return nil
}

func (m *mockWorkspaceService) TransferOwnership(workspaceID, newOwnerID int64) error {
	if m.transferOwnershipFunc != nil {
		return m.transferOwnershipFunc(workspaceID, newOwnerID)
	}
	return nil
}

func (m *mockWorkspaceService) CreateInvitation(invitation *workspaces.Invitation) error {
	if m.createInvitationFunc != nil {
		return m.createInvitationFunc(invitation)
	}
	return nil
}

func (m *mockWorkspaceService) GetInvitation(token string) (*workspaces.Invitation, error) {
	return &workspaces.Invitation{Token: token}, nil
}

func (m *mockWorkspaceService) ListInvitations(workspaceID int64) ([]*workspaces.Invitation, error) {
	if m.listInvitationsFunc != nil {
		return m.listInvitationsFunc(workspaceID)
	}
	return []*workspaces.Invitation{}, nil
}

func (m *mockWorkspaceService) AcceptInvitation(token string, userID int64, userEmail string) (*workspaces.Membership, error) {
	if m.acceptInvitationFunc != nil {
		return m.acceptInvitationFunc(token, userID, userEmail)
	}
	return &workspaces.Membership{UserID: userID}, nil
}

func (m *mockWorkspaceService) CancelInvitation(workspaceID, invitationID int64) error {
	if m.cancelInvitationFunc != nil {
		return m.cancelInvitationFunc(workspaceID, invitationID)
	}
	return nil
}

func (m *mockWorkspaceService) CleanupExpiredInvitations() (int64, error) {
	return 0, nil
}

func (m *mockWorkspaceService) Can(userID, workspaceID int64, capability auth.Capability) (bool, error) {
	if m.canFunc != nil {
		return m.canFunc(userID, workspaceID, capability)
	}
	return true, nil
}

// mockAPIKeyService is a mock implementation of apikeys.Service for testing
type mockAPIKeyService struct {
	issueFunc  func(workspaceID, issuerID int64, req *apikeys.IssueRequest) (*apikeys.APIKey, string, error)
	listFunc   func(workspaceID int64) ([]*apikeys.APIKey, error)
	revokeFunc func(workspaceID, keyID int64) error
}

func (m *mockAPIKeyService) Issue(workspaceID, issuerID int64, req *apikeys.IssueRequest) (*apikeys.APIKey, string, error) {
	if m.issueFunc != nil {
		return m.issueFunc(workspaceID, issuerID, req)
	}
	return &apikeys.APIKey{WorkspaceID: workspaceID, Name: req.Name}, "wsk_test", nil
}

func (m *mockAPIKeyService) Authenticate(bearer string) (*apikeys.APIKey, error) {
	return nil, apikeys.ErrKeyInvalid
}

func (m *mockAPIKeyService) List(workspaceID int64) ([]*apikeys.APIKey, error) {
	if m.listFunc != nil {
		return m.listFunc(workspaceID)
	}
	return []*apikeys.APIKey{}, nil
}

func (m *mockAPIKeyService) Get(workspaceID, keyID int64) (*apikeys.APIKey, error) {
	return &apikeys.APIKey{ID: keyID, WorkspaceID: workspaceID}, nil
}

func (m *mockAPIKeyService) Revoke(workspaceID, keyID int64) error {
	if m.revokeFunc != nil {
		return m.revokeFunc(workspaceID, keyID)
	}
	return nil
}

// mockActivityRecorder collects events synchronously for assertions
type mockActivityRecorder struct {
	listFunc func(workspaceID int64, limit int) ([]*activity.Event, error)
}

func (m *mockActivityRecorder) Record(event *activity.Event) error {
	return nil
}

func (m *mockActivityRecorder) List(workspaceID int64, limit int) ([]*activity.Event, error) {
	if m.listFunc != nil {
		return m.listFunc(workspaceID, limit)
	}
	return []*activity.Event{}, nil
}

func newTestEmitter() *activity.Emitter {
	return activity.NewEmitter(&mockActivityRecorder{})
}

// newInertDispatcher returns a dispatcher whose endpoint lookups fail, which
// Dispatch swallows. Handler tests only need Dispatch to be a safe no-op.
func newInertDispatcher(t *testing.T) *webhooks.Dispatcher {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	dispatcher := webhooks.NewDispatcher(context.Background(), webhooks.NewPostgresStore(db), logger, nil)
	t.Cleanup(func() { _ = dispatcher.Shutdown(time.Second) })
	return dispatcher
}

func newTestChecker(t *testing.T) (*plans.Checker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return plans.NewChecker(db), mock
}

func sessionActor(userID int64) *auth.AuthContext {
	return &auth.AuthContext{Kind: auth.ActorSession, UserID: userID, Email: "user@example.com"}
}

func keyActor(workspaceID int64, scopes ...auth.Scope) *auth.AuthContext {
	return &auth.AuthContext{Kind: auth.ActorAPIKey, KeyID: 1, WorkspaceID: workspaceID, Scopes: scopes}
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func withActor(r *http.Request, actor *auth.AuthContext) *http.Request {
	return r.WithContext(contextkeys.WithAuth(r.Context(), actor))
}

func withWorkspace(r *http.Request, workspace *workspaces.Workspace) *http.Request {
	return r.WithContext(contextkeys.WithWorkspace(r.Context(), workspace))
}
