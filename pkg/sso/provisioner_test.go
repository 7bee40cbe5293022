package sso

import (
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workroomhq/workroom/pkg/auth"
	"github.com/workroomhq/workroom/pkg/observability"
	"github.com/workroomhq/workroom/pkg/workspaces"
)

func newTestProvisioner(t *testing.T) (*UserProvisioner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewUserProvisioner(db, workspaces.NewPostgresService(db), logger), mock
}

func userRow(id int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "full_name", "created_at", "updated_at", "last_login_at"}).
		AddRow(id, "alice@example.com", "Alice Adams", now, now, now)
}

func workspaceRow(id int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "slug", "plan", "owner_id", "personal", "created_at", "updated_at", "deleted_at",
	}).AddRow(id, "Alice Adams", "alice-adams-abcd1234", "free", int64(1), true, now, now, nil)
}

func TestProvision_ExistingUserWithWorkspace(t *testing.T) {
	provisioner, mock := newTestProvisioner(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice@example.com", "Alice Adams", "sub-123").
		WillReturnRows(userRow(1))
	mock.ExpectQuery("SELECT (.+) FROM workspaces WHERE owner_id").
		WithArgs(int64(1)).
		WillReturnRows(workspaceRow(5))

	user, err := provisioner.Provision(&Identity{
		ExternalID: "sub-123",
		Email:      "alice@example.com",
		FullName:   "Alice Adams",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotNil(t, user.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvision_FirstLoginCreatesPersonalWorkspace(t *testing.T) {
	provisioner, mock := newTestProvisioner(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("bob@example.com", "Bob Brown", "sub-456").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "created_at", "updated_at", "last_login_at"}).
			AddRow(int64(2), "bob@example.com", "Bob Brown", time.Now(), time.Now(), time.Now()))
	mock.ExpectQuery("SELECT (.+) FROM workspaces WHERE owner_id").
		WithArgs(int64(2)).
		WillReturnError(sql.ErrNoRows)

	// personal workspace creation runs in one transaction
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO workspaces").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(9), time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO workspace_members").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user, err := provisioner.Provision(&Identity{
		ExternalID: "sub-456",
		Email:      "bob@example.com",
		FullName:   "Bob Brown",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonalWorkspaceName(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		fullName string
		want     string
	}{
		{name: "full name preferred", email: "a@example.com", fullName: "Alice Adams", want: "Alice Adams"},
		{name: "email local part fallback", email: "bob@example.com", want: "bob"},
		{name: "degenerate email", email: "@example.com", want: "@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := personalWorkspaceName(&auth.User{Email: tt.email, FullName: tt.fullName})
			assert.Equal(t, tt.want, got)
		})
	}
}
