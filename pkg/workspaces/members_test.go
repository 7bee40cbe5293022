package workspaces

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workroomhq/workroom/pkg/auth"
)

func membershipRow(role auth.Role) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "workspace_id", "user_id", "role", "permission_overrides", "joined_at",
	}).AddRow(1, int64(10), int64(20), role, []byte("[]"), time.Now())
}

func TestUpdateMemberRole_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(20)).
		WillReturnRows(membershipRow(auth.RoleMember))

	mock.ExpectExec("UPDATE workspace_members SET role").
		WithArgs(auth.RoleAdmin, int64(10), int64(20), auth.RoleOwner).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = service.UpdateMemberRole(10, 20, auth.RoleAdmin)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMemberRole_OwnerRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(20)).
		WillReturnRows(membershipRow(auth.RoleOwner))

	err = service.UpdateMemberRole(10, 20, auth.RoleMember)
	assert.ErrorIs(t, err, ErrOwnerImmutable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMemberRole_PromotionToOwnerRejected(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	err = service.UpdateMemberRole(10, 20, auth.RoleOwner)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "role must be admin or member")
}

func TestRemoveMember_OwnerRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(20)).
		WillReturnRows(membershipRow(auth.RoleOwner))

	err = service.RemoveMember(10, 20)
	assert.ErrorIs(t, err, ErrOwnerImmutable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMember_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(20)).
		WillReturnRows(membershipRow(auth.RoleMember))

	mock.ExpectExec("DELETE FROM workspace_members").
		WithArgs(int64(10), int64(20), auth.RoleOwner).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = service.RemoveMember(10, 20)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetMemberPermissions_OwnerRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(20)).
		WillReturnRows(membershipRow(auth.RoleOwner))

	err = service.SetMemberPermissions(10, 20, []auth.Capability{auth.CapabilityManageBilling})
	assert.ErrorIs(t, err, ErrOwnerOverrides)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetMemberPermissions_UnknownCapabilityRejected(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	err = service.SetMemberPermissions(10, 20, []auth.Capability{"manage_everything"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown capability")
}

func TestSetMemberPermissions_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(20)).
		WillReturnRows(membershipRow(auth.RoleMember))

	mock.ExpectExec("UPDATE workspace_members SET permission_overrides").
		WithArgs([]byte(`["manage_billing"]`), int64(10), int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = service.SetMemberPermissions(10, 20, []auth.Capability{auth.CapabilityManageBilling})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferOwnership_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT owner_id, personal FROM workspaces").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "personal"}).AddRow(int64(1), false))
	mock.ExpectQuery("SELECT role FROM workspace_members").
		WithArgs(int64(10), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(auth.RoleAdmin))
	mock.ExpectExec("UPDATE workspace_members SET role").
		WithArgs(auth.RoleAdmin, int64(10), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE workspace_members SET role").
		WithArgs(auth.RoleOwner, int64(10), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE workspaces SET owner_id").
		WithArgs(int64(2), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = service.TransferOwnership(10, 2)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferOwnership_TargetNotAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT owner_id, personal FROM workspaces").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "personal"}).AddRow(int64(1), false))
	mock.ExpectQuery("SELECT role FROM workspace_members").
		WithArgs(int64(10), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(auth.RoleMember))
	mock.ExpectRollback()

	err = service.TransferOwnership(10, 2)
	assert.ErrorIs(t, err, ErrTargetNotAdmin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferOwnership_PersonalWorkspaceRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT owner_id, personal FROM workspaces").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "personal"}).AddRow(int64(1), true))
	mock.ExpectRollback()

	err = service.TransferOwnership(10, 2)
	assert.ErrorIs(t, err, ErrPersonalWorkspace)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMembership_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "user_id", "role", "permission_overrides", "joined_at"}))

	_, err = service.GetMembership(10, 99)
	assert.ErrorIs(t, err, ErrMemberNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMembership_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(20)).
		WillReturnError(errors.New("database error"))

	_, err = service.GetMembership(10, 20)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get membership")
	assert.NoError(t, mock.ExpectationsWereMet())
}
