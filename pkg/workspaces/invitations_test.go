package workspaces

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workroomhq/workroom/pkg/auth"
)

func TestAcceptInvitation_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM workspace_invitations WHERE token").
		WithArgs("tok123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "email", "role", "expires_at"}).
			AddRow(int64(5), int64(10), "new@example.com", auth.RoleMember, time.Now().Add(24*time.Hour)))
	mock.ExpectExec("INSERT INTO workspace_members").
		WithArgs(int64(10), int64(20), auth.RoleMember).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM workspace_invitations WHERE id").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM workspace_members WHERE workspace_id").
		WithArgs(int64(10), int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "user_id", "role", "permission_overrides", "joined_at"}).
			AddRow(int64(7), int64(10), int64(20), auth.RoleMember, []byte("[]"), time.Now()))
	mock.ExpectCommit()

	member, err := service.AcceptInvitation("tok123", 20, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, member.Role)
	assert.Equal(t, int64(10), member.WorkspaceID)
	assert.Equal(t, int64(20), member.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptInvitation_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM workspace_invitations WHERE token").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "email", "role", "expires_at"}))
	mock.ExpectRollback()

	_, err = service.AcceptInvitation("missing", 20, "new@example.com")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptInvitation_ExpiredDeletesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM workspace_invitations WHERE token").
		WithArgs("stale").
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "email", "role", "expires_at"}).
			AddRow(int64(5), int64(10), "late@example.com", auth.RoleMember, time.Now().Add(-time.Hour)))
	mock.ExpectExec("DELETE FROM workspace_invitations WHERE id").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err = service.AcceptInvitation("stale", 20, "late@example.com")
	assert.ErrorIs(t, err, ErrInvitationExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptInvitation_AlreadyMemberConsumesInvitation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM workspace_invitations WHERE token").
		WithArgs("tok123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "email", "role", "expires_at"}).
			AddRow(int64(5), int64(10), "dupe@example.com", auth.RoleAdmin, time.Now().Add(24*time.Hour)))
	// ON CONFLICT DO NOTHING reports zero rows when the membership exists
	mock.ExpectExec("INSERT INTO workspace_members").
		WithArgs(int64(10), int64(20), auth.RoleAdmin).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM workspace_invitations WHERE id").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err = service.AcceptInvitation("tok123", 20, "dupe@example.com")
	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvitation_InvalidRoleRejected(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	err = service.CreateInvitation(&Invitation{
		WorkspaceID: 10,
		Email:       "new@example.com",
		Role:        auth.RoleOwner,
		InvitedBy:   1,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invitations may propose admin or member")
}

func TestCreateInvitation_SetsTokenAndExpiry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectQuery("INSERT INTO workspace_invitations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	inv := &Invitation{
		WorkspaceID: 10,
		Email:       "new@example.com",
		Role:        auth.RoleMember,
		InvitedBy:   1,
	}
	err = service.CreateInvitation(inv)
	require.NoError(t, err)

	assert.Equal(t, int64(42), inv.ID)
	// 32 random bytes hex-encoded
	assert.Len(t, inv.Token, 64)
	assert.WithinDuration(t, inv.CreatedAt.Add(InvitationTTL), inv.ExpiresAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvitation_KeyIssuedStoresNullInviter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	// A zero inviter means the invitation came from an API key, not a user.
	// The column must receive NULL or the users FK rejects the insert.
	mock.ExpectQuery("INSERT INTO workspace_invitations").
		WithArgs(int64(10), "new@example.com", auth.RoleMember,
			sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(43)))

	err = service.CreateInvitation(&Invitation{
		WorkspaceID: 10,
		Email:       "new@example.com",
		Role:        auth.RoleMember,
		InvitedBy:   0,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelInvitation_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectExec("DELETE FROM workspace_invitations").
		WithArgs(int64(99), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = service.CancelInvitation(10, 99)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupExpiredInvitations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := &PostgresService{db: db}

	mock.ExpectExec("DELETE FROM workspace_invitations WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := service.CleanupExpiredInvitations()
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
