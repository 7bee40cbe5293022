package sso

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionManager(client, "workroom_session"), mr
}

func TestSessionManager_CreateAndGet(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	ctx := context.Background()

	session, err := manager.Create(ctx, 42, "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.WithinDuration(t, time.Now().Add(SessionTTL), session.ExpiresAt, 5*time.Second)

	got, err := manager.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestSessionManager_GetUnknownSession(t *testing.T) {
	manager, _ := newTestSessionManager(t)

	_, err := manager.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionManager_ExpiredSessionRemoved(t *testing.T) {
	manager, mr := newTestSessionManager(t)
	ctx := context.Background()

	session, err := manager.Create(ctx, 42, "alice@example.com")
	require.NoError(t, err)

	mr.FastForward(SessionTTL + time.Minute)

	_, err = manager.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionManager_Delete(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	ctx := context.Background()

	session, err := manager.Create(ctx, 42, "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, manager.Delete(ctx, session.ID))

	_, err = manager.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionManager_FromRequest(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	ctx := context.Background()

	session, err := manager.Create(ctx, 42, "alice@example.com")
	require.NoError(t, err)

	withCookie := httptest.NewRequest("GET", "/api/v1/workspaces", nil)
	recorder := httptest.NewRecorder()
	manager.SetCookie(recorder, session)
	for _, cookie := range recorder.Result().Cookies() {
		withCookie.AddCookie(cookie)
	}

	got, err := manager.FromRequest(withCookie)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	bare := httptest.NewRequest("GET", "/api/v1/workspaces", nil)
	_, err = manager.FromRequest(bare)
	assert.ErrorIs(t, err, ErrNoSession)
}
