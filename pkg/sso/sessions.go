package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionManager stores sessions in Redis keyed by an opaque ID carried in
// an HttpOnly cookie. Redis TTLs expire sessions server-side.
type SessionManager struct {
	redis      *redis.Client
	cookieName string
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string) *SessionManager {
	return &SessionManager{redis: client, cookieName: cookieName}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Create mints a session for the user and stores it under the session TTL.
func (m *SessionManager) Create(ctx context.Context, userID int64, email string) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &Session{
		ID:        base64.RawURLEncoding.EncodeToString(idBytes),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.redis.Set(ctx, sessionKey(session.ID), data, SessionTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Get loads a session by ID. A missing key means the session never existed
// or its TTL elapsed.
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	data, err := m.redis.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if time.Now().After(session.ExpiresAt) {
		m.redis.Del(ctx, sessionKey(id))
		return nil, ErrSessionExpired
	}

	return session, nil
}

// Delete revokes a session.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	if err := m.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// FromRequest resolves the session referenced by the request cookie.
func (m *SessionManager) FromRequest(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	return m.Get(r.Context(), cookie.Value)
}

// SetCookie attaches the session cookie to a response.
func (m *SessionManager) SetCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL.Seconds()),
	})
}

// ClearCookie removes the session cookie from the browser.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
