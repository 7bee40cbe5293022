package apikeys

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/workroomhq/workroom/pkg/async"
	"github.com/workroomhq/workroom/pkg/auth"
)

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db     *sql.DB
	keygen *auth.KeyGenerator
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{
		db:     db,
		keygen: auth.NewKeyGenerator(),
	}
}

// Issue creates a new key for a workspace. Scopes are validated against the
// closed enum and the expiry, when present, must be strictly in the future.
// The plaintext key is returned once and never stored.
func (s *PostgresService) Issue(workspaceID, issuerID int64, req *IssueRequest) (*APIKey, string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, "", fmt.Errorf("key name is required")
	}
	if err := auth.ValidateScopes(req.Scopes); err != nil {
		return nil, "", err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return nil, "", fmt.Errorf("expiry must be in the future")
	}

	plaintext, keyHash, keyPrefix, err := s.keygen.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate key: %w", err)
	}

	scopesJSON, err := json.Marshal(req.Scopes)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode scopes: %w", err)
	}

	key := &APIKey{
		WorkspaceID: workspaceID,
		CreatedBy:   issuerID,
		Name:        req.Name,
		KeyHash:     keyHash,
		KeyPrefix:   keyPrefix,
		Scopes:      req.Scopes,
		ExpiresAt:   req.ExpiresAt,
	}

	query := `
		INSERT INTO api_keys (workspace_id, created_by, name, key_hash, key_prefix, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = s.db.QueryRow(query, key.WorkspaceID, nullableUserID(key.CreatedBy), key.Name, key.KeyHash,
		key.KeyPrefix, scopesJSON, key.ExpiresAt).
		Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store api key: %w", err)
	}

	return key, plaintext, nil
}

// Authenticate resolves a bearer key. The decision order is fixed:
// bad format, unknown hash, expired, success. Lookup is by SHA-256 digest,
// so the comparison cost does not depend on the secret. On success the
// last_used_at touch happens fire-and-forget so it never slows the request.
func (s *PostgresService) Authenticate(bearer string) (*APIKey, error) {
	if bearer == "" {
		return nil, ErrKeyMissing
	}
	if err := s.keygen.ValidateKeyFormat(bearer); err != nil {
		return nil, ErrKeyMissing
	}

	keyHash := s.keygen.HashKey(bearer)

	query := `
		SELECT id, workspace_id, created_by, name, key_hash, key_prefix, scopes, created_at, expires_at, last_used_at
		FROM api_keys
		WHERE key_hash = $1
	`
	key, err := s.scanKey(s.db.QueryRow(query, keyHash))
	if err == sql.ErrNoRows {
		return nil, ErrKeyInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	if key.Expired() {
		return nil, ErrKeyExpired
	}

	keyID := key.ID
	async.SafeGo(context.Background(), 5*time.Second, "api key last-used touch", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", keyID)
		return err
	})

	return key, nil
}

// List retrieves all keys for a workspace, newest first
func (s *PostgresService) List(workspaceID int64) ([]*APIKey, error) {
	query := `
		SELECT id, workspace_id, created_by, name, key_hash, key_prefix, scopes, created_at, expires_at, last_used_at
		FROM api_keys
		WHERE workspace_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := s.scanKeyRows(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// Get retrieves one key scoped to a workspace
func (s *PostgresService) Get(workspaceID, keyID int64) (*APIKey, error) {
	query := `
		SELECT id, workspace_id, created_by, name, key_hash, key_prefix, scopes, created_at, expires_at, last_used_at
		FROM api_keys
		WHERE workspace_id = $1 AND id = $2
	`
	key, err := s.scanKey(s.db.QueryRow(query, workspaceID, keyID))
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// Revoke hard-deletes a key. Any later Authenticate with the old plaintext
// lands on the unknown-hash path and reports ErrKeyInvalid.
func (s *PostgresService) Revoke(workspaceID, keyID int64) error {
	result, err := s.db.Exec(
		"DELETE FROM api_keys WHERE workspace_id = $1 AND id = $2", workspaceID, keyID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrKeyNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nullableUserID maps the zero user ID to SQL NULL. Keys issued by another
// API key have no user to attribute, and the users FK rejects a literal 0.
func nullableUserID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (s *PostgresService) scanKey(row *sql.Row) (*APIKey, error) {
	return scanAPIKey(row)
}

func (s *PostgresService) scanKeyRows(rows *sql.Rows) (*APIKey, error) {
	key, err := scanAPIKey(rows)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}
	return key, nil
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	key := &APIKey{}
	var createdBy sql.NullInt64
	var scopesJSON []byte
	var expiresAt, lastUsedAt sql.NullTime

	err := row.Scan(
		&key.ID, &key.WorkspaceID, &createdBy, &key.Name, &key.KeyHash,
		&key.KeyPrefix, &scopesJSON, &key.CreatedAt, &expiresAt, &lastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	key.CreatedBy = createdBy.Int64

	if err := json.Unmarshal(scopesJSON, &key.Scopes); err != nil {
		return nil, fmt.Errorf("failed to decode scopes: %w", err)
	}
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}

	return key, nil
}
