package webhooks

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// PostgresStore persists webhook endpoints and delivery logs.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateEndpoint registers an endpoint. The signing secret is generated
// server-side and returned once on the created record.
func (s *PostgresStore) CreateEndpoint(workspaceID, createdBy int64, req *CreateEndpointRequest) (*Endpoint, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("endpoint URL must be a valid http(s) URL")
	}
	if len(req.Events) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}
	secret := "whsec_" + hex.EncodeToString(secretBytes)

	eventsJSON, err := json.Marshal(req.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event types: %w", err)
	}

	endpoint := &Endpoint{
		WorkspaceID: workspaceID,
		URL:         strings.TrimSpace(req.URL),
		Secret:      secret,
		Events:      req.Events,
		Active:      true,
		CreatedBy:   createdBy,
	}

	query := `
		INSERT INTO webhook_endpoints (workspace_id, url, secret, events, active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRow(query, endpoint.WorkspaceID, endpoint.URL, endpoint.Secret,
		eventsJSON, endpoint.Active, nullableUserID(endpoint.CreatedBy)).
		Scan(&endpoint.ID, &endpoint.CreatedAt, &endpoint.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook endpoint: %w", err)
	}

	return endpoint, nil
}

// ListEndpoints returns a workspace's endpoints. Secrets are omitted.
func (s *PostgresStore) ListEndpoints(workspaceID int64) ([]*Endpoint, error) {
	query := `
		SELECT id, workspace_id, url, events, active, created_by, created_at, updated_at
		FROM webhook_endpoints
		WHERE workspace_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*Endpoint
	for rows.Next() {
		endpoint := &Endpoint{}
		var createdBy sql.NullInt64
		var eventsJSON []byte
		if err := rows.Scan(
			&endpoint.ID, &endpoint.WorkspaceID, &endpoint.URL, &eventsJSON,
			&endpoint.Active, &createdBy, &endpoint.CreatedAt, &endpoint.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook endpoint: %w", err)
		}
		endpoint.CreatedBy = createdBy.Int64
		if err := json.Unmarshal(eventsJSON, &endpoint.Events); err != nil {
			return nil, fmt.Errorf("failed to decode event types: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, nil
}

// ActiveEndpointsForEvent returns the workspace endpoints subscribed to an
// event type, secrets included, for the dispatcher.
func (s *PostgresStore) ActiveEndpointsForEvent(workspaceID int64, eventType string) ([]*Endpoint, error) {
	query := `
		SELECT id, workspace_id, url, secret, events, active, created_by, created_at, updated_at
		FROM webhook_endpoints
		WHERE workspace_id = $1 AND active = TRUE AND events @> $2
	`
	eventJSON, err := json.Marshal([]string{eventType})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event filter: %w", err)
	}

	rows, err := s.db.Query(query, workspaceID, eventJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*Endpoint
	for rows.Next() {
		endpoint := &Endpoint{}
		var createdBy sql.NullInt64
		var eventsJSON []byte
		if err := rows.Scan(
			&endpoint.ID, &endpoint.WorkspaceID, &endpoint.URL, &endpoint.Secret, &eventsJSON,
			&endpoint.Active, &createdBy, &endpoint.CreatedAt, &endpoint.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook endpoint: %w", err)
		}
		endpoint.CreatedBy = createdBy.Int64
		if err := json.Unmarshal(eventsJSON, &endpoint.Events); err != nil {
			return nil, fmt.Errorf("failed to decode event types: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, nil
}

// DeleteEndpoint removes an endpoint scoped to a workspace
func (s *PostgresStore) DeleteEndpoint(workspaceID, endpointID int64) error {
	result, err := s.db.Exec(
		"DELETE FROM webhook_endpoints WHERE workspace_id = $1 AND id = $2", workspaceID, endpointID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete webhook endpoint: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEndpointNotFound
	}

	return nil
}

// RecordDelivery writes one delivery-log row
func (s *PostgresStore) RecordDelivery(d *Delivery) error {
	query := `
		INSERT INTO webhook_deliveries (id, endpoint_id, event_type, status, status_code, attempts, error, delivered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var statusCode interface{}
	if d.StatusCode != 0 {
		statusCode = d.StatusCode
	}
	_, err := s.db.Exec(query, d.ID, d.EndpointID, d.EventType, d.Status,
		statusCode, d.Attempts, nullIfEmpty(d.Error), d.DeliveredAt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns recent deliveries for an endpoint
func (s *PostgresStore) ListDeliveries(endpointID int64, limit int) ([]*Delivery, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, endpoint_id, event_type, status, status_code, attempts, error, delivered_at, created_at
		FROM webhook_deliveries
		WHERE endpoint_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(query, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		d := &Delivery{}
		var statusCode sql.NullInt64
		var errMsg sql.NullString
		var deliveredAt sql.NullTime
		if err := rows.Scan(
			&d.ID, &d.EndpointID, &d.EventType, &d.Status, &statusCode,
			&d.Attempts, &errMsg, &deliveredAt, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		if statusCode.Valid {
			d.StatusCode = int(statusCode.Int64)
		}
		if errMsg.Valid {
			d.Error = errMsg.String
		}
		if deliveredAt.Valid {
			d.DeliveredAt = &deliveredAt.Time
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableUserID maps the zero user ID to SQL NULL. Endpoints registered by
// an API key have no user to attribute, and the users FK rejects a literal 0.
func nullableUserID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
