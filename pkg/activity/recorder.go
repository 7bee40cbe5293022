package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workroomhq/workroom/pkg/async"
)

// PostgresRecorder implements Recorder using PostgreSQL
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates a new PostgresRecorder
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record persists one event
func (r *PostgresRecorder) Record(event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]interface{}{}
	}

	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}

	query := `
		INSERT INTO activity_events (id, workspace_id, actor_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.Exec(query, event.ID, event.WorkspaceID, event.ActorID,
		event.Type, metadataJSON, event.CreatedAt); err != nil {
		return fmt.Errorf("failed to record activity event: %w", err)
	}

	return nil
}

// List returns the newest events for a workspace
func (r *PostgresRecorder) List(workspaceID int64, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, workspace_id, actor_id, event_type, metadata, created_at
		FROM activity_events
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var actorID sql.NullInt64
		var metadataJSON []byte
		if err := rows.Scan(
			&event.ID, &event.WorkspaceID, &actorID, &event.Type, &metadataJSON, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		if actorID.Valid {
			event.ActorID = &actorID.Int64
		}
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode event metadata: %w", err)
		}
		events = append(events, event)
	}

	return events, nil
}

// Emitter records events fire-and-forget. The primary operation has already
// succeeded by the time an event is emitted; a recording failure is logged
// and swallowed.
type Emitter struct {
	recorder Recorder
}

// NewEmitter creates an Emitter over a Recorder
func NewEmitter(recorder Recorder) *Emitter {
	return &Emitter{recorder: recorder}
}

// Emit records the event in the background.
func (e *Emitter) Emit(workspaceID int64, actorID *int64, eventType EventType, metadata map[string]interface{}) {
	event := &Event{
		WorkspaceID: workspaceID,
		ActorID:     actorID,
		Type:        eventType,
		Metadata:    metadata,
	}
	async.SafeGo(context.Background(), 5*time.Second, "activity event", func(ctx context.Context) error {
		return e.recorder.Record(event)
	})
}
