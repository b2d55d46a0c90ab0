package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signalcraft-go/internal/domain"
)

// EventRepository implements store.EventRepository using PostgreSQL.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new PostgreSQL-backed event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert stores a new event row.
func (r *EventRepository) Insert(ctx context.Context, event *domain.AlertEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO alert_events (
			id, workspace_id, alert_group_id, source, source_event_id,
			fingerprint, title, severity, environment, project,
			raw_payload, occurred_at, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.pool.Exec(ctx, query,
		event.ID,
		event.WorkspaceID,
		event.AlertGroupID,
		event.Source,
		event.SourceEventID,
		event.Fingerprint,
		event.Title,
		event.Severity,
		event.Environment,
		event.Project,
		event.RawPayload,
		event.OccurredAt,
		event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Exists reports whether the source event has already been ingested.
func (r *EventRepository) Exists(ctx context.Context, workspaceID, source, sourceEventID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM alert_events
			WHERE workspace_id = $1 AND source = $2 AND source_event_id = $3
		)
	`

	var exists bool
	if err := r.db.pool.QueryRow(ctx, query, workspaceID, source, sourceEventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return exists, nil
}

// ListByGroup retrieves events folded into a group, newest first.
func (r *EventRepository) ListByGroup(ctx context.Context, workspaceID, groupID string, limit int) ([]*domain.AlertEvent, error) {
	query := `
		SELECT id, workspace_id, alert_group_id, source, source_event_id,
			   fingerprint, title, severity, environment, project,
			   raw_payload, occurred_at, received_at
		FROM alert_events
		WHERE workspace_id = $1 AND alert_group_id = $2
		ORDER BY received_at DESC
	`
	args := []interface{}{workspaceID, groupID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*domain.AlertEvent
	for rows.Next() {
		var event domain.AlertEvent
		err := rows.Scan(
			&event.ID,
			&event.WorkspaceID,
			&event.AlertGroupID,
			&event.Source,
			&event.SourceEventID,
			&event.Fingerprint,
			&event.Title,
			&event.Severity,
			&event.Environment,
			&event.Project,
			&event.RawPayload,
			&event.OccurredAt,
			&event.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// CountForGroupSince counts occurrences received for a group after the given
// time.
func (r *EventRepository) CountForGroupSince(ctx context.Context, workspaceID, groupID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM alert_events
		WHERE workspace_id = $1 AND alert_group_id = $2 AND received_at > $3
	`

	var count int
	if err := r.db.pool.QueryRow(ctx, query, workspaceID, groupID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
