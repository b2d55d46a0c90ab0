package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"signalcraft-go/internal/domain"
)

const groupColumns = `id, workspace_id, fingerprint, title, project, environment,
	   severity, status, count, first_seen_at, last_seen_at, snooze_until,
	   resolved_at, resolution_notes, last_resolved_by, avg_resolution_mins,
	   assignee_user_id, velocity_per_hour, user_count`

// uniqueViolation is the PostgreSQL error code raised when an insert races
// another writer on the active-fingerprint index.
const uniqueViolation = "23505"

// GroupRepository implements store.GroupRepository using PostgreSQL.
type GroupRepository struct {
	db *DB
}

// NewGroupRepository creates a new PostgreSQL-backed group repository.
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// UpsertOccurrence atomically folds an occurrence into the live group for
// (workspaceID, fingerprint). The partial unique index on active groups
// guarantees at most one non-RESOLVED group per fingerprint even under
// concurrent ingestion: a racing insert fails with a unique violation and the
// loser retries against the winner's row.
func (r *GroupRepository) UpsertOccurrence(ctx context.Context, workspaceID string, alert *domain.CanonicalAlert, reopenResolved bool) (*domain.AlertGroup, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		group, created, err := r.tryUpsert(ctx, workspaceID, alert, reopenResolved)
		if err == nil {
			return group, created, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			continue
		}
		return nil, false, err
	}
	return nil, false, fmt.Errorf("failed to upsert occurrence after retry")
}

func (r *GroupRepository) tryUpsert(ctx context.Context, workspaceID string, alert *domain.CanonicalAlert, reopenResolved bool) (*domain.AlertGroup, bool, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the active row if one exists.
	query := fmt.Sprintf(`
		SELECT %s FROM alert_groups
		WHERE workspace_id = $1 AND fingerprint = $2 AND status <> 'RESOLVED'
		FOR UPDATE
	`, groupColumns)

	group, err := scanGroup(tx.QueryRow(ctx, query, workspaceID, alert.Fingerprint))
	switch {
	case err == nil:
		group.ApplyOccurrence(alert)
		if err := updateGroupTx(ctx, tx, group); err != nil {
			return nil, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit upsert: %w", err)
		}
		return group, false, nil

	case errors.Is(err, pgx.ErrNoRows):
		// Fall through to reopen or insert.

	default:
		return nil, false, fmt.Errorf("failed to select active group: %w", err)
	}

	if reopenResolved {
		reopened, err := r.tryReopen(ctx, tx, workspaceID, alert)
		if err != nil {
			return nil, false, err
		}
		if reopened != nil {
			if err := tx.Commit(ctx); err != nil {
				return nil, false, fmt.Errorf("failed to commit reopen: %w", err)
			}
			return reopened, false, nil
		}
	}

	group = domain.NewAlertGroup(workspaceID, alert)
	group.ID = uuid.NewString()

	insert := `
		INSERT INTO alert_groups (
			id, workspace_id, fingerprint, title, project, environment,
			severity, status, count, first_seen_at, last_seen_at, user_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, insert,
		group.ID,
		group.WorkspaceID,
		group.Fingerprint,
		group.Title,
		group.Project,
		group.Environment,
		group.Severity,
		group.Status,
		group.Count,
		group.FirstSeenAt,
		group.LastSeenAt,
		group.UserCount,
	)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit insert: %w", err)
	}
	return group, true, nil
}

// tryReopen reopens the most recently resolved group for the fingerprint.
// Returns nil when no resolved group exists.
func (r *GroupRepository) tryReopen(ctx context.Context, tx pgx.Tx, workspaceID string, alert *domain.CanonicalAlert) (*domain.AlertGroup, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM alert_groups
		WHERE workspace_id = $1 AND fingerprint = $2 AND status = 'RESOLVED'
		ORDER BY last_seen_at DESC
		LIMIT 1
		FOR UPDATE
	`, groupColumns)

	group, err := scanGroup(tx.QueryRow(ctx, query, workspaceID, alert.Fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select resolved group: %w", err)
	}

	group.Reopen()
	group.ApplyOccurrence(alert)
	if err := updateGroupTx(ctx, tx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// GetByID retrieves a group by its database ID.
func (r *GroupRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.AlertGroup, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM alert_groups WHERE workspace_id = $1 AND id = $2
	`, groupColumns)

	group, err := scanGroup(r.db.pool.QueryRow(ctx, query, workspaceID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// GetActiveByFingerprint retrieves the non-RESOLVED group for a fingerprint.
func (r *GroupRepository) GetActiveByFingerprint(ctx context.Context, workspaceID, fingerprint string) (*domain.AlertGroup, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM alert_groups
		WHERE workspace_id = $1 AND fingerprint = $2 AND status <> 'RESOLVED'
	`, groupColumns)

	group, err := scanGroup(r.db.pool.QueryRow(ctx, query, workspaceID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get active group: %w", err)
	}
	return group, nil
}

// Update persists lifecycle mutations.
func (r *GroupRepository) Update(ctx context.Context, group *domain.AlertGroup) error {
	result, err := r.db.pool.Exec(ctx, groupUpdateQuery, groupUpdateArgs(group)...)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

// UpdateVelocity persists the occurrence-rate estimate for a group.
func (r *GroupRepository) UpdateVelocity(ctx context.Context, workspaceID, id string, perHour float64) error {
	query := `UPDATE alert_groups SET velocity_per_hour = $3 WHERE workspace_id = $1 AND id = $2`

	result, err := r.db.pool.Exec(ctx, query, workspaceID, id, perHour)
	if err != nil {
		return fmt.Errorf("failed to update velocity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

// List retrieves groups matching the filter criteria, newest first.
func (r *GroupRepository) List(ctx context.Context, filter domain.GroupFilter) ([]*domain.AlertGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM alert_groups WHERE 1=1`, groupColumns)
	args := []interface{}{}
	argNum := 1

	if filter.WorkspaceID != "" {
		query += fmt.Sprintf(" AND workspace_id = $%d", argNum)
		args = append(args, filter.WorkspaceID)
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	if filter.Project != "" {
		query += fmt.Sprintf(" AND project = $%d", argNum)
		args = append(args, filter.Project)
		argNum++
	}
	if filter.Environment != "" {
		query += fmt.Sprintf(" AND environment = $%d", argNum)
		args = append(args, filter.Environment)
		argNum++
	}

	query += " ORDER BY last_seen_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.AlertGroup
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}
	return groups, nil
}

const groupUpdateQuery = `
	UPDATE alert_groups SET
		title = $3,
		severity = $4,
		status = $5,
		count = $6,
		last_seen_at = $7,
		snooze_until = $8,
		resolved_at = $9,
		resolution_notes = $10,
		last_resolved_by = $11,
		avg_resolution_mins = $12,
		assignee_user_id = $13,
		user_count = $14
	WHERE workspace_id = $1 AND id = $2
`

func groupUpdateArgs(group *domain.AlertGroup) []interface{} {
	return []interface{}{
		group.WorkspaceID,
		group.ID,
		group.Title,
		group.Severity,
		group.Status,
		group.Count,
		group.LastSeenAt,
		group.SnoozeUntil,
		group.ResolvedAt,
		group.ResolutionNotes,
		group.LastResolvedBy,
		group.AvgResolutionMins,
		group.AssigneeUserID,
		group.UserCount,
	}
}

func updateGroupTx(ctx context.Context, tx pgx.Tx, group *domain.AlertGroup) error {
	result, err := tx.Exec(ctx, groupUpdateQuery, groupUpdateArgs(group)...)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

// scanGroup scans a single row into an AlertGroup.
func scanGroup(row pgx.Row) (*domain.AlertGroup, error) {
	var group domain.AlertGroup

	err := row.Scan(
		&group.ID,
		&group.WorkspaceID,
		&group.Fingerprint,
		&group.Title,
		&group.Project,
		&group.Environment,
		&group.Severity,
		&group.Status,
		&group.Count,
		&group.FirstSeenAt,
		&group.LastSeenAt,
		&group.SnoozeUntil,
		&group.ResolvedAt,
		&group.ResolutionNotes,
		&group.LastResolvedBy,
		&group.AvgResolutionMins,
		&group.AssigneeUserID,
		&group.VelocityPerHour,
		&group.UserCount,
	)
	if err != nil {
		return nil, err
	}
	return &group, nil
}
