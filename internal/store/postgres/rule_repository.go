package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"signalcraft-go/internal/domain"
)

// RuleRepository implements store.RuleRepository using PostgreSQL. Conditions
// and actions are stored as JSONB so rule shape changes do not need schema
// migrations.
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new PostgreSQL-backed rule repository.
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create stores a new routing rule.
func (r *RuleRepository) Create(ctx context.Context, rule *domain.RoutingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	conditions, actions, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO routing_rules (
			id, workspace_id, name, description, priority, enabled,
			conditions, actions, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.pool.Exec(ctx, query,
		rule.ID,
		rule.WorkspaceID,
		rule.Name,
		rule.Description,
		rule.Priority,
		rule.Enabled,
		conditions,
		actions,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Update modifies an existing routing rule.
func (r *RuleRepository) Update(ctx context.Context, rule *domain.RoutingRule) error {
	rule.UpdatedAt = time.Now()

	conditions, actions, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE routing_rules SET
			name = $3,
			description = $4,
			priority = $5,
			enabled = $6,
			conditions = $7,
			actions = $8,
			updated_at = $9
		WHERE workspace_id = $1 AND id = $2
	`

	result, err := r.db.pool.Exec(ctx, query,
		rule.WorkspaceID,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Priority,
		rule.Enabled,
		conditions,
		actions,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// Delete removes a routing rule by ID.
func (r *RuleRepository) Delete(ctx context.Context, workspaceID, id string) error {
	result, err := r.db.pool.Exec(ctx,
		`DELETE FROM routing_rules WHERE workspace_id = $1 AND id = $2`,
		workspaceID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// GetByID retrieves a routing rule by its ID.
func (r *RuleRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.RoutingRule, error) {
	query := `
		SELECT id, workspace_id, name, description, priority, enabled,
			   conditions, actions, created_at, updated_at
		FROM routing_rules
		WHERE workspace_id = $1 AND id = $2
	`

	rule, err := scanRule(r.db.pool.QueryRow(ctx, query, workspaceID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List retrieves all rules for a workspace in ascending priority order.
func (r *RuleRepository) List(ctx context.Context, workspaceID string) ([]*domain.RoutingRule, error) {
	return r.list(ctx, workspaceID, false)
}

// ListEnabled retrieves enabled rules for a workspace in ascending priority
// order.
func (r *RuleRepository) ListEnabled(ctx context.Context, workspaceID string) ([]*domain.RoutingRule, error) {
	return r.list(ctx, workspaceID, true)
}

func (r *RuleRepository) list(ctx context.Context, workspaceID string, enabledOnly bool) ([]*domain.RoutingRule, error) {
	query := `
		SELECT id, workspace_id, name, description, priority, enabled,
			   conditions, actions, created_at, updated_at
		FROM routing_rules
		WHERE workspace_id = $1
	`
	if enabledOnly {
		query += " AND enabled = TRUE"
	}
	query += " ORDER BY priority ASC, created_at ASC"

	rows, err := r.db.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.RoutingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func marshalRule(rule *domain.RoutingRule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	return conditions, actions, nil
}

// scanRule scans a single row into a RoutingRule.
func scanRule(row pgx.Row) (*domain.RoutingRule, error) {
	var rule domain.RoutingRule
	var conditions, actions []byte

	err := row.Scan(
		&rule.ID,
		&rule.WorkspaceID,
		&rule.Name,
		&rule.Description,
		&rule.Priority,
		&rule.Enabled,
		&conditions,
		&actions,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}
	return &rule, nil
}
