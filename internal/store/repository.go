// Package store defines interfaces for persistent storage of alert groups,
// events, routing rules, and the escalation index. This abstraction allows
// swapping implementations (PostgreSQL, Redis, in-memory) without changing
// business logic.
package store

import (
	"context"
	"time"

	"signalcraft-go/internal/domain"
)

// GroupRepository defines the interface for alert group persistence.
// This is typically backed by PostgreSQL for production use.
type GroupRepository interface {
	// UpsertOccurrence atomically folds an occurrence into the live group for
	// (workspaceID, fingerprint), creating a new OPEN group when none exists.
	// When reopenResolved is set and the only candidate is RESOLVED, that
	// group is reopened instead. Returns the resulting group and whether a
	// new group was created.
	UpsertOccurrence(ctx context.Context, workspaceID string, alert *domain.CanonicalAlert, reopenResolved bool) (*domain.AlertGroup, bool, error)

	// GetByID retrieves a group by its database ID.
	GetByID(ctx context.Context, workspaceID, id string) (*domain.AlertGroup, error)

	// GetActiveByFingerprint retrieves the non-RESOLVED group for a
	// fingerprint, or domain.ErrGroupNotFound.
	GetActiveByFingerprint(ctx context.Context, workspaceID, fingerprint string) (*domain.AlertGroup, error)

	// Update persists lifecycle mutations (ack, resolve, snooze, reopen).
	Update(ctx context.Context, group *domain.AlertGroup) error

	// UpdateVelocity persists the occurrence-rate estimate for a group.
	UpdateVelocity(ctx context.Context, workspaceID, id string, perHour float64) error

	// List retrieves groups matching the filter criteria.
	List(ctx context.Context, filter domain.GroupFilter) ([]*domain.AlertGroup, error)
}

// EventRepository defines the interface for the append-only event log.
type EventRepository interface {
	// Insert stores a new event row.
	Insert(ctx context.Context, event *domain.AlertEvent) error

	// Exists reports whether an event with the given source event ID has
	// already been ingested for the workspace and source.
	Exists(ctx context.Context, workspaceID, source, sourceEventID string) (bool, error)

	// ListByGroup retrieves events folded into a group, newest first.
	ListByGroup(ctx context.Context, workspaceID, groupID string, limit int) ([]*domain.AlertEvent, error)

	// CountForGroupSince counts occurrences for a group received after the
	// given time, used for velocity estimation.
	CountForGroupSince(ctx context.Context, workspaceID, groupID string, since time.Time) (int, error)
}

// RuleRepository defines the interface for routing rule persistence.
type RuleRepository interface {
	// Create stores a new routing rule.
	Create(ctx context.Context, rule *domain.RoutingRule) error

	// Update modifies an existing routing rule.
	Update(ctx context.Context, rule *domain.RoutingRule) error

	// Delete removes a routing rule by ID.
	Delete(ctx context.Context, workspaceID, id string) error

	// GetByID retrieves a routing rule by its ID.
	GetByID(ctx context.Context, workspaceID, id string) (*domain.RoutingRule, error)

	// List retrieves all rules for a workspace, enabled or not, in ascending
	// priority order.
	List(ctx context.Context, workspaceID string) ([]*domain.RoutingRule, error)

	// ListEnabled retrieves only enabled rules for a workspace in ascending
	// priority order.
	ListEnabled(ctx context.Context, workspaceID string) ([]*domain.RoutingRule, error)
}

// EscalationIndex maps alert group IDs to their pending escalation job so a
// handled group can cancel the delayed check. The index must be durable in
// production deployments: it is consulted across process restarts.
type EscalationIndex interface {
	// Set records the pending job for a group, replacing any previous entry.
	Set(ctx context.Context, workspaceID, groupID, jobID string) error

	// Get returns the pending job ID for a group, or empty string when none.
	Get(ctx context.Context, workspaceID, groupID string) (string, error)

	// Delete removes the entry for a group. Deleting a missing entry is not
	// an error.
	Delete(ctx context.Context, workspaceID, groupID string) error

	// ListGroups returns the group IDs with a pending escalation entry in the
	// workspace, used for bulk cancellation.
	ListGroups(ctx context.Context, workspaceID string) ([]string, error)
}
