// Package grouping owns the alert group lifecycle: folding occurrences into
// groups, acknowledging, resolving, snoozing, and keeping the velocity
// estimate current. All status transitions go through this service so
// escalation cancellation and event broadcasting stay consistent.
package grouping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalcraft-go/internal/broadcast"
	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/metrics"
	"signalcraft-go/internal/store"
)

// EscalationCanceler cancels a pending escalation for a group. Implemented by
// the escalation scheduler; declared here so the lifecycle operations can
// cancel without importing the scheduler package.
type EscalationCanceler interface {
	Cancel(ctx context.Context, workspaceID, groupID string) (bool, error)
}

// Service implements alert group lifecycle operations.
type Service struct {
	groups      store.GroupRepository
	events      store.EventRepository
	escalations EscalationCanceler
	broadcaster broadcast.Broadcaster
	logger      *slog.Logger

	// reopenOnRecurrence controls whether a recurrence after resolution
	// reopens the resolved group instead of opening a fresh one.
	reopenOnRecurrence bool
}

// NewService creates a grouping service.
func NewService(
	groups store.GroupRepository,
	events store.EventRepository,
	escalations EscalationCanceler,
	broadcaster broadcast.Broadcaster,
	reopenOnRecurrence bool,
	logger *slog.Logger,
) *Service {
	return &Service{
		groups:             groups,
		events:             events,
		escalations:        escalations,
		broadcaster:        broadcaster,
		reopenOnRecurrence: reopenOnRecurrence,
		logger:             logger,
	}
}

// UpsertGroup folds a canonical alert into the live group for its
// fingerprint, creating a new OPEN group when none exists. Returns the
// resulting group and whether it was newly created.
func (s *Service) UpsertGroup(ctx context.Context, workspaceID string, alert *domain.CanonicalAlert) (*domain.AlertGroup, bool, error) {
	group, created, err := s.groups.UpsertOccurrence(ctx, workspaceID, alert, s.reopenOnRecurrence)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert group: %w", err)
	}

	if created {
		metrics.GroupsCreatedTotal.WithLabelValues(workspaceID).Inc()
		s.logger.Info("alert group created",
			"workspace_id", workspaceID,
			"group_id", group.ID,
			"fingerprint", group.Fingerprint,
			"severity", group.Severity,
		)
	}
	metrics.GroupOccurrences.Observe(float64(group.Count))

	return group, created, nil
}

// RecomputeVelocity refreshes a group's trailing-hour occurrence rate from
// the event log. Failures are logged, not propagated: velocity is a derived
// estimate and never blocks ingestion.
func (s *Service) RecomputeVelocity(ctx context.Context, workspaceID, groupID string) {
	since := time.Now().UTC().Add(-time.Hour)
	count, err := s.events.CountForGroupSince(ctx, workspaceID, groupID, since)
	if err != nil {
		s.logger.Warn("failed to count recent events for velocity",
			"workspace_id", workspaceID, "group_id", groupID, "error", err)
		return
	}

	if err := s.groups.UpdateVelocity(ctx, workspaceID, groupID, float64(count)); err != nil {
		s.logger.Warn("failed to update group velocity",
			"workspace_id", workspaceID, "group_id", groupID, "error", err)
	}
}

// Get retrieves a single group.
func (s *Service) Get(ctx context.Context, workspaceID, groupID string) (*domain.AlertGroup, error) {
	return s.groups.GetByID(ctx, workspaceID, groupID)
}

// List retrieves groups matching the filter.
func (s *Service) List(ctx context.Context, filter domain.GroupFilter) ([]*domain.AlertGroup, error) {
	return s.groups.List(ctx, filter)
}

// Acknowledge marks a group as handled. Any pending escalation is canceled.
// Acknowledging an already-acknowledged or resolved group is a no-op.
func (s *Service) Acknowledge(ctx context.Context, workspaceID, groupID, userID string) (*domain.AlertGroup, error) {
	group, err := s.groups.GetByID(ctx, workspaceID, groupID)
	if err != nil {
		return nil, err
	}

	if !group.Acknowledge(userID) {
		return group, nil
	}
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	s.cancelEscalation(ctx, workspaceID, groupID)
	s.emit(ctx, workspaceID, broadcast.EventAlertUpdated, group)

	s.logger.Info("alert group acknowledged",
		"workspace_id", workspaceID, "group_id", groupID, "user_id", userID)
	return group, nil
}

// Resolve transitions a group to the terminal RESOLVED state. Any pending
// escalation is canceled. Resolving an already-resolved group is a no-op.
func (s *Service) Resolve(ctx context.Context, workspaceID, groupID, notes, resolvedBy string) (*domain.AlertGroup, error) {
	return s.resolve(ctx, workspaceID, groupID, notes, resolvedBy, "manual")
}

// ResolveRecovery resolves the live group matching a recovery payload's
// fingerprint. Returns the resolved group, or nil when no live group exists
// (recovery for an unknown or already-resolved alert is silently accepted).
func (s *Service) ResolveRecovery(ctx context.Context, workspaceID string, alert *domain.CanonicalAlert) (*domain.AlertGroup, error) {
	group, err := s.groups.GetActiveByFingerprint(ctx, workspaceID, alert.Fingerprint)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return s.resolve(ctx, workspaceID, group.ID, "auto-resolved by recovery signal from "+alert.Source, "", "recovery")
}

func (s *Service) resolve(ctx context.Context, workspaceID, groupID, notes, resolvedBy, trigger string) (*domain.AlertGroup, error) {
	group, err := s.groups.GetByID(ctx, workspaceID, groupID)
	if err != nil {
		return nil, err
	}

	if !group.Resolve(time.Now().UTC(), notes, resolvedBy) {
		return group, nil
	}
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	s.cancelEscalation(ctx, workspaceID, groupID)
	metrics.GroupsResolvedTotal.WithLabelValues(workspaceID, trigger).Inc()
	s.emit(ctx, workspaceID, broadcast.EventAlertResolved, group)

	s.logger.Info("alert group resolved",
		"workspace_id", workspaceID, "group_id", groupID, "trigger", trigger)
	return group, nil
}

// Snooze mutes a group until now+duration. Resolved groups cannot be snoozed.
func (s *Service) Snooze(ctx context.Context, workspaceID, groupID string, duration time.Duration) (*domain.AlertGroup, error) {
	if duration <= 0 {
		return nil, &domain.ValidationError{Msg: "snooze duration must be positive"}
	}

	group, err := s.groups.GetByID(ctx, workspaceID, groupID)
	if err != nil {
		return nil, err
	}

	if !group.Snooze(time.Now().UTC(), duration) {
		return nil, &domain.ValidationError{Msg: "cannot snooze a resolved group"}
	}
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	s.emit(ctx, workspaceID, broadcast.EventAlertUpdated, group)

	s.logger.Info("alert group snoozed",
		"workspace_id", workspaceID, "group_id", groupID, "until", group.SnoozeUntil)
	return group, nil
}

func (s *Service) cancelEscalation(ctx context.Context, workspaceID, groupID string) {
	if s.escalations == nil {
		return
	}
	if _, err := s.escalations.Cancel(ctx, workspaceID, groupID); err != nil {
		s.logger.Warn("failed to cancel pending escalation",
			"workspace_id", workspaceID, "group_id", groupID, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, workspaceID, event string, group *domain.AlertGroup) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Emit(ctx, workspaceID, event, group); err != nil {
		s.logger.Warn("failed to broadcast group event",
			"workspace_id", workspaceID, "group_id", group.ID, "event", event, "error", err)
	}
}
