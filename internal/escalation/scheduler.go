// Package escalation schedules and executes delayed escalation checks. When
// a matched rule carries an escalation policy, a delayed job is enqueued; if
// the group is still unhandled when the job fires, an escalation notification
// goes out and the next level is scheduled, up to a fixed cap. Acknowledging
// or resolving the group cancels the pending job through a durable
// group-to-job index.
package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/metrics"
	"signalcraft-go/internal/queue"
	"signalcraft-go/internal/store"
)

// QueueName is the delayed-job queue escalation checks travel on.
const QueueName = "escalations"

const jobName = "escalation-check"

// Scheduler schedules, reschedules, and cancels escalation checks.
type Scheduler struct {
	queue  queue.Queue
	index  store.EscalationIndex
	groups store.GroupRepository
	logger *slog.Logger
}

// NewScheduler creates an escalation scheduler.
func NewScheduler(q queue.Queue, index store.EscalationIndex, groups store.GroupRepository, logger *slog.Logger) *Scheduler {
	return &Scheduler{queue: q, index: index, groups: groups, logger: logger}
}

// Schedule enqueues a level-1 escalation check for a group per the rule's
// escalation policy. Returns the job ID, or empty string when the policy
// does not call for escalation.
func (s *Scheduler) Schedule(ctx context.Context, workspaceID, groupID string, actions *domain.RuleActions) (string, error) {
	if actions == nil || actions.EscalateAfterMinutes < 1 {
		return "", nil
	}

	channelID := actions.EscalationChannelID
	if channelID == "" {
		channelID = actions.ChannelID
	}

	job := &domain.EscalationJob{
		WorkspaceID:          workspaceID,
		AlertGroupID:         groupID,
		EscalationLevel:      1,
		EscalateAfterMinutes: actions.EscalateAfterMinutes,
		ChannelID:            channelID,
		MentionHere:          actions.EscalationMentionHere,
	}
	return s.schedule(ctx, job)
}

func (s *Scheduler) schedule(ctx context.Context, job *domain.EscalationJob) (string, error) {
	job.ScheduledAt = time.Now().UTC()

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal escalation job: %w", err)
	}

	jobID, err := s.queue.Enqueue(ctx, QueueName, jobName, body, queue.Options{
		Delay: time.Duration(job.EscalateAfterMinutes) * time.Minute,
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue escalation check: %w", err)
	}

	if err := s.index.Set(ctx, job.WorkspaceID, job.AlertGroupID, jobID); err != nil {
		// The job will still fire; ShouldEscalate suppresses it if the group
		// gets handled, so a stale index costs a wasted check, not a wrong
		// notification.
		s.logger.Warn("failed to index escalation job",
			"workspace_id", job.WorkspaceID, "group_id", job.AlertGroupID, "error", err)
	}

	metrics.EscalationsScheduledTotal.WithLabelValues(job.WorkspaceID).Inc()
	s.logger.Info("escalation scheduled",
		"workspace_id", job.WorkspaceID,
		"group_id", job.AlertGroupID,
		"level", job.EscalationLevel,
		"after_minutes", job.EscalateAfterMinutes,
		"job_id", jobID,
	)
	return jobID, nil
}

// Cancel removes the pending escalation check for a group, if any. Returns
// whether a pending job was found.
func (s *Scheduler) Cancel(ctx context.Context, workspaceID, groupID string) (bool, error) {
	jobID, err := s.index.Get(ctx, workspaceID, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to look up escalation job: %w", err)
	}
	if jobID == "" {
		return false, nil
	}

	if err := s.queue.Cancel(ctx, QueueName, jobID); err != nil && !errors.Is(err, queue.ErrJobNotFound) {
		return false, fmt.Errorf("failed to cancel escalation job: %w", err)
	}
	if err := s.index.Delete(ctx, workspaceID, groupID); err != nil {
		s.logger.Warn("failed to delete escalation index entry",
			"workspace_id", workspaceID, "group_id", groupID, "error", err)
	}

	s.logger.Info("escalation canceled",
		"workspace_id", workspaceID, "group_id", groupID, "job_id", jobID)
	return true, nil
}

// CancelWorkspace cancels every pending escalation in a workspace. Returns
// how many pending jobs were found.
func (s *Scheduler) CancelWorkspace(ctx context.Context, workspaceID string) (int, error) {
	groupIDs, err := s.index.ListGroups(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending escalations: %w", err)
	}

	canceled := 0
	for _, groupID := range groupIDs {
		found, err := s.Cancel(ctx, workspaceID, groupID)
		if err != nil {
			return canceled, err
		}
		if found {
			canceled++
		}
	}
	return canceled, nil
}

// ShouldEscalate reports whether a group still warrants escalation: it must
// exist, be neither acknowledged nor resolved, and not be under an active
// snooze.
func (s *Scheduler) ShouldEscalate(ctx context.Context, workspaceID, groupID string) (bool, error) {
	group, err := s.groups.GetByID(ctx, workspaceID, groupID)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return false, nil
		}
		return false, err
	}

	switch group.Status {
	case domain.GroupStatusAck, domain.GroupStatusResolved:
		return false, nil
	case domain.GroupStatusSnoozed:
		if group.SnoozeUntil != nil && group.SnoozeUntil.After(time.Now().UTC()) {
			return false, nil
		}
		return true, nil
	default:
		return true, nil
	}
}
