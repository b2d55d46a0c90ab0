package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/metrics"
	"signalcraft-go/internal/notify"
	"signalcraft-go/internal/queue"
	"signalcraft-go/internal/store"
)

// Worker consumes the escalations queue. Each due job re-checks the group's
// current status before notifying, so a job that outlives an acknowledgement
// (or whose cancel raced the fire) is suppressed rather than delivered.
type Worker struct {
	scheduler *Scheduler
	groups    store.GroupRepository
	notifier  *notify.Notifier
	logger    *slog.Logger
}

// NewWorker creates an escalation worker.
func NewWorker(scheduler *Scheduler, groups store.GroupRepository, notifier *notify.Notifier, logger *slog.Logger) *Worker {
	return &Worker{scheduler: scheduler, groups: groups, notifier: notifier, logger: logger}
}

// Run consumes the queue until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.scheduler.queue.Process(ctx, QueueName, w.handle)
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	var esc domain.EscalationJob
	if err := json.Unmarshal(job.Payload, &esc); err != nil {
		w.logger.Error("dropping undecodable escalation job", "job_id", job.ID, "error", err)
		return nil
	}

	ok, err := w.scheduler.ShouldEscalate(ctx, esc.WorkspaceID, esc.AlertGroupID)
	if err != nil {
		return fmt.Errorf("failed to check escalation eligibility: %w", err)
	}
	if !ok {
		metrics.EscalationsFiredTotal.WithLabelValues(esc.WorkspaceID, "suppressed").Inc()
		w.cleanupIndex(ctx, &esc)
		w.logger.Info("escalation suppressed",
			"workspace_id", esc.WorkspaceID, "group_id", esc.AlertGroupID, "level", esc.EscalationLevel)
		return nil
	}

	group, err := w.groups.GetByID(ctx, esc.WorkspaceID, esc.AlertGroupID)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			w.cleanupIndex(ctx, &esc)
			return nil
		}
		return fmt.Errorf("failed to load group for escalation: %w", err)
	}

	_, err = w.notifier.Enqueue(ctx, &notify.Payload{
		Kind:            notify.KindEscalation,
		WorkspaceID:     esc.WorkspaceID,
		AlertGroupID:    esc.AlertGroupID,
		ChannelID:       esc.ChannelID,
		MentionHere:     esc.MentionHere,
		EscalationLevel: esc.EscalationLevel,
		Title:           group.Title,
		Severity:        group.Severity,
		Project:         group.Project,
		Environment:     group.Environment,
		Count:           group.Count,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue escalation notification: %w", err)
	}

	metrics.EscalationsFiredTotal.WithLabelValues(esc.WorkspaceID, "escalated").Inc()
	w.logger.Info("escalation fired",
		"workspace_id", esc.WorkspaceID, "group_id", esc.AlertGroupID, "level", esc.EscalationLevel)

	if esc.EscalationLevel >= domain.MaxEscalationLevel {
		w.cleanupIndex(ctx, &esc)
		return nil
	}

	next := esc
	next.EscalationLevel++
	if _, err := w.scheduler.schedule(ctx, &next); err != nil {
		return fmt.Errorf("failed to schedule next escalation level: %w", err)
	}
	return nil
}

func (w *Worker) cleanupIndex(ctx context.Context, esc *domain.EscalationJob) {
	if err := w.scheduler.index.Delete(ctx, esc.WorkspaceID, esc.AlertGroupID); err != nil {
		w.logger.Warn("failed to clean up escalation index entry",
			"workspace_id", esc.WorkspaceID, "group_id", esc.AlertGroupID, "error", err)
	}
}
