package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"signalcraft-go/internal/metrics"
	"signalcraft-go/internal/queue"
)

// Sender delivers one notification to its destination. Implementations are
// the boundary to concrete chat/paging APIs.
type Sender interface {
	Send(ctx context.Context, payload *Payload) error
}

// Worker consumes the notifications queue and hands payloads to the sender.
type Worker struct {
	queue  queue.Queue
	sender Sender
	logger *slog.Logger
}

// NewWorker creates a notification worker.
func NewWorker(q queue.Queue, sender Sender, logger *slog.Logger) *Worker {
	return &Worker{queue: q, sender: sender, logger: logger}
}

// Run consumes the queue until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.queue.Process(ctx, QueueName, w.handle)
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		w.logger.Error("dropping undecodable notification job", "job_id", job.ID, "error", err)
		return nil
	}

	if err := w.sender.Send(ctx, &payload); err != nil {
		metrics.NotificationsSentTotal.WithLabelValues(payload.WorkspaceID, "failure").Inc()
		w.logger.Warn("notification delivery failed",
			"job_id", job.ID,
			"attempt", job.Attempt,
			"workspace_id", payload.WorkspaceID,
			"alert_group_id", payload.AlertGroupID,
			"error", err,
		)
		return fmt.Errorf("send notification: %w", err)
	}

	metrics.NotificationsSentTotal.WithLabelValues(payload.WorkspaceID, "success").Inc()
	return nil
}

// LogSender is a Sender that logs what it would deliver. It stands in until
// concrete chat/paging senders are wired up.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-based sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the notification.
func (s *LogSender) Send(ctx context.Context, payload *Payload) error {
	s.logger.Info("STUB: would send notification",
		"kind", payload.Kind,
		"workspace_id", payload.WorkspaceID,
		"alert_group_id", payload.AlertGroupID,
		"channel_id", payload.ChannelID,
		"title", payload.Title,
		"severity", payload.Severity,
		"escalation_level", payload.EscalationLevel,
	)
	return nil
}
