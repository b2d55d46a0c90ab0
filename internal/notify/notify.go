// Package notify enqueues and delivers alert notifications. Delivery goes
// through the delayed-job queue so transient sender failures retry with
// backoff instead of blocking the ingest path. Concrete chat/paging senders
// live behind the Sender interface; the default sender logs what it would
// deliver.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/metrics"
	"signalcraft-go/internal/queue"
)

// QueueName is the delayed-job queue notifications travel on.
const QueueName = "notifications"

// Notification kinds, used for metrics and sender formatting.
const (
	KindRule       = "rule"
	KindFallback   = "fallback"
	KindEscalation = "escalation"
)

// Payload is the job body for one notification.
type Payload struct {
	Kind         string `json:"kind"`
	WorkspaceID  string `json:"workspace_id"`
	AlertGroupID string `json:"alert_group_id"`
	ChannelID    string `json:"channel_id,omitempty"`
	RuleID       string `json:"rule_id,omitempty"`
	RuleName     string `json:"rule_name,omitempty"`

	MentionHere     bool `json:"mention_here,omitempty"`
	MentionChannel  bool `json:"mention_channel,omitempty"`
	EscalationLevel int  `json:"escalation_level,omitempty"`

	Title       string          `json:"title"`
	Severity    domain.Severity `json:"severity"`
	Project     string          `json:"project,omitempty"`
	Environment string          `json:"environment,omitempty"`
	Count       int             `json:"count,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Notifier enqueues notification jobs.
type Notifier struct {
	queue queue.Queue
}

// NewNotifier creates a notifier on the given queue.
func NewNotifier(q queue.Queue) *Notifier {
	return &Notifier{queue: q}
}

// Enqueue schedules a notification for immediate delivery. The returned job
// ID is informational; the core treats delivery as fire-and-forget.
func (n *Notifier) Enqueue(ctx context.Context, payload *Payload) (string, error) {
	payload.EnqueuedAt = time.Now().UTC()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal notification: %w", err)
	}

	jobID, err := n.queue.Enqueue(ctx, QueueName, "send-notification", body, queue.Options{})
	if err != nil {
		return "", &domain.TransientDispatchError{Err: err}
	}

	metrics.NotificationsEnqueuedTotal.WithLabelValues(payload.WorkspaceID, payload.Kind).Inc()
	return jobID, nil
}
