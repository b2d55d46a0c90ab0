// Package pipeline orchestrates alert intake: normalize, deduplicate, group,
// evaluate routing rules, dispatch notifications, and schedule escalations.
// Process is the single entry point webhooks flow through.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"signalcraft-go/internal/broadcast"
	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/escalation"
	"signalcraft-go/internal/grouping"
	"signalcraft-go/internal/metrics"
	"signalcraft-go/internal/normalize"
	"signalcraft-go/internal/notify"
	"signalcraft-go/internal/rules"
	"signalcraft-go/internal/store"
)

// ProcessingResult summarizes what one intake pass did.
type ProcessingResult struct {
	Duplicate bool   `json:"duplicate"`
	Resolved  bool   `json:"resolved,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`

	RulesEvaluated       int `json:"rules_evaluated"`
	RulesMatched         int `json:"rules_matched"`
	NotificationsQueued  int `json:"notifications_queued"`
	EscalationsScheduled int `json:"escalations_scheduled"`
}

// Service wires the pipeline stages together.
type Service struct {
	groups      *grouping.Service
	events      store.EventRepository
	engine      *rules.Engine
	notifier    *notify.Notifier
	escalations *escalation.Scheduler
	broadcaster broadcast.Broadcaster
	logger      *slog.Logger

	// defaultChannelID receives the fallback notification when no rule
	// matches. Empty means the workspace is misconfigured for unmatched
	// alerts.
	defaultChannelID string
}

// NewService creates the pipeline orchestrator.
func NewService(
	groups *grouping.Service,
	events store.EventRepository,
	engine *rules.Engine,
	notifier *notify.Notifier,
	escalations *escalation.Scheduler,
	broadcaster broadcast.Broadcaster,
	defaultChannelID string,
	logger *slog.Logger,
) *Service {
	return &Service{
		groups:           groups,
		events:           events,
		engine:           engine,
		notifier:         notifier,
		escalations:      escalations,
		broadcaster:      broadcaster,
		defaultChannelID: defaultChannelID,
		logger:           logger,
	}
}

// Process ingests one raw webhook payload for a workspace. Validation
// failures return a domain.ValidationError; infrastructure failures return a
// domain.InternalError or the underlying error. Duplicate events short-circuit
// with Duplicate set and no side effects.
func (s *Service) Process(ctx context.Context, workspaceID, source string, payload []byte) (*ProcessingResult, error) {
	start := time.Now()
	result, err := s.process(ctx, workspaceID, source, payload)
	elapsed := time.Since(start)

	outcome := "processed"
	switch {
	case err != nil && domain.IsValidation(err):
		outcome = "rejected"
	case err != nil:
		outcome = "failed"
	case result.Duplicate:
		outcome = "duplicate"
	case result.Resolved:
		outcome = "resolved"
	}
	metrics.PipelineProcessedTotal.WithLabelValues(workspaceID, outcome).Inc()
	metrics.PipelineLatency.Observe(elapsed.Seconds())

	if err != nil {
		return nil, err
	}

	s.logger.Info("alert processed",
		"workspace_id", workspaceID,
		"source", source,
		"group_id", result.GroupID,
		"duplicate", result.Duplicate,
		"resolved", result.Resolved,
		"rules_matched", result.RulesMatched,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (s *Service) process(ctx context.Context, workspaceID, source string, payload []byte) (*ProcessingResult, error) {
	metrics.AlertsReceivedTotal.WithLabelValues(workspaceID, source).Inc()

	alert, err := normalize.Normalize(source, payload)
	if err != nil {
		metrics.AlertsRejectedTotal.WithLabelValues(workspaceID, source).Inc()
		return nil, err
	}

	// Recovery payloads resolve the live group instead of routing.
	if alert.Resolved {
		group, err := s.groups.ResolveRecovery(ctx, workspaceID, alert)
		if err != nil {
			return nil, &domain.InternalError{Msg: "failed to resolve recovery", Err: err}
		}
		result := &ProcessingResult{Resolved: true}
		if group != nil {
			result.GroupID = group.ID
		}
		return result, nil
	}

	dup, err := s.events.Exists(ctx, workspaceID, alert.Source, alert.SourceEventID)
	if err != nil {
		return nil, &domain.InternalError{Msg: "failed to check for duplicate event", Err: err}
	}
	if dup {
		metrics.DuplicateEventsTotal.WithLabelValues(workspaceID, source).Inc()
		return &ProcessingResult{Duplicate: true}, nil
	}

	group, created, err := s.groups.UpsertGroup(ctx, workspaceID, alert)
	if err != nil {
		return nil, &domain.InternalError{Msg: "failed to upsert alert group", Err: err}
	}

	event := domain.NewAlertEvent(workspaceID, group.ID, alert, json.RawMessage(payload), time.Now().UTC())
	if err := s.events.Insert(ctx, event); err != nil {
		return nil, &domain.InternalError{Msg: "failed to record alert event", Err: err}
	}

	s.groups.RecomputeVelocity(ctx, workspaceID, group.ID)

	result := &ProcessingResult{GroupID: group.ID, EventID: event.ID}

	evaluations, err := s.engine.EvaluateRules(ctx, workspaceID, &domain.AlertForEvaluation{
		ID:          group.ID,
		WorkspaceID: workspaceID,
		Environment: alert.Environment,
		Severity:    string(group.Severity),
		Project:     alert.Project,
		Title:       alert.Title,
		Source:      alert.Source,
		Status:      string(group.Status),
		Count:       group.Count,
		Tags:        alert.Tags,
	})
	if err != nil {
		return nil, &domain.InternalError{Msg: "failed to evaluate routing rules", Err: err}
	}
	result.RulesEvaluated = len(evaluations)

	for _, eval := range evaluations {
		if !eval.Matched {
			continue
		}
		result.RulesMatched++
		s.dispatchMatch(ctx, workspaceID, group, &eval, result)
	}

	if result.RulesMatched == 0 {
		if err := s.dispatchFallback(ctx, workspaceID, group); err != nil {
			return nil, err
		}
		result.NotificationsQueued++
	}

	eventName := broadcast.EventAlertUpdated
	if created {
		eventName = broadcast.EventAlertCreated
	}
	if err := s.broadcaster.Emit(ctx, workspaceID, eventName, group); err != nil {
		s.logger.Warn("failed to broadcast alert event",
			"workspace_id", workspaceID, "group_id", group.ID, "error", err)
	}

	return result, nil
}

// dispatchMatch handles one matched rule: a notification plus optional
// escalation scheduling. Dispatch failures degrade the result rather than
// failing the intake, the event and group are already durable.
func (s *Service) dispatchMatch(ctx context.Context, workspaceID string, group *domain.AlertGroup, eval *domain.RuleEvaluationResult, result *ProcessingResult) {
	actions := eval.Actions
	if actions == nil {
		return
	}

	if actions.ChannelID != "" {
		_, err := s.notifier.Enqueue(ctx, &notify.Payload{
			Kind:           notify.KindRule,
			WorkspaceID:    workspaceID,
			AlertGroupID:   group.ID,
			ChannelID:      actions.ChannelID,
			RuleID:         eval.RuleID,
			RuleName:       eval.RuleName,
			MentionHere:    actions.MentionHere,
			MentionChannel: actions.MentionChannel,
			Title:          group.Title,
			Severity:       group.Severity,
			Project:        group.Project,
			Environment:    group.Environment,
			Count:          group.Count,
		})
		if err != nil {
			s.logger.Warn("failed to enqueue rule notification",
				"workspace_id", workspaceID, "group_id", group.ID, "rule_id", eval.RuleID, "error", err)
		} else {
			result.NotificationsQueued++
		}
	}

	jobID, err := s.escalations.Schedule(ctx, workspaceID, group.ID, actions)
	if err != nil {
		s.logger.Warn("failed to schedule escalation",
			"workspace_id", workspaceID, "group_id", group.ID, "rule_id", eval.RuleID, "error", err)
		return
	}
	if jobID != "" {
		result.EscalationsScheduled++
	}
}

// dispatchFallback sends the single catch-all notification for an alert no
// rule matched. Unlike rule dispatch this failure is surfaced: an alert that
// matched nothing and could not reach the fallback channel would otherwise
// vanish.
func (s *Service) dispatchFallback(ctx context.Context, workspaceID string, group *domain.AlertGroup) error {
	if s.defaultChannelID == "" {
		return &domain.NotConfiguredError{
			WorkspaceID: workspaceID,
			Msg:         "no routing rule matched and no default channel is configured",
		}
	}

	_, err := s.notifier.Enqueue(ctx, &notify.Payload{
		Kind:         notify.KindFallback,
		WorkspaceID:  workspaceID,
		AlertGroupID: group.ID,
		ChannelID:    s.defaultChannelID,
		Title:        group.Title,
		Severity:     group.Severity,
		Project:      group.Project,
		Environment:  group.Environment,
		Count:        group.Count,
	})
	if err != nil {
		return &domain.InternalError{Msg: "failed to enqueue fallback notification", Err: fmt.Errorf("channel %s: %w", s.defaultChannelID, err)}
	}
	return nil
}
