package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"signalcraft-go/internal/broadcast"
	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/escalation"
	"signalcraft-go/internal/grouping"
	"signalcraft-go/internal/notify"
	queuemem "signalcraft-go/internal/queue/memory"
	"signalcraft-go/internal/rules"
	"signalcraft-go/internal/store/memory"
)

type testEnv struct {
	svc      *Service
	groups   *memory.GroupRepository
	events   *memory.EventRepository
	rules    *memory.RuleRepository
	engine   *rules.Engine
	queue    *queuemem.Queue
	recorder *broadcast.Recorder
}

func newTestEnv(t *testing.T, defaultChannelID string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	groups := memory.NewGroupRepository()
	events := memory.NewEventRepository()
	ruleRepo := memory.NewRuleRepository()
	index := memory.NewEscalationIndex()
	q := queuemem.NewQueue()
	recorder := broadcast.NewRecorder()

	engine := rules.NewEngine(ruleRepo, 0, logger)
	notifier := notify.NewNotifier(q)
	scheduler := escalation.NewScheduler(q, index, groups, logger)
	groupSvc := grouping.NewService(groups, events, scheduler, recorder, false, logger)

	svc := NewService(groupSvc, events, engine, notifier, scheduler, recorder, defaultChannelID, logger)
	return &testEnv{
		svc:      svc,
		groups:   groups,
		events:   events,
		rules:    ruleRepo,
		engine:   engine,
		queue:    q,
		recorder: recorder,
	}
}

func sentryPayload(eventID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": {
			"event_id": %q,
			"title": "DB timeout",
			"level": "error",
			"environment": "production",
			"fingerprint": ["db", "timeout"]
		},
		"project": "checkout"
	}`, eventID))
}

func TestProcessFallbackPath(t *testing.T) {
	env := newTestEnv(t, "C-default")
	ctx := context.Background()

	result, err := env.svc.Process(ctx, "ws-1", "sentry", sentryPayload("evt-1"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Duplicate {
		t.Error("first event must not be a duplicate")
	}
	if result.GroupID == "" || result.EventID == "" {
		t.Fatalf("expected group and event IDs, got %+v", result)
	}
	if result.RulesMatched != 0 || result.NotificationsQueued != 1 {
		t.Errorf("expected exactly one fallback notification, got %+v", result)
	}
	if env.queue.Len(notify.QueueName) != 1 {
		t.Errorf("expected 1 queued notification, got %d", env.queue.Len(notify.QueueName))
	}

	group, err := env.groups.GetByID(ctx, "ws-1", result.GroupID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if group.Severity != domain.SeverityHigh {
		t.Errorf("expected sentry error to map to HIGH, got %s", group.Severity)
	}
	if group.Fingerprint != "db|timeout" {
		t.Errorf("unexpected fingerprint %q", group.Fingerprint)
	}

	events := env.recorder.Events()
	if len(events) != 1 || events[0].Event != broadcast.EventAlertCreated {
		t.Errorf("expected alert.created broadcast, got %+v", events)
	}
}

func TestProcessDeduplicatesByFingerprint(t *testing.T) {
	env := newTestEnv(t, "C-default")
	ctx := context.Background()

	first, err := env.svc.Process(ctx, "ws-1", "sentry", sentryPayload("evt-1"))
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	second, err := env.svc.Process(ctx, "ws-1", "sentry", sentryPayload("evt-2"))
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}

	if second.GroupID != first.GroupID {
		t.Errorf("expected same group, got %s and %s", first.GroupID, second.GroupID)
	}
	group, err := env.groups.GetByID(ctx, "ws-1", second.GroupID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if group.Count != 2 {
		t.Errorf("expected count 2, got %d", group.Count)
	}
}

func TestProcessDuplicateEventShortCircuits(t *testing.T) {
	env := newTestEnv(t, "C-default")
	ctx := context.Background()

	if _, err := env.svc.Process(ctx, "ws-1", "sentry", sentryPayload("evt-1")); err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	queued := env.queue.Len(notify.QueueName)

	result, err := env.svc.Process(ctx, "ws-1", "sentry", sentryPayload("evt-1"))
	if err != nil {
		t.Fatalf("duplicate Process failed: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected duplicate flag")
	}
	if result.GroupID != "" || result.NotificationsQueued != 0 {
		t.Errorf("duplicate must have no side effects, got %+v", result)
	}
	if env.queue.Len(notify.QueueName) != queued {
		t.Error("duplicate must not queue notifications")
	}

	group, err := env.groups.GetActiveByFingerprint(ctx, "ws-1", "db|timeout")
	if err != nil {
		t.Fatalf("GetActiveByFingerprint failed: %v", err)
	}
	if group.Count != 1 {
		t.Errorf("duplicate must not bump count, got %d", group.Count)
	}
}

func TestProcessMatchedRuleRoutesAndEscalates(t *testing.T) {
	env := newTestEnv(t, "C-default")
	ctx := context.Background()

	err := env.rules.Create(ctx, &domain.RoutingRule{
		WorkspaceID: "ws-1",
		Name:        "prod high severity",
		Priority:    1,
		Enabled:     true,
		Conditions: domain.ConditionGroup{
			All: []domain.Condition{
				{Field: "environment", Operator: domain.OperatorEquals, Value: "production"},
				{Field: "severity", Operator: domain.OperatorGreaterThanOrEquals, Value: "high"},
			},
		},
		Actions: domain.RuleActions{
			ChannelID:            "C-oncall",
			MentionHere:          true,
			EscalateAfterMinutes: 15,
		},
	})
	if err != nil {
		t.Fatalf("Create rule failed: %v", err)
	}

	result, err := env.svc.Process(ctx, "ws-1", "sentry", sentryPayload("evt-1"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.RulesEvaluated != 1 || result.RulesMatched != 1 {
		t.Errorf("expected 1/1 rule evaluation, got %+v", result)
	}
	if result.NotificationsQueued != 1 {
		t.Errorf("expected 1 rule notification, got %d", result.NotificationsQueued)
	}
	if result.EscalationsScheduled != 1 {
		t.Errorf("expected 1 escalation scheduled, got %d", result.EscalationsScheduled)
	}
	if env.queue.Len(escalation.QueueName) != 1 {
		t.Errorf("expected escalation job pending, got %d", env.queue.Len(escalation.QueueName))
	}
}

func TestProcessRecoveryResolvesGroup(t *testing.T) {
	env := newTestEnv(t, "C-default")
	ctx := context.Background()

	first, err := env.svc.Process(ctx, "ws-1", "aws-cloudwatch", []byte(`{
		"AlarmName": "cpu-high",
		"NewStateValue": "ALARM",
		"MessageId": "msg-1"
	}`))
	if err != nil {
		t.Fatalf("alarm Process failed: %v", err)
	}

	result, err := env.svc.Process(ctx, "ws-1", "aws-cloudwatch", []byte(`{
		"AlarmName": "cpu-high",
		"NewStateValue": "OK",
		"MessageId": "msg-2"
	}`))
	if err != nil {
		t.Fatalf("recovery Process failed: %v", err)
	}
	if !result.Resolved {
		t.Fatal("expected resolved flag for recovery payload")
	}
	if result.GroupID != first.GroupID {
		t.Errorf("expected recovery to target group %s, got %s", first.GroupID, result.GroupID)
	}

	group, err := env.groups.GetByID(ctx, "ws-1", first.GroupID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if group.Status != domain.GroupStatusResolved {
		t.Errorf("expected RESOLVED, got %s", group.Status)
	}
}

func TestProcessRejectsInvalidPayload(t *testing.T) {
	env := newTestEnv(t, "C-default")

	_, err := env.svc.Process(context.Background(), "ws-1", "sentry", []byte(`"not an object"`))
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = env.svc.Process(context.Background(), "ws-1", "sentry", []byte(`{"event": {"title": "no id"}}`))
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for missing event id, got %v", err)
	}
}

func TestProcessNoFallbackChannelConfigured(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.svc.Process(context.Background(), "ws-1", "sentry", sentryPayload("evt-1"))
	if err == nil {
		t.Fatal("expected error when no rule matches and no default channel exists")
	}
	var notConfigured *domain.NotConfiguredError
	if !errors.As(err, &notConfigured) {
		t.Fatalf("expected NotConfiguredError, got %T: %v", err, err)
	}
}

func TestProcessSnoozeWakeOnRecurrence(t *testing.T) {
	env := newTestEnv(t, "C-default")
	ctx := context.Background()

	first, err := env.svc.Process(ctx, "ws-1", "sentry", sentryPayload("evt-1"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	group, err := env.groups.GetByID(ctx, "ws-1", first.GroupID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !group.Snooze(time.Now().UTC(), time.Hour) {
		t.Fatal("Snooze failed")
	}
	if err := env.groups.Update(ctx, group); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, err := env.svc.Process(ctx, "ws-1", "sentry", sentryPayload("evt-2")); err != nil {
		t.Fatalf("recurrence Process failed: %v", err)
	}

	woken, err := env.groups.GetByID(ctx, "ws-1", first.GroupID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if woken.Status != domain.GroupStatusOpen {
		t.Errorf("expected recurrence to wake snoozed group, got %s", woken.Status)
	}
}
