package grouping

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"signalcraft-go/internal/broadcast"
	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/store/memory"
)

type fakeCanceler struct {
	mu       sync.Mutex
	canceled []string
}

func (f *fakeCanceler) Cancel(ctx context.Context, workspaceID, groupID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, workspaceID+"/"+groupID)
	return true, nil
}

func newTestService(reopen bool) (*Service, *memory.GroupRepository, *memory.EventRepository, *fakeCanceler, *broadcast.Recorder) {
	groups := memory.NewGroupRepository()
	events := memory.NewEventRepository()
	canceler := &fakeCanceler{}
	recorder := broadcast.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(groups, events, canceler, recorder, reopen, logger)
	return svc, groups, events, canceler, recorder
}

func testAlert(fingerprint string) *domain.CanonicalAlert {
	return &domain.CanonicalAlert{
		Source:        "sentry",
		SourceEventID: "evt-" + fingerprint,
		Project:       "checkout",
		Environment:   "production",
		Severity:      domain.SeverityHigh,
		Fingerprint:   fingerprint,
		Title:         "DB timeout",
		OccurredAt:    time.Now().UTC(),
	}
}

func TestUpsertGroupCreatesThenFolds(t *testing.T) {
	svc, _, _, _, _ := newTestService(false)
	ctx := context.Background()

	group, created, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup failed: %v", err)
	}
	if !created {
		t.Error("expected first occurrence to create a group")
	}
	if group.Count != 1 {
		t.Errorf("expected count 1, got %d", group.Count)
	}

	again, created, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("second UpsertGroup failed: %v", err)
	}
	if created {
		t.Error("expected second occurrence to fold into existing group")
	}
	if again.ID != group.ID {
		t.Errorf("expected same group ID, got %s and %s", group.ID, again.ID)
	}
	if again.Count != 2 {
		t.Errorf("expected count 2, got %d", again.Count)
	}
}

func TestAcknowledgeCancelsEscalation(t *testing.T) {
	svc, _, _, canceler, recorder := newTestService(false)
	ctx := context.Background()

	group, _, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup failed: %v", err)
	}

	acked, err := svc.Acknowledge(ctx, "ws-1", group.ID, "user-9")
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if acked.Status != domain.GroupStatusAck {
		t.Errorf("expected ACK, got %s", acked.Status)
	}
	if acked.AssigneeUserID != "user-9" {
		t.Errorf("expected assignee user-9, got %q", acked.AssigneeUserID)
	}

	if len(canceler.canceled) != 1 {
		t.Fatalf("expected 1 escalation cancel, got %d", len(canceler.canceled))
	}

	events := recorder.Events()
	if len(events) != 1 || events[0].Event != broadcast.EventAlertUpdated {
		t.Errorf("expected one alert.updated broadcast, got %+v", events)
	}

	// A second acknowledge is a no-op and must not cancel again.
	if _, err := svc.Acknowledge(ctx, "ws-1", group.ID, "user-10"); err != nil {
		t.Fatalf("repeat Acknowledge failed: %v", err)
	}
	if len(canceler.canceled) != 1 {
		t.Errorf("no-op acknowledge should not cancel escalation again")
	}
}

func TestResolveIsTerminal(t *testing.T) {
	svc, _, _, canceler, recorder := newTestService(false)
	ctx := context.Background()

	group, _, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup failed: %v", err)
	}

	resolved, err := svc.Resolve(ctx, "ws-1", group.ID, "fixed in deploy 42", "user-9")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != domain.GroupStatusResolved {
		t.Errorf("expected RESOLVED, got %s", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Error("expected resolved_at to be set")
	}
	if resolved.ResolutionNotes != "fixed in deploy 42" {
		t.Errorf("unexpected notes %q", resolved.ResolutionNotes)
	}
	if len(canceler.canceled) != 1 {
		t.Errorf("expected escalation cancel on resolve")
	}

	events := recorder.Events()
	if len(events) != 1 || events[0].Event != broadcast.EventAlertResolved {
		t.Errorf("expected one alert.resolved broadcast, got %+v", events)
	}

	// Snoozing a resolved group must fail.
	if _, err := svc.Snooze(ctx, "ws-1", group.ID, time.Hour); !domain.IsValidation(err) {
		t.Errorf("expected validation error snoozing resolved group, got %v", err)
	}
}

func TestResolveRecovery(t *testing.T) {
	svc, _, _, _, _ := newTestService(false)
	ctx := context.Background()

	group, _, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup failed: %v", err)
	}

	recovery := testAlert("fp-1")
	recovery.Resolved = true

	resolved, err := svc.ResolveRecovery(ctx, "ws-1", recovery)
	if err != nil {
		t.Fatalf("ResolveRecovery failed: %v", err)
	}
	if resolved == nil || resolved.ID != group.ID {
		t.Fatalf("expected recovery to resolve group %s, got %+v", group.ID, resolved)
	}
	if resolved.Status != domain.GroupStatusResolved {
		t.Errorf("expected RESOLVED, got %s", resolved.Status)
	}

	// Recovery with no live group is silently accepted.
	orphan := testAlert("fp-unknown")
	orphan.Resolved = true
	got, err := svc.ResolveRecovery(ctx, "ws-1", orphan)
	if err != nil {
		t.Fatalf("ResolveRecovery for unknown fingerprint failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil group for unknown fingerprint, got %+v", got)
	}
}

func TestSnoozeThenRecurrenceWakes(t *testing.T) {
	svc, _, _, _, _ := newTestService(false)
	ctx := context.Background()

	group, _, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup failed: %v", err)
	}

	snoozed, err := svc.Snooze(ctx, "ws-1", group.ID, 30*time.Minute)
	if err != nil {
		t.Fatalf("Snooze failed: %v", err)
	}
	if snoozed.Status != domain.GroupStatusSnoozed || snoozed.SnoozeUntil == nil {
		t.Fatalf("expected SNOOZED with until, got %+v", snoozed)
	}

	woken, _, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup after snooze failed: %v", err)
	}
	if woken.Status != domain.GroupStatusOpen {
		t.Errorf("expected recurrence to wake snoozed group, got %s", woken.Status)
	}
	if woken.SnoozeUntil != nil {
		t.Error("expected snooze_until to be cleared")
	}
}

func TestReopenOnRecurrencePolicy(t *testing.T) {
	svc, _, _, _, _ := newTestService(true)
	ctx := context.Background()

	group, _, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup failed: %v", err)
	}
	if _, err := svc.Resolve(ctx, "ws-1", group.ID, "", ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	reopened, created, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup after resolve failed: %v", err)
	}
	if created {
		t.Error("expected recurrence to reopen resolved group, not create a new one")
	}
	if reopened.ID != group.ID {
		t.Errorf("expected same group ID %s, got %s", group.ID, reopened.ID)
	}
	if reopened.Status != domain.GroupStatusOpen {
		t.Errorf("expected OPEN after reopen, got %s", reopened.Status)
	}
}

func TestRecomputeVelocity(t *testing.T) {
	svc, groups, events, _, _ := newTestService(false)
	ctx := context.Background()

	group, _, err := svc.UpsertGroup(ctx, "ws-1", testAlert("fp-1"))
	if err != nil {
		t.Fatalf("UpsertGroup failed: %v", err)
	}

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		err := events.Insert(ctx, &domain.AlertEvent{
			WorkspaceID:   "ws-1",
			AlertGroupID:  group.ID,
			Source:        "sentry",
			SourceEventID: "evt-" + string(rune('a'+i)),
			ReceivedAt:    now.Add(-time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert event failed: %v", err)
		}
	}
	// One stale event outside the trailing hour.
	err = events.Insert(ctx, &domain.AlertEvent{
		WorkspaceID:   "ws-1",
		AlertGroupID:  group.ID,
		Source:        "sentry",
		SourceEventID: "evt-old",
		ReceivedAt:    now.Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Insert stale event failed: %v", err)
	}

	svc.RecomputeVelocity(ctx, "ws-1", group.ID)

	got, err := groups.GetByID(ctx, "ws-1", group.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.VelocityPerHour == nil || *got.VelocityPerHour != 3 {
		t.Errorf("expected velocity 3, got %v", got.VelocityPerHour)
	}
}
