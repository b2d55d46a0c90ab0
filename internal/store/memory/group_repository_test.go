package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signalcraft-go/internal/domain"
)

func occurrence(fingerprint string, severity domain.Severity) *domain.CanonicalAlert {
	return &domain.CanonicalAlert{
		Source:        "sentry",
		SourceEventID: "evt",
		Project:       "checkout",
		Environment:   "production",
		Severity:      severity,
		Fingerprint:   fingerprint,
		Title:         "boom",
		OccurredAt:    time.Now(),
	}
}

func TestUpsertOccurrenceDedup(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()

	first, created, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), false)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if !created {
		t.Fatal("expected first occurrence to create a group")
	}

	second, created, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), false)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if created {
		t.Error("expected second occurrence to fold into the existing group")
	}
	if second.ID != first.ID {
		t.Errorf("expected same group, got %s and %s", first.ID, second.ID)
	}
	if second.Count != 2 {
		t.Errorf("expected count 2, got %d", second.Count)
	}
}

func TestUpsertOccurrenceConcurrent(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), false); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent upsert failed: %v", err)
	}

	group, err := repo.GetActiveByFingerprint(ctx, "ws-1", "fp-1")
	if err != nil {
		t.Fatalf("GetActiveByFingerprint failed: %v", err)
	}
	if group.Count != 2 {
		t.Errorf("expected both occurrences folded into one group, got count %d", group.Count)
	}

	groups, err := repo.List(ctx, domain.GroupFilter{WorkspaceID: "ws-1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("expected exactly one group, got %d", len(groups))
	}
}

func TestUpsertOccurrenceScopedByWorkspace(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()

	a, _, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), false)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	b, created, err := repo.UpsertOccurrence(ctx, "ws-2", occurrence("fp-1", domain.SeverityHigh), false)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if !created || a.ID == b.ID {
		t.Error("same fingerprint in different workspaces must not share a group")
	}
}

func TestUpsertAfterResolveCreatesNewGroup(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()

	first, _, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), false)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	first.Resolve(time.Now(), "", "")
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	second, created, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), false)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if !created {
		t.Error("expected a fresh group after the previous one resolved")
	}
	if second.ID == first.ID {
		t.Error("resolved group must not be reused when reopen is disabled")
	}
}

func TestUpsertAfterResolveReopens(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()

	first, _, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), true)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	first.Resolve(time.Now(), "", "")
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	second, created, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), true)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if created {
		t.Error("expected the resolved group to be reopened, not replaced")
	}
	if second.ID != first.ID {
		t.Error("reopened group must keep its identity")
	}
	if second.Status != domain.GroupStatusOpen {
		t.Errorf("expected reopened group to be OPEN, got %s", second.Status)
	}
}

func TestGetActiveByFingerprint(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()

	created, _, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence("fp-1", domain.SeverityHigh), false)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := repo.GetActiveByFingerprint(ctx, "ws-1", "fp-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID != created.ID {
		t.Error("lookup returned the wrong group")
	}

	if _, err := repo.GetActiveByFingerprint(ctx, "ws-1", "fp-missing"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	repo := NewGroupRepository()
	ctx := context.Background()

	for _, fp := range []string{"a", "b", "c"} {
		if _, _, err := repo.UpsertOccurrence(ctx, "ws-1", occurrence(fp, domain.SeverityHigh), false); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	groups, err := repo.List(ctx, domain.GroupFilter{WorkspaceID: "ws-1", Status: domain.GroupStatusOpen})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(groups) != 3 {
		t.Errorf("expected 3 groups, got %d", len(groups))
	}

	page, err := repo.List(ctx, domain.GroupFilter{WorkspaceID: "ws-1", Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("expected page of 2, got %d", len(page))
	}
}
