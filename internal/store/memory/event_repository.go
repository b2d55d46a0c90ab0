package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalcraft-go/internal/domain"
)

// EventRepository is an in-memory implementation of store.EventRepository.
type EventRepository struct {
	mu sync.RWMutex

	// events stores all events in insertion order
	events []*domain.AlertEvent

	// seen indexes "workspaceID/source/sourceEventID" for duplicate detection
	seen map[string]struct{}
}

// NewEventRepository creates a new in-memory event repository.
func NewEventRepository() *EventRepository {
	return &EventRepository{
		seen: make(map[string]struct{}),
	}
}

func seenKey(workspaceID, source, sourceEventID string) string {
	return workspaceID + "/" + source + "/" + sourceEventID
}

// Insert stores a new event row.
func (r *EventRepository) Insert(ctx context.Context, event *domain.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *event
	if copied.ID == "" {
		copied.ID = uuid.NewString()
		event.ID = copied.ID
	}
	r.events = append(r.events, &copied)
	r.seen[seenKey(event.WorkspaceID, event.Source, event.SourceEventID)] = struct{}{}
	return nil
}

// Exists reports whether the source event has already been ingested.
func (r *EventRepository) Exists(ctx context.Context, workspaceID, source, sourceEventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.seen[seenKey(workspaceID, source, sourceEventID)]
	return ok, nil
}

// ListByGroup retrieves events folded into a group, newest first.
func (r *EventRepository) ListByGroup(ctx context.Context, workspaceID, groupID string, limit int) ([]*domain.AlertEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.AlertEvent
	for _, event := range r.events {
		if event.WorkspaceID != workspaceID || event.AlertGroupID != groupID {
			continue
		}
		copied := *event
		results = append(results, &copied)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].ReceivedAt.After(results[j].ReceivedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CountForGroupSince counts occurrences received for a group after the given
// time.
func (r *EventRepository) CountForGroupSince(ctx context.Context, workspaceID, groupID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, event := range r.events {
		if event.WorkspaceID != workspaceID || event.AlertGroupID != groupID {
			continue
		}
		if event.ReceivedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *EventRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = nil
	r.seen = make(map[string]struct{})
}
