// Package memory provides in-memory implementations of the store interfaces.
// This is useful for testing and development without external dependencies.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"signalcraft-go/internal/domain"
)

// GroupRepository is an in-memory implementation of store.GroupRepository.
// Groups are indexed by ID and by (workspace, fingerprint) for the live
// group, mirroring the partial unique index the PostgreSQL backend relies on.
type GroupRepository struct {
	mu sync.RWMutex

	// groups stores all groups by key "workspaceID/id"
	groups map[string]*domain.AlertGroup

	// active maps "workspaceID/fingerprint" to the ID of the one
	// non-RESOLVED group for that fingerprint
	active map[string]string
}

// NewGroupRepository creates a new in-memory group repository.
func NewGroupRepository() *GroupRepository {
	return &GroupRepository{
		groups: make(map[string]*domain.AlertGroup),
		active: make(map[string]string),
	}
}

func groupKey(workspaceID, id string) string {
	return workspaceID + "/" + id
}

func activeKey(workspaceID, fingerprint string) string {
	return workspaceID + "/" + fingerprint
}

// cloneGroup copies a group including its pointer fields so callers cannot
// mutate stored state.
func cloneGroup(g *domain.AlertGroup) *domain.AlertGroup {
	c := *g
	if g.SnoozeUntil != nil {
		t := *g.SnoozeUntil
		c.SnoozeUntil = &t
	}
	if g.ResolvedAt != nil {
		t := *g.ResolvedAt
		c.ResolvedAt = &t
	}
	if g.AvgResolutionMins != nil {
		v := *g.AvgResolutionMins
		c.AvgResolutionMins = &v
	}
	if g.VelocityPerHour != nil {
		v := *g.VelocityPerHour
		c.VelocityPerHour = &v
	}
	if g.UserCount != nil {
		v := *g.UserCount
		c.UserCount = &v
	}
	return &c
}

// UpsertOccurrence atomically folds an occurrence into the live group for the
// fingerprint, creating a new OPEN group when none exists.
func (r *GroupRepository) UpsertOccurrence(ctx context.Context, workspaceID string, alert *domain.CanonicalAlert, reopenResolved bool) (*domain.AlertGroup, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.active[activeKey(workspaceID, alert.Fingerprint)]; ok {
		group := r.groups[groupKey(workspaceID, id)]
		group.ApplyOccurrence(alert)
		return cloneGroup(group), false, nil
	}

	if reopenResolved {
		// Reopen the most recently resolved group for this fingerprint
		// rather than opening a fresh one.
		if group := r.latestResolved(workspaceID, alert.Fingerprint); group != nil {
			group.Reopen()
			group.ApplyOccurrence(alert)
			r.active[activeKey(workspaceID, alert.Fingerprint)] = group.ID
			return cloneGroup(group), false, nil
		}
	}

	group := domain.NewAlertGroup(workspaceID, alert)
	group.ID = uuid.NewString()
	r.groups[groupKey(workspaceID, group.ID)] = group
	r.active[activeKey(workspaceID, alert.Fingerprint)] = group.ID
	return cloneGroup(group), true, nil
}

func (r *GroupRepository) latestResolved(workspaceID, fingerprint string) *domain.AlertGroup {
	var latest *domain.AlertGroup
	for _, g := range r.groups {
		if g.WorkspaceID != workspaceID || g.Fingerprint != fingerprint {
			continue
		}
		if g.Status != domain.GroupStatusResolved {
			continue
		}
		if latest == nil || g.LastSeenAt.After(latest.LastSeenAt) {
			latest = g
		}
	}
	return latest
}

// GetByID retrieves a group by its ID.
func (r *GroupRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.AlertGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, exists := r.groups[groupKey(workspaceID, id)]
	if !exists {
		return nil, domain.ErrGroupNotFound
	}
	return cloneGroup(group), nil
}

// GetActiveByFingerprint retrieves the non-RESOLVED group for a fingerprint.
func (r *GroupRepository) GetActiveByFingerprint(ctx context.Context, workspaceID, fingerprint string) (*domain.AlertGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[activeKey(workspaceID, fingerprint)]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	return cloneGroup(r.groups[groupKey(workspaceID, id)]), nil
}

// Update persists lifecycle mutations, maintaining the active-fingerprint
// index when a group enters or leaves the RESOLVED state.
func (r *GroupRepository) Update(ctx context.Context, group *domain.AlertGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := groupKey(group.WorkspaceID, group.ID)
	if _, exists := r.groups[key]; !exists {
		return domain.ErrGroupNotFound
	}

	stored := cloneGroup(group)
	r.groups[key] = stored

	ak := activeKey(group.WorkspaceID, group.Fingerprint)
	if group.Status == domain.GroupStatusResolved {
		if r.active[ak] == group.ID {
			delete(r.active, ak)
		}
	} else {
		r.active[ak] = group.ID
	}
	return nil
}

// UpdateVelocity persists the occurrence-rate estimate for a group.
func (r *GroupRepository) UpdateVelocity(ctx context.Context, workspaceID, id string, perHour float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, exists := r.groups[groupKey(workspaceID, id)]
	if !exists {
		return domain.ErrGroupNotFound
	}
	group.VelocityPerHour = &perHour
	return nil
}

// List retrieves groups matching the filter criteria, newest first.
func (r *GroupRepository) List(ctx context.Context, filter domain.GroupFilter) ([]*domain.AlertGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.AlertGroup
	for _, group := range r.groups {
		if filter.WorkspaceID != "" && group.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.Status != "" && group.Status != filter.Status {
			continue
		}
		if filter.Project != "" && group.Project != filter.Project {
			continue
		}
		if filter.Environment != "" && group.Environment != filter.Environment {
			continue
		}
		results = append(results, cloneGroup(group))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].LastSeenAt.After(results[j].LastSeenAt)
	})

	start := filter.Offset
	if start > len(results) {
		start = len(results)
	}
	end := len(results)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return results[start:end], nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *GroupRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.groups = make(map[string]*domain.AlertGroup)
	r.active = make(map[string]string)
}
