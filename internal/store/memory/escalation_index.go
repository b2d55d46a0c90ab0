package memory

import (
	"context"
	"strings"
	"sync"
)

// EscalationIndex is an in-memory implementation of store.EscalationIndex.
type EscalationIndex struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewEscalationIndex creates a new in-memory escalation index.
func NewEscalationIndex() *EscalationIndex {
	return &EscalationIndex{
		entries: make(map[string]string),
	}
}

func escalationKey(workspaceID, groupID string) string {
	return workspaceID + "/" + groupID
}

// Set records the pending escalation job for a group.
func (i *EscalationIndex) Set(ctx context.Context, workspaceID, groupID, jobID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries[escalationKey(workspaceID, groupID)] = jobID
	return nil
}

// Get returns the pending job ID for a group, or empty string.
func (i *EscalationIndex) Get(ctx context.Context, workspaceID, groupID string) (string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.entries[escalationKey(workspaceID, groupID)], nil
}

// Delete removes the entry for a group.
func (i *EscalationIndex) Delete(ctx context.Context, workspaceID, groupID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.entries, escalationKey(workspaceID, groupID))
	return nil
}

// ListGroups returns the group IDs with a pending entry in the workspace.
func (i *EscalationIndex) ListGroups(ctx context.Context, workspaceID string) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	prefix := workspaceID + "/"
	var groupIDs []string
	for key := range i.entries {
		if groupID, ok := strings.CutPrefix(key, prefix); ok {
			groupIDs = append(groupIDs, groupID)
		}
	}
	return groupIDs, nil
}

// Clear removes all entries. Useful for test cleanup.
func (i *EscalationIndex) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = make(map[string]string)
}
