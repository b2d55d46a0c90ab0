package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalcraft-go/internal/domain"
)

// RuleRepository is an in-memory implementation of store.RuleRepository.
type RuleRepository struct {
	mu sync.RWMutex

	// rules stores all rules by key "workspaceID/id"
	rules map[string]*domain.RoutingRule
}

// NewRuleRepository creates a new in-memory rule repository.
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{
		rules: make(map[string]*domain.RoutingRule),
	}
}

func ruleKey(workspaceID, id string) string {
	return workspaceID + "/" + id
}

// Create stores a new routing rule.
func (r *RuleRepository) Create(ctx context.Context, rule *domain.RoutingRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	copied := *rule
	r.rules[ruleKey(rule.WorkspaceID, rule.ID)] = &copied
	return nil
}

// Update modifies an existing routing rule.
func (r *RuleRepository) Update(ctx context.Context, rule *domain.RoutingRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ruleKey(rule.WorkspaceID, rule.ID)
	if _, exists := r.rules[key]; !exists {
		return domain.ErrRuleNotFound
	}

	rule.UpdatedAt = time.Now()
	copied := *rule
	r.rules[key] = &copied
	return nil
}

// Delete removes a routing rule by ID.
func (r *RuleRepository) Delete(ctx context.Context, workspaceID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ruleKey(workspaceID, id)
	if _, exists := r.rules[key]; !exists {
		return domain.ErrRuleNotFound
	}
	delete(r.rules, key)
	return nil
}

// GetByID retrieves a routing rule by its ID.
func (r *RuleRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.RoutingRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, exists := r.rules[ruleKey(workspaceID, id)]
	if !exists {
		return nil, domain.ErrRuleNotFound
	}
	copied := *rule
	return &copied, nil
}

// List retrieves all rules for a workspace in ascending priority order.
func (r *RuleRepository) List(ctx context.Context, workspaceID string) ([]*domain.RoutingRule, error) {
	return r.list(workspaceID, false), nil
}

// ListEnabled retrieves enabled rules for a workspace in ascending priority
// order.
func (r *RuleRepository) ListEnabled(ctx context.Context, workspaceID string) ([]*domain.RoutingRule, error) {
	return r.list(workspaceID, true), nil
}

func (r *RuleRepository) list(workspaceID string, enabledOnly bool) []*domain.RoutingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.RoutingRule
	for _, rule := range r.rules {
		if rule.WorkspaceID != workspaceID {
			continue
		}
		if enabledOnly && !rule.Enabled {
			continue
		}
		copied := *rule
		results = append(results, &copied)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Priority != results[j].Priority {
			return results[i].Priority < results[j].Priority
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *RuleRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = make(map[string]*domain.RoutingRule)
}
