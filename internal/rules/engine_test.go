package rules

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/store/memory"
)

func newTestEngine(t *testing.T) (*Engine, *memory.RuleRepository) {
	t.Helper()
	repo := memory.NewRuleRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(repo, 60*time.Second, logger), repo
}

func evalAlert() *domain.AlertForEvaluation {
	return &domain.AlertForEvaluation{
		ID:          "group-1",
		WorkspaceID: "ws-1",
		Environment: "production",
		Severity:    "CRITICAL",
		Project:     "checkout",
		Title:       "Payment gateway timeout",
		Source:      "sentry",
		Status:      "OPEN",
		Count:       3,
		Tags:        map[string]string{"team": "payments"},
	}
}

func mustCreate(t *testing.T, repo *memory.RuleRepository, rule *domain.RoutingRule) {
	t.Helper()
	rule.WorkspaceID = "ws-1"
	rule.Enabled = true
	if rule.Actions.ChannelID == "" {
		rule.Actions.ChannelID = "C-default"
	}
	if err := repo.Create(context.Background(), rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
}

func TestRulePrecedenceOrdering(t *testing.T) {
	engine, repo := newTestEngine(t)

	mustCreate(t, repo, &domain.RoutingRule{
		Name:     "second",
		Priority: 2,
		Conditions: domain.ConditionGroup{
			All: []domain.Condition{{Field: "severity", Operator: domain.OperatorEquals, Value: "critical"}},
		},
	})
	mustCreate(t, repo, &domain.RoutingRule{
		Name:     "first",
		Priority: 1,
		Conditions: domain.ConditionGroup{
			All: []domain.Condition{{Field: "environment", Operator: domain.OperatorEquals, Value: "production"}},
		},
	})

	results, err := engine.EvaluateRules(context.Background(), "ws-1", evalAlert())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].RuleName != "first" || results[1].RuleName != "second" {
		t.Errorf("results out of priority order: %s, %s", results[0].RuleName, results[1].RuleName)
	}
	if !results[0].Matched || !results[1].Matched {
		t.Error("expected both rules to match")
	}
	if results[0].Actions == nil {
		t.Error("matched rule must carry its actions")
	}
}

func TestOperators(t *testing.T) {
	engine, _ := newTestEngine(t)
	alert := evalAlert()

	tests := []struct {
		name      string
		condition domain.Condition
		want      bool
	}{
		{
			"equals case-insensitive",
			domain.Condition{Field: "severity", Operator: domain.OperatorEquals, Value: "Critical"},
			true,
		},
		{
			"equals case-sensitive fails on case",
			domain.Condition{Field: "title", Operator: domain.OperatorEquals, Value: "payment gateway timeout", CaseSensitive: true},
			false,
		},
		{
			"not_equals",
			domain.Condition{Field: "environment", Operator: domain.OperatorNotEquals, Value: "staging"},
			true,
		},
		{
			"in membership",
			domain.Condition{Field: "project", Operator: domain.OperatorIn, Value: []any{"Checkout", "billing"}},
			true,
		},
		{
			"in with non-array value",
			domain.Condition{Field: "project", Operator: domain.OperatorIn, Value: "checkout"},
			false,
		},
		{
			"not_in",
			domain.Condition{Field: "project", Operator: domain.OperatorNotIn, Value: []any{"billing"}},
			true,
		},
		{
			"contains substring",
			domain.Condition{Field: "title", Operator: domain.OperatorContains, Value: "gateway"},
			true,
		},
		{
			"not_contains",
			domain.Condition{Field: "title", Operator: domain.OperatorNotContains, Value: "database"},
			true,
		},
		{
			"regex",
			domain.Condition{Field: "title", Operator: domain.OperatorRegex, Value: "time.ut$"},
			true,
		},
		{
			"severity greater_than",
			domain.Condition{Field: "severity", Operator: domain.OperatorGreaterThan, Value: "HIGH"},
			true,
		},
		{
			"severity less_than_or_equals",
			domain.Condition{Field: "severity", Operator: domain.OperatorLessThanOrEquals, Value: "HIGH"},
			false,
		},
		{
			"count greater_than numeric",
			domain.Condition{Field: "count", Operator: domain.OperatorGreaterThan, Value: float64(2)},
			true,
		},
		{
			"tag lookup",
			domain.Condition{Field: "tags.team", Operator: domain.OperatorEquals, Value: "payments"},
			true,
		},
		{
			"missing tag never matches",
			domain.Condition{Field: "tags.region", Operator: domain.OperatorEquals, Value: "us"},
			false,
		},
		{
			"unknown field never matches",
			domain.Condition{Field: "hostname", Operator: domain.OperatorEquals, Value: "web-1"},
			false,
		},
		{
			"unknown operator never matches",
			domain.Condition{Field: "severity", Operator: "sounds_like", Value: "critical"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, details := engine.TestRule(domain.ConditionGroup{All: []domain.Condition{tt.condition}}, alert)
			if matched != tt.want {
				t.Errorf("matched = %v, want %v", matched, tt.want)
			}
			if len(details) != 1 {
				t.Fatalf("expected 1 detail, got %d", len(details))
			}
			if details[0].Result != tt.want {
				t.Errorf("detail result = %v, want %v", details[0].Result, tt.want)
			}
		})
	}
}

func TestRegexSafety(t *testing.T) {
	engine, _ := newTestEngine(t)

	matched, details := engine.TestRule(domain.ConditionGroup{
		All: []domain.Condition{
			{Field: "title", Operator: domain.OperatorRegex, Value: "[unbalanced"},
		},
	}, evalAlert())

	if matched {
		t.Error("invalid pattern must evaluate to false")
	}
	if len(details) != 1 || details[0].Result {
		t.Error("detail must record the failed condition")
	}
}

func TestAllAnySemantics(t *testing.T) {
	engine, _ := newTestEngine(t)
	alert := evalAlert()

	t.Run("all AND any must both hold", func(t *testing.T) {
		matched, _ := engine.TestRule(domain.ConditionGroup{
			All: []domain.Condition{
				{Field: "environment", Operator: domain.OperatorEquals, Value: "production"},
			},
			Any: []domain.Condition{
				{Field: "project", Operator: domain.OperatorEquals, Value: "billing"},
				{Field: "project", Operator: domain.OperatorEquals, Value: "checkout"},
			},
		}, alert)
		if !matched {
			t.Error("expected match: all passes and one any passes")
		}
	})

	t.Run("any with no winners fails", func(t *testing.T) {
		matched, _ := engine.TestRule(domain.ConditionGroup{
			Any: []domain.Condition{
				{Field: "project", Operator: domain.OperatorEquals, Value: "billing"},
			},
		}, alert)
		if matched {
			t.Error("expected no match when no any condition holds")
		}
	})

	t.Run("empty group is vacuously true", func(t *testing.T) {
		matched, _ := engine.TestRule(domain.ConditionGroup{}, alert)
		if !matched {
			t.Error("empty group must match")
		}
	})
}

func TestNestedGroups(t *testing.T) {
	engine, _ := newTestEngine(t)
	alert := evalAlert()

	// (env=production) AND ((project=billing) OR (severity>=HIGH))
	group := domain.ConditionGroup{
		All: []domain.Condition{
			{Field: "environment", Operator: domain.OperatorEquals, Value: "production"},
		},
		AnyOf: []domain.ConditionGroup{
			{All: []domain.Condition{{Field: "project", Operator: domain.OperatorEquals, Value: "billing"}}},
			{All: []domain.Condition{{Field: "severity", Operator: domain.OperatorGreaterThanOrEquals, Value: "HIGH"}}},
		},
	}

	matched, _ := engine.TestRule(group, alert)
	if !matched {
		t.Error("expected nested any-of branch to match")
	}

	group.AllOf = []domain.ConditionGroup{
		{All: []domain.Condition{{Field: "source", Operator: domain.OperatorEquals, Value: "datadog"}}},
	}
	matched, _ = engine.TestRule(group, alert)
	if matched {
		t.Error("failing nested all-of child must fail the group")
	}
}

func TestCacheInvalidation(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	results, err := engine.EvaluateRules(ctx, "ws-1", evalAlert())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no rules yet, got %d", len(results))
	}

	mustCreate(t, repo, &domain.RoutingRule{
		Name:     "late arrival",
		Priority: 1,
		Conditions: domain.ConditionGroup{
			All: []domain.Condition{{Field: "severity", Operator: domain.OperatorEquals, Value: "critical"}},
		},
	})

	// Still cached: the empty set is served until invalidation.
	results, _ = engine.EvaluateRules(ctx, "ws-1", evalAlert())
	if len(results) != 0 {
		t.Error("expected cached empty rule set before invalidation")
	}

	engine.InvalidateCache("ws-1")
	results, _ = engine.EvaluateRules(ctx, "ws-1", evalAlert())
	if len(results) != 1 {
		t.Errorf("expected fresh rule set after invalidation, got %d rules", len(results))
	}
}

func TestDisabledRulesExcluded(t *testing.T) {
	engine, repo := newTestEngine(t)

	rule := &domain.RoutingRule{
		Name:     "disabled",
		Priority: 1,
		Conditions: domain.ConditionGroup{
			All: []domain.Condition{{Field: "severity", Operator: domain.OperatorEquals, Value: "critical"}},
		},
		WorkspaceID: "ws-1",
		Actions:     domain.RuleActions{ChannelID: "C1"},
	}
	if err := repo.Create(context.Background(), rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	results, err := engine.EvaluateRules(context.Background(), "ws-1", evalAlert())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(results) != 0 {
		t.Error("disabled rules must not be evaluated")
	}
}
