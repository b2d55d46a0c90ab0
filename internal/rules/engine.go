// Package rules evaluates canonical alerts against workspace-defined routing
// rules. Evaluation never fails mid-run: a malformed rule, unknown field, or
// invalid pattern degrades to "does not match" so one bad rule cannot block
// the rest of the set.
package rules

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/metrics"
	"signalcraft-go/internal/store"
)

// Engine evaluates routing rules for alerts.
type Engine struct {
	repo   store.RuleRepository
	cache  *Cache
	logger *slog.Logger
}

// NewEngine creates a rule engine backed by the given repository, caching
// each workspace's enabled rules for the given TTL.
func NewEngine(repo store.RuleRepository, cacheTTL time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		repo:   repo,
		cache:  NewCache(cacheTTL),
		logger: logger,
	}
}

// EvaluateRules evaluates every enabled rule for the workspace against the
// alert, returning one result per rule in ascending priority order.
func (e *Engine) EvaluateRules(ctx context.Context, workspaceID string, alert *domain.AlertForEvaluation) ([]domain.RuleEvaluationResult, error) {
	start := time.Now()

	rules, err := e.enabledRules(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	results := make([]domain.RuleEvaluationResult, 0, len(rules))
	for _, rule := range rules {
		result := e.evaluateRule(rule, alert)
		results = append(results, result)

		if result.Matched {
			metrics.RuleEvaluationsTotal.WithLabelValues(workspaceID, "matched").Inc()
			e.logger.Info("rule matched",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"workspace_id", workspaceID,
				"alert_id", alert.ID,
			)
		} else {
			metrics.RuleEvaluationsTotal.WithLabelValues(workspaceID, "unmatched").Inc()
		}
	}

	metrics.RuleEvaluationLatency.Observe(time.Since(start).Seconds())
	return results, nil
}

// TestRule dry-runs a condition group against a sample alert, for the rule
// builder surface.
func (e *Engine) TestRule(conditions domain.ConditionGroup, alert *domain.AlertForEvaluation) (bool, []domain.ConditionDetail) {
	details := []domain.ConditionDetail{}
	matched := e.evaluateGroup(conditions, alert, &details)
	return matched, details
}

// InvalidateCache drops the cached rule set for a workspace. Must be called
// on any rule create, update, or delete.
func (e *Engine) InvalidateCache(workspaceID string) {
	e.cache.Invalidate(workspaceID)
	e.logger.Debug("rule cache invalidated", "workspace_id", workspaceID)
}

func (e *Engine) enabledRules(ctx context.Context, workspaceID string) ([]*domain.RoutingRule, error) {
	if rules, ok := e.cache.Get(workspaceID); ok {
		return rules, nil
	}

	rules, err := e.repo.ListEnabled(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	e.cache.Set(workspaceID, rules)
	return rules, nil
}

func (e *Engine) evaluateRule(rule *domain.RoutingRule, alert *domain.AlertForEvaluation) domain.RuleEvaluationResult {
	details := []domain.ConditionDetail{}
	matched := e.evaluateGroup(rule.Conditions, alert, &details)

	result := domain.RuleEvaluationResult{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Priority:    rule.Priority,
		Matched:     matched,
		Details:     details,
		EvaluatedAt: time.Now(),
	}
	if matched {
		actions := rule.Actions
		result.Actions = &actions
	}
	return result
}

// evaluateGroup applies AND over All, OR over Any, and recurses into nested
// AllOf/AnyOf children with the same semantics. Empty lists are vacuously
// true.
func (e *Engine) evaluateGroup(group domain.ConditionGroup, alert *domain.AlertForEvaluation, details *[]domain.ConditionDetail) bool {
	matched := true

	for _, condition := range group.All {
		if !e.evaluateCondition(condition, alert, details) {
			matched = false
			break
		}
	}

	if matched && len(group.Any) > 0 {
		any := false
		for _, condition := range group.Any {
			if e.evaluateCondition(condition, alert, details) {
				any = true
			}
		}
		if !any {
			matched = false
		}
	}

	if matched {
		for _, child := range group.AllOf {
			if !e.evaluateGroup(child, alert, details) {
				matched = false
				break
			}
		}
	}

	if matched && len(group.AnyOf) > 0 {
		any := false
		for _, child := range group.AnyOf {
			if e.evaluateGroup(child, alert, details) {
				any = true
			}
		}
		if !any {
			matched = false
		}
	}

	return matched
}

func (e *Engine) evaluateCondition(condition domain.Condition, alert *domain.AlertForEvaluation, details *[]domain.ConditionDetail) bool {
	actual, known := e.extractField(condition.Field, alert)
	result := false
	if known {
		result = e.applyOperator(condition.Operator, actual, condition.Value, condition.CaseSensitive)
	}

	*details = append(*details, domain.ConditionDetail{
		Field:    condition.Field,
		Operator: condition.Operator,
		Expected: condition.Value,
		Actual:   actual,
		Result:   result,
	})
	return result
}

// extractField resolves a condition field to the alert's value. The field
// set is closed: first-class attributes plus "tags.<key>" lookups. Unknown
// fields log a warning and never match.
func (e *Engine) extractField(field string, alert *domain.AlertForEvaluation) (any, bool) {
	if key, ok := strings.CutPrefix(field, "tags."); ok {
		value, present := alert.Tags[key]
		if !present {
			return nil, true
		}
		return value, true
	}

	switch field {
	case "environment", "env":
		return strings.ToLower(alert.Environment), true
	case "severity":
		return strings.ToLower(alert.Severity), true
	case "project", "service":
		return strings.ToLower(alert.Project), true
	case "title":
		return alert.Title, true
	case "source":
		return strings.ToLower(alert.Source), true
	case "status":
		return strings.ToLower(alert.Status), true
	case "count":
		return float64(alert.Count), true
	default:
		e.logger.Warn("unknown field in condition", "field", field)
		return nil, false
	}
}

func (e *Engine) applyOperator(operator domain.ConditionOperator, actual, expected any, caseSensitive bool) bool {
	switch operator {
	case domain.OperatorEquals:
		return valuesEqual(actual, expected, caseSensitive)

	case domain.OperatorNotEquals:
		return !valuesEqual(actual, expected, caseSensitive)

	case domain.OperatorIn:
		list, ok := expected.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if valuesEqual(actual, item, caseSensitive) {
				return true
			}
		}
		return false

	case domain.OperatorNotIn:
		list, ok := expected.([]any)
		if !ok {
			return true
		}
		for _, item := range list {
			if valuesEqual(actual, item, caseSensitive) {
				return false
			}
		}
		return true

	case domain.OperatorContains:
		return containsValue(actual, expected, caseSensitive)

	case domain.OperatorNotContains:
		return !containsValue(actual, expected, caseSensitive)

	case domain.OperatorRegex:
		actualStr, okA := actual.(string)
		pattern, okB := expected.(string)
		if !okA || !okB {
			return false
		}
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			e.logger.Warn("invalid regex pattern in condition", "pattern", pattern)
			return false
		}
		return re.MatchString(actualStr)

	case domain.OperatorGreaterThan, domain.OperatorGreaterThanOrEquals,
		domain.OperatorLessThan, domain.OperatorLessThanOrEquals:
		return compareOrdinal(operator, actual, expected)

	default:
		e.logger.Warn("unknown operator in condition", "operator", string(operator))
		return false
	}
}

// valuesEqual compares scalars: strings case-normalized unless requested
// otherwise, numbers as float64.
func valuesEqual(actual, expected any, caseSensitive bool) bool {
	if a, ok := actual.(string); ok {
		b, ok := expected.(string)
		if !ok {
			return false
		}
		if caseSensitive {
			return a == b
		}
		return strings.EqualFold(a, b)
	}
	if a, ok := toNumber(actual); ok {
		b, ok := toNumber(expected)
		return ok && a == b
	}
	return actual == expected
}

// containsValue is substring match for strings.
func containsValue(actual, expected any, caseSensitive bool) bool {
	a, okA := actual.(string)
	b, okB := expected.(string)
	if !okA || !okB {
		return false
	}
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	return strings.Contains(a, b)
}

// compareOrdinal compares via the fixed severity-rank table when values are
// strings, and numerically when they are numbers. Unrankable values compare
// as 0 so nonsense never outranks a real severity.
func compareOrdinal(operator domain.ConditionOperator, actual, expected any) bool {
	actualRank := ordinalRank(actual)
	expectedRank := ordinalRank(expected)

	switch operator {
	case domain.OperatorGreaterThan:
		return actualRank > expectedRank
	case domain.OperatorGreaterThanOrEquals:
		return actualRank >= expectedRank
	case domain.OperatorLessThan:
		return actualRank < expectedRank
	case domain.OperatorLessThanOrEquals:
		return actualRank <= expectedRank
	default:
		return false
	}
}

func ordinalRank(v any) float64 {
	if s, ok := v.(string); ok {
		return float64(domain.SeverityRank(s))
	}
	if n, ok := toNumber(v); ok {
		return n
	}
	return 0
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}
