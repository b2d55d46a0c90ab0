package domain

import (
	"time"
)

// ConditionOperator enumerates the comparison operators the rule engine
// supports.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorIn          ConditionOperator = "in"
	OperatorNotIn       ConditionOperator = "not_in"
	OperatorContains    ConditionOperator = "contains"
	OperatorNotContains ConditionOperator = "not_contains"
	OperatorRegex       ConditionOperator = "regex"

	// Ordinal comparators compare via the fixed severity-rank table rather
	// than lexical order.
	OperatorGreaterThan         ConditionOperator = "greater_than"
	OperatorGreaterThanOrEquals ConditionOperator = "greater_than_or_equals"
	OperatorLessThan            ConditionOperator = "less_than"
	OperatorLessThanOrEquals    ConditionOperator = "less_than_or_equals"
)

// Condition is a single field/operator/value comparison. String comparisons
// are case-insensitive unless CaseSensitive is set.
type Condition struct {
	Field         string            `json:"field"`
	Operator      ConditionOperator `json:"operator"`
	Value         any               `json:"value"`
	CaseSensitive bool              `json:"case_sensitive,omitempty"`
}

// ConditionGroup is a logical expression over conditions: AND over All, OR
// over Any. AllOf/AnyOf nest child groups recursively with the same
// semantics, so arbitrarily nested AND/OR trees are expressible. An empty
// list is vacuously true.
type ConditionGroup struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`

	AllOf []ConditionGroup `json:"all_of,omitempty"`
	AnyOf []ConditionGroup `json:"any_of,omitempty"`
}

// Empty returns true when the group carries no conditions at any level.
func (g ConditionGroup) Empty() bool {
	if len(g.All) > 0 || len(g.Any) > 0 {
		return false
	}
	for _, child := range g.AllOf {
		if !child.Empty() {
			return false
		}
	}
	for _, child := range g.AnyOf {
		if !child.Empty() {
			return false
		}
	}
	return true
}

// RuleActions describes what a matched rule does: the notification
// destination plus optional escalation policy.
type RuleActions struct {
	ChannelID      string `json:"channel_id,omitempty"`
	MentionHere    bool   `json:"mention_here,omitempty"`
	MentionChannel bool   `json:"mention_channel,omitempty"`

	EscalateAfterMinutes  int    `json:"escalate_after_minutes,omitempty"`
	EscalationChannelID   string `json:"escalation_channel_id,omitempty"`
	EscalationMentionHere bool   `json:"escalation_mention_here,omitempty"`
}

// RoutingRule is a workspace-defined routing rule. Rules are created and
// edited through the admin surface and consumed read-only by the engine;
// ascending priority means higher precedence.
type RoutingRule struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Priority    int            `json:"priority"`
	Enabled     bool           `json:"enabled"`
	Conditions  ConditionGroup `json:"conditions"`
	Actions     RuleActions    `json:"actions"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Validate checks the rule has the fields the engine requires.
func (r *RoutingRule) Validate() error {
	if r.Name == "" {
		return &ValidationError{Msg: "rule name is required"}
	}
	if r.Conditions.Empty() {
		return &ValidationError{Msg: "rule must have at least one condition"}
	}
	return nil
}

// AlertForEvaluation is the projection the rule engine matches against: the
// normalized alert enriched with the live group's status and count.
type AlertForEvaluation struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspace_id"`
	Environment string            `json:"environment"`
	Severity    string            `json:"severity"`
	Project     string            `json:"project"`
	Title       string            `json:"title"`
	Source      string            `json:"source"`
	Status      string            `json:"status"`
	Count       int               `json:"count"`
	Tags        map[string]string `json:"tags"`
}

// ConditionDetail records the outcome of one condition evaluation, surfaced
// to rule-test tooling for explainability.
type ConditionDetail struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Expected any               `json:"expected"`
	Actual   any               `json:"actual"`
	Result   bool              `json:"result"`
}

// RuleEvaluationResult is one per enabled rule, in ascending-priority order.
type RuleEvaluationResult struct {
	RuleID      string            `json:"rule_id"`
	RuleName    string            `json:"rule_name"`
	Priority    int               `json:"priority"`
	Matched     bool              `json:"matched"`
	Details     []ConditionDetail `json:"details"`
	Actions     *RuleActions      `json:"actions,omitempty"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}
