package domain

import "testing"

func TestRoutingRuleValidate(t *testing.T) {
	valid := RoutingRule{
		Name: "prod criticals",
		Conditions: ConditionGroup{
			All: []Condition{{Field: "environment", Operator: OperatorEquals, Value: "production"}},
		},
		Actions: RuleActions{ChannelID: "C123"},
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}

	noName := valid
	noName.Name = ""
	if err := noName.Validate(); err == nil {
		t.Error("expected error for missing name")
	} else if !IsValidation(err) {
		t.Errorf("expected validation error, got %T", err)
	}

	noConditions := valid
	noConditions.Conditions = ConditionGroup{}
	if err := noConditions.Validate(); err == nil {
		t.Error("expected error for empty conditions")
	}
}

func TestConditionGroupEmpty(t *testing.T) {
	tests := []struct {
		name  string
		group ConditionGroup
		want  bool
	}{
		{"zero value", ConditionGroup{}, true},
		{
			"all populated",
			ConditionGroup{All: []Condition{{Field: "severity"}}},
			false,
		},
		{
			"any populated",
			ConditionGroup{Any: []Condition{{Field: "severity"}}},
			false,
		},
		{
			"empty nested children",
			ConditionGroup{AllOf: []ConditionGroup{{}}, AnyOf: []ConditionGroup{{}}},
			true,
		},
		{
			"condition buried in a nested child",
			ConditionGroup{AnyOf: []ConditionGroup{{All: []Condition{{Field: "project"}}}}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.group.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}
