package workflow

import (
	"strings"

	"github.com/dukex/autoflow/pkg/datapath"
	"github.com/dukex/autoflow/pkg/rules"
)

// ConditionOperator is a legacy condition block comparator. These are not rule
// operators and the two sets are never mixed.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpContains    ConditionOperator = "contains"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpExists      ConditionOperator = "exists"
	OpNotExists   ConditionOperator = "not_exists"
)

var conditionOperators = map[string]ConditionOperator{
	"equals":       OpEquals,
	"eq":           OpEquals,
	"==":           OpEquals,
	"not_equals":   OpNotEquals,
	"neq":          OpNotEquals,
	"!=":           OpNotEquals,
	"contains":     OpContains,
	"greater_than": OpGreaterThan,
	"gt":           OpGreaterThan,
	">":            OpGreaterThan,
	"less_than":    OpLessThan,
	"lt":           OpLessThan,
	"<":            OpLessThan,
	"exists":       OpExists,
	"not_exists":   OpNotExists,
}

// Resolve looks the field up in the context, falling back to the trigger payload so
// blocks may name payload fields without the "trigger." prefix.
func (s ConditionStep) Resolve(data map[string]any) any {
	if value, ok := datapath.Lookup(data, s.Field); ok {
		return value
	}

	return datapath.Get(data["trigger"], s.Field)
}

// Evaluate applies the comparator to the resolved field.
func (s ConditionStep) Evaluate(data map[string]any) bool {
	actual := s.Resolve(data)

	switch s.Operator {
	case OpEquals:
		return rules.Equal(actual, s.Value)
	case OpNotEquals:
		return !rules.Equal(actual, s.Value)
	case OpContains:
		return containsValue(actual, s.Value)
	case OpGreaterThan, OpLessThan:
		l, lok := rules.ToNumber(actual)
		r, rok := rules.ToNumber(s.Value)

		if !lok || !rok {
			return false
		}

		if s.Operator == OpGreaterThan {
			return l > r
		}

		return l < r
	case OpExists:
		return exists(actual)
	case OpNotExists:
		return !exists(actual)
	}

	return false
}

func exists(value any) bool {
	if value == nil {
		return false
	}

	if s, ok := value.(string); ok {
		return s != ""
	}

	return true
}

func containsValue(actual, expected any) bool {
	switch a := actual.(type) {
	case string:
		return expected != nil && strings.Contains(a, datapath.Stringify(expected))
	case []any:
		for _, item := range a {
			if rules.Equal(item, expected) {
				return true
			}
		}
	}

	return false
}
