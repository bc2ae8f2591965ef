package rules

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()

	var rule any
	require.NoError(t, json.Unmarshal([]byte(raw), &rule))

	return rule
}

func TestEvaluate_NilRuleAlwaysPasses(t *testing.T) {
	t.Parallel()

	evaluator := NewEvaluator(slog.Default())

	assert.True(t, evaluator.Evaluate(Compile(nil), nil))
	assert.True(t, evaluator.Evaluate(Compile(nil), map[string]any{"a": 1.0}))
}

func TestEvaluate_Operators(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"a": map[string]any{"b": "x"},
		"trigger": map[string]any{
			"total":  600.0,
			"status": "paid",
			"tags":   []any{"vip", "new"},
			"count":  "12",
			"note":   "urgent delivery",
		},
	}

	tests := []struct {
		name string
		rule string
		want bool
	}{
		{"var equals", `{"==":[{"var":"a.b"},"x"]}`, true},
		{"strict equals is string coerced", `{"===":[{"var":"trigger.total"},"600"]}`, true},
		{"not equals", `{"!=":[{"var":"trigger.status"},"draft"]}`, true},
		{"strict not equals", `{"!==":[{"var":"trigger.status"},"paid"]}`, false},
		{"missing var never equals a string", `{"==":[{"var":"a.c"},"x"]}`, false},
		{"missing var equals null", `{"==":[{"var":"a.c"},null]}`, true},
		{"greater than", `{">":[{"var":"trigger.total"},500]}`, true},
		{"greater than false", `{">":[{"var":"trigger.total"},700]}`, false},
		{"numeric string coercion", `{">=":[{"var":"trigger.count"},12]}`, true},
		{"less than", `{"<":[{"var":"trigger.total"},1000]}`, true},
		{"less or equal", `{"<=":[{"var":"trigger.total"},600]}`, true},
		{"missing var comparison is false", `{">":[{"var":"trigger.nope"},0]}`, false},
		{"non numeric comparison is false", `{"<":[{"var":"trigger.status"},10]}`, false},
		{"in substring", `{"in":["urgent",{"var":"trigger.note"}]}`, true},
		{"in array", `{"in":["vip",{"var":"trigger.tags"}]}`, true},
		{"in array miss", `{"in":["gold",{"var":"trigger.tags"}]}`, false},
		{"and", `{"and":[{">":[{"var":"trigger.total"},500]},{"==":[{"var":"trigger.status"},"paid"]}]}`, true},
		{"and short", `{"and":[true,false]}`, false},
		{"empty and", `{"and":[]}`, true},
		{"or", `{"or":[false,{"==":[{"var":"a.b"},"x"]}]}`, true},
		{"empty or", `{"or":[]}`, false},
		{"not", `{"not":[{"==":[{"var":"a.b"},"y"]}]}`, true},
		{"bang", `{"!":{"var":"trigger.status"}}`, false},
		{"nested composition", `{"or":[{"and":[false,true]},{"not":[{"in":["gold",{"var":"trigger.tags"}]}]}]}`, true},
		{"if picks first true branch", `{"if":[{"var":"trigger.missing"},false,{">":[{"var":"trigger.total"},1]},true,false]}`, true},
		{"if falls through to else", `{"if":[false,true,false]}`, false},
		{"literal true", `true`, true},
		{"literal false", `false`, false},
		{"var with default", `{"==":[{"var":["trigger.currency","EUR"]},"EUR"]}`, true},
		{"empty array is falsy", `{"and":[[]]}`, false},
		{"multi key object is a literal", `{"a":1,"b":2}`, true},
	}

	evaluator := NewEvaluator(slog.Default())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule := Compile(decode(t, tt.rule))
			assert.Equal(t, tt.want, evaluator.Evaluate(rule, data))
		})
	}
}

func TestEvaluate_UnknownOperatorFailsOpen(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	evaluator := NewEvaluator(logger)

	rule := Compile(decode(t, `{"and":[{"regex_match":["a","b"]},true]}`))

	assert.True(t, evaluator.Evaluate(rule, map[string]any{}))
	assert.Contains(t, buf.String(), "regex_match")
	assert.Equal(t, []string{"regex_match"}, UnknownOperators(rule))
}

func TestCompile_BuildsTypedNodes(t *testing.T) {
	t.Parallel()

	rule := Compile(decode(t, `{">":[{"var":"trigger.total"},500]}`))

	cmp, ok := rule.(Compare)
	require.True(t, ok)
	assert.Equal(t, ">", cmp.Op)

	v, ok := cmp.Left.(Var)
	require.True(t, ok)
	assert.Equal(t, Literal{Value: "trigger.total"}, v.Path)
	assert.Equal(t, Literal{Value: 500.0}, cmp.Right)
	assert.Empty(t, UnknownOperators(rule))
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0.0))
	assert.False(t, Truthy([]any{}))
	assert.True(t, Truthy("0"))
	assert.True(t, Truthy(map[string]any{}))
	assert.True(t, Truthy(-1.0))
}
