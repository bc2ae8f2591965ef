package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolate(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"name": "Sam",
		"trigger": map[string]any{
			"client_name": "Acme",
			"total":       600.0,
			"lines":       []any{map[string]any{"sku": "A-1"}},
		},
		"job_id": nil,
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Hi {{name}}", "Hi Sam"},
		{"spaces inside braces", "Hi {{ name }}", "Hi Sam"},
		{"nested path", "Invoice for {{trigger.client_name}}", "Invoice for Acme"},
		{"integral number", "Total {{trigger.total}}", "Total 600"},
		{"slice index", "{{trigger.lines.0.sku}}", "A-1"},
		{"missing value", "Hi {{nobody.here}}!", "Hi !"},
		{"nil value", "job={{job_id}}", "job="},
		{"no placeholders", "plain text", "plain text"},
		{"empty placeholder", "a{{}}b", "ab"},
		{"unterminated placeholder", "Hi {{name", "Hi {{name"},
		{"multiple", "{{name}} / {{trigger.client_name}}", "Sam / Acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Interpolate(tt.input, data))
		})
	}
}

func TestInterpolate_SinglePass(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"a": "{{b}}",
		"b": "second",
	}

	assert.Equal(t, "{{b}}", Interpolate("{{a}}", data))
}

func TestInterpolateValue(t *testing.T) {
	t.Parallel()

	data := map[string]any{"trigger": map[string]any{"id": "evt-1"}}

	got := InterpolateValue(map[string]any{
		"event": "{{trigger.id}}",
		"ids":   []any{"{{trigger.id}}", 3.0},
		"flag":  true,
	}, data)

	assert.Equal(t, map[string]any{
		"event": "evt-1",
		"ids":   []any{"evt-1", 3.0},
		"flag":  true,
	}, got)
}
