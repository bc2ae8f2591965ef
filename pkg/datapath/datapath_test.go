package datapath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"trigger": map[string]any{
			"client": map[string]any{"name": "Acme"},
			"items":  []any{map[string]any{"id": "i-1"}, map[string]any{"id": "i-2"}},
			"empty":  nil,
		},
	}

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{"nested map", "trigger.client.name", "Acme", true},
		{"slice index", "trigger.items.1.id", "i-2", true},
		{"explicit nil", "trigger.empty", nil, true},
		{"missing key", "trigger.client.email", nil, false},
		{"index out of range", "trigger.items.5.id", nil, false},
		{"non numeric index", "trigger.items.first", nil, false},
		{"walk through scalar", "trigger.client.name.first", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := Lookup(data, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup_EmptyPathReturnsRoot(t *testing.T) {
	t.Parallel()

	data := map[string]any{"a": 1.0}

	got, ok := Lookup(data, "  ")
	assert.True(t, ok)
	assert.Equal(t, data, got)
}

func TestStringify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "Acme", Stringify("Acme"))
	assert.Equal(t, "600", Stringify(600.0))
	assert.Equal(t, "12.5", Stringify(12.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "42", Stringify(42))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
	assert.Equal(t, `["x","y"]`, Stringify([]any{"x", "y"}))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	dst := map[string]any{"a": 1, "b": 2}
	got := Merge(dst, map[string]any{"b": 3, "c": 4})

	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, got)
	assert.Equal(t, map[string]any{"x": 1}, Merge(nil, map[string]any{"x": 1}))
}
