// Package template provides {{dotted.path}} interpolation for action configuration.
package template

import (
	"regexp"
	"strings"

	"github.com/dukex/autoflow/pkg/datapath"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

// Interpolate replaces every {{path}} in input with the string form of the value at
// that path. Missing and nil values render as the empty string. Substituted text is
// never interpolated again.
func Interpolate(input string, data map[string]any) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholder.ReplaceAllStringFunc(input, func(match string) string {
		groups := placeholder.FindStringSubmatch(match)
		if len(groups) < 2 || groups[1] == "" {
			return ""
		}

		value, _ := datapath.Lookup(data, groups[1])

		return datapath.Stringify(value)
	})
}

// InterpolateValue walks maps and slices and interpolates every string it finds.
func InterpolateValue(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return Interpolate(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = InterpolateValue(item, data)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = InterpolateValue(item, data)
		}

		return out
	default:
		return value
	}
}
