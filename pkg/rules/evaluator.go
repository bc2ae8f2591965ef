package rules

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/dukex/autoflow/pkg/datapath"
)

// Evaluator applies compiled rules to a context.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{logger: logger.With("module", "rules")}
}

// Evaluate reports whether the rule holds for data. A nil rule always holds.
func (e *Evaluator) Evaluate(rule Node, data map[string]any) bool {
	if rule == nil {
		return true
	}

	return Truthy(e.Apply(rule, data))
}

// Apply resolves a node to its JSON value.
func (e *Evaluator) Apply(n Node, data map[string]any) any {
	switch node := n.(type) {
	case nil:
		return nil
	case Literal:
		return node.Value
	case List:
		out := make([]any, len(node.Items))
		for i, item := range node.Items {
			out[i] = e.Apply(item, data)
		}

		return out
	case Var:
		return e.applyVar(node, data)
	case Logical:
		return e.applyLogical(node, data)
	case Not:
		return !Truthy(e.Apply(node.Arg, data))
	case Compare:
		return compare(node.Op, e.Apply(node.Left, data), e.Apply(node.Right, data))
	case In:
		return contains(e.Apply(node.Haystack, data), e.Apply(node.Needle, data))
	case If:
		return e.applyIf(node, data)
	case Unknown:
		e.logger.Warn("unknown rule operator, treating as true", "operator", node.Op)

		return true
	default:
		return nil
	}
}

func (e *Evaluator) applyVar(node Var, data map[string]any) any {
	path := datapath.Stringify(e.Apply(node.Path, data))

	value, found := datapath.Lookup(data, path)
	if (!found || value == nil) && node.HasDefault {
		return e.Apply(node.Default, data)
	}

	return value
}

func (e *Evaluator) applyLogical(node Logical, data map[string]any) bool {
	if node.Op == "and" {
		for _, a := range node.Args {
			if !Truthy(e.Apply(a, data)) {
				return false
			}
		}

		return true
	}

	for _, a := range node.Args {
		if Truthy(e.Apply(a, data)) {
			return true
		}
	}

	return false
}

func (e *Evaluator) applyIf(node If, data map[string]any) any {
	i := 0
	for ; i+1 < len(node.Args); i += 2 {
		if Truthy(e.Apply(node.Args[i], data)) {
			return e.Apply(node.Args[i+1], data)
		}
	}

	if i < len(node.Args) {
		return e.Apply(node.Args[i], data)
	}

	return nil
}

func compare(op string, left, right any) bool {
	switch op {
	case "==", "===":
		return Equal(left, right)
	case "!=", "!==":
		return !Equal(left, right)
	}

	l, lok := ToNumber(left)
	r, rok := ToNumber(right)

	if !lok || !rok {
		return false
	}

	switch op {
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "<":
		return l < r
	case "<=":
		return l <= r
	default:
		return false
	}
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		if needle == nil {
			return false
		}

		return strings.Contains(h, datapath.Stringify(needle))
	case []any:
		for _, item := range h {
			if Equal(item, needle) {
				return true
			}
		}
	}

	return false
}

// Equal compares two values by their string form. nil only equals nil.
func Equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	return datapath.Stringify(left) == datapath.Stringify(right)
}

// ToNumber coerces numbers, numeric strings and booleans. The flag is false for
// anything else, including nil.
func ToNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}

		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}

// Truthy follows JSON-Logic truthiness: empty arrays are false.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return true
	default:
		n, ok := ToNumber(v)

		return ok && n != 0
	}
}
