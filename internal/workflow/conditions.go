package workflow

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/abatilo/taskflow/internal/task"
)

// Matches reports whether every condition holds for t. An empty list matches.
func Matches(t *task.Task, conditions []task.Condition) bool {
	for _, c := range conditions {
		if !Holds(t, c) {
			return false
		}
	}
	return true
}

// Holds evaluates one condition. Unknown fields and operators never hold.
//
// Numbers compare numerically and dates chronologically; everything else
// compares as text. contains tests membership on tag lists and substring
// otherwise.
func Holds(t *task.Task, c task.Condition) bool {
	value, ok := t.FieldValue(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case task.OpEquals:
		return compare(value, c.Value) == 0
	case task.OpNotEquals:
		return compare(value, c.Value) != 0
	case task.OpContains:
		return contains(value, c.Value)
	case task.OpGreaterThan:
		return value != nil && compare(value, c.Value) > 0
	case task.OpLessThan:
		return value != nil && compare(value, c.Value) < 0
	default:
		return false
	}
}

func compare(field, literal any) int {
	if ft, ok := field.(time.Time); ok {
		if lt, ok := task.ToTime(literal); ok {
			return ft.Compare(lt)
		}
	}
	if fn, ok := number(field); ok {
		if ln, ok := task.ToNumber(literal); ok {
			return cmp.Compare(fn, ln)
		}
	}
	return strings.Compare(task.FormatValue(field), task.FormatValue(literal))
}

// number accepts only numeric field types so text fields holding digits
// still compare as text.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func contains(field, literal any) bool {
	needle := task.FormatValue(literal)
	if list, ok := field.([]string); ok {
		return slices.Contains(list, needle)
	}
	return strings.Contains(task.FormatValue(field), needle)
}
