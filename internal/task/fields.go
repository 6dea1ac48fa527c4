package task

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
)

// Field names addressable by workflow conditions and update_field actions.
const (
	FieldTitle            = "title"
	FieldDescription      = "description"
	FieldStatus           = "status"
	FieldPriority         = "priority"
	FieldLabel            = "label"
	FieldTags             = "tags"
	FieldNotes            = "notes"
	FieldPoints           = "points"
	FieldAssignedTo       = "assignedTo"
	FieldCreatedBy        = "createdBy"
	FieldCaseID           = "caseId"
	FieldClientID         = "clientId"
	FieldProgress         = "progress"
	FieldDueDate          = "dueDate"
	FieldEstimatedMinutes = "estimatedMinutes"
	FieldActualMinutes    = "actualMinutes"
)

// FieldValue returns the value of a named field. Dates are returned as time.Time,
// counters as int, tags as []string.
func (t *Task) FieldValue(name string) (any, bool) {
	switch name {
	case FieldTitle:
		return t.Title, true
	case FieldDescription:
		return t.Description, true
	case FieldStatus:
		return string(t.Status), true
	case FieldPriority:
		return string(t.Priority), true
	case FieldLabel:
		return t.Label, true
	case FieldTags:
		return t.Tags, true
	case FieldNotes:
		return t.Notes, true
	case FieldPoints:
		return t.Points, true
	case FieldAssignedTo:
		return t.AssignedTo, true
	case FieldCreatedBy:
		return t.CreatedBy, true
	case FieldCaseID:
		return t.CaseID, true
	case FieldClientID:
		return t.ClientID, true
	case FieldProgress:
		return t.Progress, true
	case FieldDueDate:
		if t.DueDate == nil {
			return nil, true
		}
		return *t.DueDate, true
	case FieldEstimatedMinutes:
		return t.TimeTracking.EstimatedMinutes, true
	case FieldActualMinutes:
		return t.TimeTracking.ActualMinutes, true
	default:
		return nil, false
	}
}

// SetField overwrites a writable named field. Status, progress and the time
// counters are derived or state-machine owned and cannot be set this way.
func (t *Task) SetField(name string, value any) (Change, error) {
	old, ok := t.FieldValue(name)
	if !ok {
		return Change{}, flowerrors.ValidationError{Field: name, Reason: "unknown field"}
	}
	change := Change{Field: name, From: FormatValue(old)}

	switch name {
	case FieldTitle:
		s := strings.TrimSpace(FormatValue(value))
		if s == "" {
			return Change{}, flowerrors.ValidationError{Field: name, Reason: "title is required"}
		}
		t.Title = s
	case FieldDescription:
		t.Description = FormatValue(value)
	case FieldPriority:
		p := Priority(FormatValue(value))
		if !IsValidPriority(p) {
			return Change{}, flowerrors.ValidationError{Field: name, Reason: fmt.Sprintf("invalid priority %q", p)}
		}
		t.Priority = p
	case FieldLabel:
		t.Label = FormatValue(value)
	case FieldTags:
		t.Tags = toStrings(value)
	case FieldNotes:
		t.Notes = FormatValue(value)
	case FieldPoints:
		n, ok := ToNumber(value)
		if !ok || n < 0 {
			return Change{}, flowerrors.ValidationError{Field: name, Reason: "points must be a non-negative number"}
		}
		t.Points = int(math.Round(n))
	case FieldAssignedTo:
		t.AssignedTo = FormatValue(value)
	case FieldCaseID:
		t.CaseID = FormatValue(value)
	case FieldClientID:
		t.ClientID = FormatValue(value)
	case FieldDueDate:
		if value == nil || FormatValue(value) == "" {
			t.DueDate = nil
			break
		}
		d, ok := ToTime(value)
		if !ok {
			return Change{}, flowerrors.ValidationError{Field: name, Reason: "unrecognized date"}
		}
		t.DueDate = &d
	default:
		return Change{}, flowerrors.ValidationError{Field: name, Reason: "field is read-only"}
	}

	now, _ := t.FieldValue(name)
	change.To = FormatValue(now)
	return change, nil
}

// FormatValue renders a field value for history entries and string comparisons.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format(time.RFC3339)
	case []string:
		return strings.Join(x, ",")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// ToNumber converts the numeric shapes YAML and JSON decoding produce.
func ToNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToTime converts a time value or a date string.
func ToTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	case string:
		t, err := ParseTime(x)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

// ParseTime tries the timestamp layouts accepted from users and files.
func ParseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		time.DateOnly,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, FormatValue(e))
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		parts := strings.Split(x, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return []string{FormatValue(x)}
	}
}
