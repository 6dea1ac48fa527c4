// Package progress derives task completion percentage from subtasks or from a
// value pinned by a person.
package progress

import (
	"math"
	"strconv"
	"time"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
)

// Tracker updates Task.Progress and Task.ManualProgress.
//
// Every method reports whether the task now sits at 100% without being done;
// the caller completes such a task through the status machine.
type Tracker struct {
	now func() time.Time
}

// NewTracker creates a Tracker. A nil clock means time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Automatic returns round(100 * completed / total) over the subtasks, and
// false when there are no subtasks to derive from.
func Automatic(t *task.Task) (int, bool) {
	total := len(t.Subtasks)
	if total == 0 {
		return 0, false
	}
	return int(math.Round(100 * float64(t.CompletedSubtasks()) / float64(total))), true
}

// Recompute refreshes progress from subtasks unless a manual value is pinned.
// Without subtasks the current value is kept.
func (tr *Tracker) Recompute(t *task.Task) bool {
	if !t.ManualProgress {
		if value, ok := Automatic(t); ok {
			t.Progress = value
		}
	}
	return needsCompletion(t)
}

// SetManual pins progress to value and disables automatic derivation.
func (tr *Tracker) SetManual(t *task.Task, value int, actor string) (bool, error) {
	if value < 0 || value > 100 {
		return false, flowerrors.ValidationError{Field: "progress", Reason: "must be between 0 and 100"}
	}

	old := t.Progress
	t.Progress = value
	t.ManualProgress = true
	t.Record(task.NewEntryID(), "progress_set", actor, tr.now(), task.Change{
		Field: task.FieldProgress,
		From:  strconv.Itoa(old),
		To:    strconv.Itoa(value),
	})
	return needsCompletion(t), nil
}

// ResetToAutomatic clears the pinned value and recomputes from subtasks.
func (tr *Tracker) ResetToAutomatic(t *task.Task, actor string) bool {
	old := t.Progress
	t.ManualProgress = false
	if value, ok := Automatic(t); ok {
		t.Progress = value
	}
	t.Record(task.NewEntryID(), "progress_reset", actor, tr.now(), task.Change{
		Field: task.FieldProgress,
		From:  strconv.Itoa(old),
		To:    strconv.Itoa(t.Progress),
	})
	return needsCompletion(t)
}

// needsCompletion is false for done and canceled tasks; reaching 100% never
// revives a canceled task.
func needsCompletion(t *task.Task) bool {
	return t.Progress == 100 && !task.IsTerminal(t.Status)
}
