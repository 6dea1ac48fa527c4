// Package status applies task status transitions and runs the follow-up
// automation once a transition has been committed.
package status

import (
	"context"
	"log/slog"
	"time"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/progress"
	"github.com/abatilo/taskflow/internal/task"
	"github.com/abatilo/taskflow/internal/workflow"
)

// BlockerChecker answers whether a task may enter in_progress.
type BlockerChecker interface {
	CanStart(ctx context.Context, t *task.Task) (bool, []flowerrors.BlockingTask, error)
}

// RuleEvaluator runs the workflow rules attached to a task.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, t *task.Task, trigger task.TriggerType, actor string) workflow.Result
}

// Spawner creates the next occurrence of a recurring task.
type Spawner interface {
	MaybeSpawnNext(ctx context.Context, t *task.Task) (*task.Task, error)
}

// Change describes an applied transition.
type Change struct {
	From task.Status
	To   task.Status
	At   time.Time
}

// Changed reports whether the status actually moved.
func (c Change) Changed() bool {
	return c.From != c.To
}

// Completed reports whether the transition entered done.
func (c Change) Completed() bool {
	return c.Changed() && c.To == task.StatusDone
}

// Machine validates and applies status transitions.
type Machine struct {
	blockers BlockerChecker
	rules    RuleEvaluator
	spawner  Spawner
	logger   *slog.Logger
	now      func() time.Time
}

// NewMachine creates a Machine. rules and spawner may be nil.
func NewMachine(blockers BlockerChecker, rules RuleEvaluator, spawner Spawner, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		blockers: blockers,
		rules:    rules,
		spawner:  spawner,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock used for completion stamps and history.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Transition validates newStatus and applies it to t in memory. The caller
// persists t and then calls Settle with the returned Change.
//
// Moving to the current status is a no-op and records nothing.
func (m *Machine) Transition(ctx context.Context, t *task.Task, newStatus task.Status, actor string) (Change, error) {
	if !task.IsValidStatus(newStatus) {
		return Change{}, flowerrors.ValidationError{Field: "status", Reason: "unknown status " + string(newStatus)}
	}

	now := m.now()
	change := Change{From: t.Status, To: newStatus, At: now}
	if !change.Changed() {
		return change, nil
	}

	if newStatus == task.StatusInProgress {
		ok, blockers, err := m.blockers.CanStart(ctx, t)
		if err != nil {
			return Change{}, err
		}
		if !ok {
			return Change{}, flowerrors.BlockedError{ID: t.ID, Blockers: blockers}
		}
	}

	if change.From == task.StatusDone {
		reopen(t)
	}

	t.Status = newStatus
	if newStatus == task.StatusDone {
		t.CompletedAt = &now
		t.CompletedBy = actor
		t.Progress = 100
		if t.Recurring.Active() {
			t.Recurring.OccurrencesCompleted++
		}
	}

	t.Record(task.NewEntryID(), "status_changed", actor, now, task.Change{
		Field: task.FieldStatus,
		From:  string(change.From),
		To:    string(change.To),
	})
	return change, nil
}

// reopen clears completion metadata when a task leaves done. Progress falls
// back to the subtask ratio; a full or underivable ratio resets to zero.
func reopen(t *task.Task) {
	t.CompletedAt = nil
	t.CompletedBy = ""
	t.CompletionNote = ""
	t.ManualProgress = false

	value, ok := progress.Automatic(t)
	if !ok || value == 100 {
		value = 0
	}
	t.Progress = value
}

// Settle runs the automation for a committed transition: status_change rules
// on every change, then on completion the completion rules followed by the
// recurrence spawner. Failures are logged and never undo the transition.
// It returns the spawned next occurrence, if any.
func (m *Machine) Settle(ctx context.Context, t *task.Task, change Change, actor string) *task.Task {
	if !change.Changed() {
		return nil
	}

	m.evaluate(ctx, t, task.TriggerStatusChange, actor)
	if !change.Completed() {
		return nil
	}
	m.evaluate(ctx, t, task.TriggerCompletion, actor)

	if m.spawner == nil {
		return nil
	}
	next, err := m.spawner.MaybeSpawnNext(ctx, t)
	if err != nil {
		m.logger.Warn("spawning next occurrence failed", "task_id", t.ID, "error", err)
		return nil
	}
	if next != nil {
		m.logger.Info("spawned next occurrence", "task_id", t.ID, "next_id", next.ID)
	}
	return next
}

func (m *Machine) evaluate(ctx context.Context, t *task.Task, trigger task.TriggerType, actor string) {
	if m.rules == nil {
		return
	}
	res := m.rules.Evaluate(ctx, t, trigger, actor)
	if len(res.Matched) > 0 {
		m.logger.Debug("workflow rules fired",
			"task_id", t.ID, "trigger", trigger, "rules", res.Matched, "failures", len(res.Errors))
	}
}
