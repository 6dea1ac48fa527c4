package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/status"
	"github.com/abatilo/taskflow/internal/task"
	"github.com/abatilo/taskflow/internal/telemetry"
	"github.com/abatilo/taskflow/internal/timetrack"
)

// BudgetUpdate changes the estimate and/or hourly rate of a task. Nil fields
// are left alone.
type BudgetUpdate struct {
	EstimatedMinutes *int
	HourlyRate       *float64
}

// ProgressUpdate either pins progress to Value or, with AutoCalculate, hands
// it back to subtask derivation.
type ProgressUpdate struct {
	Value         *int
	AutoCalculate bool
}

// StartTimer opens a work session for actor on the task.
func (o *Orchestrator) StartTimer(ctx context.Context, id, actor, notes string) (tt task.TimeTracking, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanTimer, id, actor)
	defer func() { end(nil, err) }()

	saved, err := o.mutate(ctx, id, func(t *task.Task) error {
		_, err := o.timer.StartTimer(t, actor, notes)
		return err
	})
	if err != nil {
		return task.TimeTracking{}, err
	}
	o.logger.Debug("timer started", "task_id", id, "actor", actor)
	return saved.TimeTracking, nil
}

// StopTimer closes the running session and refreshes actual minutes and costs.
func (o *Orchestrator) StopTimer(
	ctx context.Context,
	id, actor string,
	opts timetrack.StopOptions,
) (tt task.TimeTracking, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanTimer, id, actor)
	defer func() { end(nil, err) }()

	var session task.Session
	saved, err := o.mutate(ctx, id, func(t *task.Task) error {
		var err error
		session, err = o.timer.StopTimer(t, actor, opts)
		return err
	})
	if err != nil {
		return task.TimeTracking{}, err
	}
	o.logger.Debug("timer stopped", "task_id", id, "actor", actor, "minutes", session.Duration)
	return saved.TimeTracking, nil
}

// AddManualTime logs a closed session after the fact.
func (o *Orchestrator) AddManualTime(
	ctx context.Context,
	id, actor string,
	entry timetrack.ManualEntry,
) (tt task.TimeTracking, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanManualTime, id, actor)
	defer func() { end(nil, err) }()

	if err = o.requireUser(ctx, entry.UserID); err != nil {
		return task.TimeTracking{}, err
	}
	saved, err := o.mutate(ctx, id, func(t *task.Task) error {
		_, err := o.timer.AddManualTime(t, actor, entry)
		return err
	})
	if err != nil {
		return task.TimeTracking{}, err
	}
	return saved.TimeTracking, nil
}

// TimeSummary reports the time and budget state of a task.
func (o *Orchestrator) TimeSummary(ctx context.Context, id string) (timetrack.Summary, error) {
	t, err := o.store.Get(ctx, id)
	if err != nil {
		return timetrack.Summary{}, err
	}
	return timetrack.Summarize(t), nil
}

// UpdateBudget sets the estimate and/or hourly rate.
func (o *Orchestrator) UpdateBudget(ctx context.Context, id, actor string, u BudgetUpdate) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanBudget, id, actor)
	defer func() { end(t, err) }()

	if u.EstimatedMinutes == nil && u.HourlyRate == nil {
		return nil, flowerrors.ValidationError{Field: "budget", Reason: "nothing to update"}
	}
	return o.mutate(ctx, id, func(t *task.Task) error {
		if u.EstimatedMinutes != nil {
			if err := o.timer.SetEstimate(t, *u.EstimatedMinutes, actor); err != nil {
				return err
			}
		}
		if u.HourlyRate != nil {
			return o.timer.SetHourlyRate(t, *u.HourlyRate, actor)
		}
		return nil
	})
}

// SetProgress pins or releases the progress of a task. Reaching 100 completes
// the task, which runs completion rules and recurrence like CompleteTask.
func (o *Orchestrator) SetProgress(ctx context.Context, id, actor string, u ProgressUpdate) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanProgress, id, actor)
	defer func() { end(t, err) }()

	if (u.Value == nil) == !u.AutoCalculate {
		return nil, flowerrors.ValidationError{Field: "progress", Reason: "give either a value or auto-calculate"}
	}
	return o.withProgress(ctx, id, actor, func(t *task.Task) (bool, error) {
		if u.AutoCalculate {
			return o.progress.ResetToAutomatic(t, actor), nil
		}
		return o.progress.SetManual(t, *u.Value, actor)
	})
}

// AddSubtask appends an unchecked subtask and recomputes progress.
func (o *Orchestrator) AddSubtask(ctx context.Context, id, actor, title string) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanSubtask, id, actor)
	defer func() { end(t, err) }()

	if title == "" {
		return nil, flowerrors.ValidationError{Field: "subtask", Reason: "title is required"}
	}
	return o.withProgress(ctx, id, actor, func(t *task.Task) (bool, error) {
		t.Subtasks = append(t.Subtasks, task.Subtask{Title: title})
		t.Record(task.NewEntryID(), "subtask_added", actor, o.now(), task.Change{Field: "subtasks", To: title})
		return o.progress.Recompute(t), nil
	})
}

// ToggleSubtask flips the completion of the subtask at index and recomputes
// progress. Checking the last open subtask completes the task.
func (o *Orchestrator) ToggleSubtask(ctx context.Context, id, actor string, index int) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanSubtask, id, actor)
	defer func() { end(t, err) }()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("taskflow.subtask.index", index))

	return o.withProgress(ctx, id, actor, func(t *task.Task) (bool, error) {
		if index < 0 || index >= len(t.Subtasks) {
			return false, flowerrors.ValidationError{Field: "subtask", Reason: "index out of range"}
		}
		s := &t.Subtasks[index]
		s.Completed = !s.Completed
		if s.Completed {
			now := o.now()
			s.CompletedAt = &now
		} else {
			s.CompletedAt = nil
		}
		t.Record(task.NewEntryID(), "subtask_toggled", actor, o.now(), task.Change{
			Field: "subtasks",
			From:  s.Title,
			To:    task.FormatValue(s.Completed),
		})
		return o.progress.Recompute(t), nil
	})
}

// withProgress applies a progress edit and completes the task through the
// status machine when the edit reports 100% on a task that is not done.
func (o *Orchestrator) withProgress(
	ctx context.Context,
	id, actor string,
	fn func(*task.Task) (bool, error),
) (*task.Task, error) {
	var change status.Change
	saved, err := o.mutate(ctx, id, func(t *task.Task) error {
		change = status.Change{}
		complete, err := fn(t)
		if err != nil || !complete {
			return err
		}
		change, err = o.machine.Transition(ctx, t, task.StatusDone, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	t, _ := o.settle(ctx, saved, change, actor)
	return t, nil
}

// AddWorkflowRule validates rule and attaches it to the task.
func (o *Orchestrator) AddWorkflowRule(
	ctx context.Context,
	id, actor string,
	rule task.WorkflowRule,
) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanRules, id, actor)
	defer func() { end(t, err) }()

	if err = o.validateRule(ctx, &rule); err != nil {
		return nil, err
	}
	return o.mutate(ctx, id, func(t *task.Task) error {
		for _, existing := range t.WorkflowRules {
			if existing.ID == rule.ID {
				return flowerrors.AlreadyExistsError{ID: rule.ID}
			}
		}
		t.WorkflowRules = append(t.WorkflowRules, rule)
		t.Record(task.NewEntryID(), "workflow_rule_added", actor, o.now(), task.Change{Field: "workflowRules", To: rule.Name})
		return nil
	})
}

// RemoveWorkflowRule detaches the rule with ruleID from the task.
func (o *Orchestrator) RemoveWorkflowRule(ctx context.Context, id, actor, ruleID string) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanRules, id, actor)
	defer func() { end(t, err) }()

	return o.mutate(ctx, id, func(t *task.Task) error {
		for i, r := range t.WorkflowRules {
			if r.ID == ruleID {
				t.WorkflowRules = append(t.WorkflowRules[:i], t.WorkflowRules[i+1:]...)
				t.Record(task.NewEntryID(), "workflow_rule_removed", actor, o.now(),
					task.Change{Field: "workflowRules", From: r.Name})
				return nil
			}
		}
		return flowerrors.NotFoundError{Kind: "workflow rule", ID: ruleID}
	})
}

// validateRule checks a rule before it is stored and assigns it an ID.
func (o *Orchestrator) validateRule(ctx context.Context, r *task.WorkflowRule) error {
	if r.Name == "" {
		return flowerrors.ValidationError{Field: "rule.name", Reason: "name is required"}
	}
	if !task.IsValidTrigger(r.Trigger.Type) {
		return flowerrors.ValidationError{Field: "rule.trigger", Reason: "unknown trigger " + string(r.Trigger.Type)}
	}
	var probe task.Task
	for _, c := range r.Conditions {
		if _, ok := probe.FieldValue(c.Field); !ok {
			return flowerrors.ValidationError{Field: "rule.conditions", Reason: "unknown field " + c.Field}
		}
		if !task.IsValidOperator(c.Operator) {
			return flowerrors.ValidationError{Field: "rule.conditions", Reason: "unknown operator " + string(c.Operator)}
		}
	}
	if len(r.Actions) == 0 {
		return flowerrors.ValidationError{Field: "rule.actions", Reason: "at least one action is required"}
	}
	for _, action := range r.Actions {
		if err := o.validateAction(ctx, action); err != nil {
			return err
		}
	}
	if r.ID == "" {
		r.ID = task.NewEntryID()
	}
	return nil
}

func (o *Orchestrator) validateAction(ctx context.Context, action task.Action) error {
	switch a := action.(type) {
	case task.CreateTaskAction:
		if a.Title == "" {
			return flowerrors.ValidationError{Field: "rule.actions", Reason: "create_task needs a title"}
		}
		if a.Priority != "" && !task.IsValidPriority(a.Priority) {
			return flowerrors.ValidationError{Field: "rule.actions", Reason: "unknown priority " + string(a.Priority)}
		}
		return o.requireUser(ctx, a.AssignedTo)
	case task.AssignUserAction:
		if a.UserID == "" {
			return flowerrors.ValidationError{Field: "rule.actions", Reason: "assign_user needs a user"}
		}
		return o.requireUser(ctx, a.UserID)
	case task.UpdateFieldAction:
		probe := task.Task{Title: "probe"}
		if _, err := probe.SetField(a.Field, a.Value); err != nil {
			return err
		}
		return nil
	default:
		return task.UnknownActionError{Type: action.Type()}
	}
}
