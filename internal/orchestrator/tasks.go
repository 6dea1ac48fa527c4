package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/progress"
	"github.com/abatilo/taskflow/internal/status"
	"github.com/abatilo/taskflow/internal/task"
	"github.com/abatilo/taskflow/internal/telemetry"
	"github.com/abatilo/taskflow/internal/timetrack"
)

// errUnchanged tells mutate that fn made no change worth saving.
var errUnchanged = errors.New("unchanged")

// Draft holds the caller-supplied fields of a new task.
type Draft struct {
	TenantID         string
	Title            string
	Description      string
	Priority         task.Priority
	Status           task.Status
	Label            string
	Tags             []string
	Notes            string
	Points           int
	DueDate          *time.Time
	DueTime          string
	StartDate        *time.Time
	AssignedTo       string
	ParentTaskID     string
	CaseID           string
	ClientID         string
	Subtasks         []string
	Checklists       []task.Checklist
	EstimatedMinutes int
	HourlyRate       float64
	Recurring        *task.Recurring
	Reminders        []task.Reminder
	WorkflowRules    []task.WorkflowRule
	// DependsOn lists tasks the new task is blocked by.
	DependsOn []string
}

// Completion is the result of CompleteTask.
type Completion struct {
	Task     *task.Task `json:"task"`
	NextTask *task.Task `json:"nextTask,omitempty"`
}

// CreateTask validates draft, stores the new task, links its dependencies and
// runs its "created" rules.
func (o *Orchestrator) CreateTask(ctx context.Context, d Draft, actor string) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanCreateTask, "", actor)
	defer func() { end(t, err) }()

	draft := &task.Task{
		TenantID:      d.TenantID,
		Title:         d.Title,
		Description:   d.Description,
		Priority:      d.Priority,
		Status:        d.Status,
		Label:         d.Label,
		Tags:          d.Tags,
		Notes:         d.Notes,
		Points:        d.Points,
		DueDate:       d.DueDate,
		DueTime:       d.DueTime,
		StartDate:     d.StartDate,
		AssignedTo:    d.AssignedTo,
		ParentTaskID:  d.ParentTaskID,
		CaseID:        d.CaseID,
		ClientID:      d.ClientID,
		Checklists:    d.Checklists,
		TimeTracking:  task.TimeTracking{EstimatedMinutes: d.EstimatedMinutes},
		Budget:        task.Budget{HourlyRate: d.HourlyRate},
		Recurring:     d.Recurring.Copy(),
		Reminders:     d.Reminders,
		WorkflowRules: d.WorkflowRules,
	}
	for _, title := range d.Subtasks {
		draft.Subtasks = append(draft.Subtasks, task.Subtask{Title: title})
	}
	return o.insert(ctx, draft, d.DependsOn, actor)
}

// insert is the single creation path for caller drafts, workflow follow-ups
// and recurring occurrences.
func (o *Orchestrator) insert(ctx context.Context, t *task.Task, dependsOn []string, actor string) (*task.Task, error) {
	if err := o.validateNew(ctx, t); err != nil {
		return nil, err
	}
	dependsOn = slices.Compact(slices.Sorted(slices.Values(dependsOn)))
	if err := o.validateDependencies(ctx, t, dependsOn); err != nil {
		return nil, err
	}

	now := o.now()
	t.ID = task.GenerateID(t.TenantID, t.Title, now, func(id string) bool {
		_, err := o.store.Get(ctx, id)
		return err == nil
	})
	if t.CreatedBy == "" {
		t.CreatedBy = actor
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 0
	t.BlockedBy = nil
	t.Blocks = nil
	t.History = nil
	if value, ok := progress.Automatic(t); ok && !t.ManualProgress {
		t.Progress = value
	}
	timetrack.RecomputeActual(t)
	timetrack.RecomputeBudget(t)
	t.Record(task.NewEntryID(), "created", actor, now)

	saved, err := o.store.Save(ctx, t)
	if err != nil {
		return nil, err
	}
	o.logger.Info("task created", "task_id", saved.ID, "tenant_id", saved.TenantID, "actor", actor)

	for _, depID := range dependsOn {
		if _, err = o.retry(ctx, saved.ID, func() (*task.Task, error) {
			return o.deps.AddDependency(ctx, saved.ID, depID, actor)
		}); err != nil {
			o.discard(ctx, saved.ID)
			return nil, fmt.Errorf("linking new task to %s: %w", depID, err)
		}
	}

	if hasTrigger(saved, task.TriggerCreated) {
		fresh, err := o.store.Get(ctx, saved.ID)
		if err == nil {
			o.rules.Evaluate(ctx, fresh, task.TriggerCreated, actor)
		}
	}
	return o.store.Get(ctx, saved.ID)
}

// discard removes a half-created task and any edges it already has.
func (o *Orchestrator) discard(ctx context.Context, id string) {
	t, err := o.store.Get(ctx, id)
	if err == nil {
		err = errors.Join(o.deps.Detach(ctx, t), o.store.Delete(ctx, id))
	}
	if err != nil {
		o.logger.Error("discarding partially created task failed", "task_id", id, "error", err)
	}
}

func hasTrigger(t *task.Task, trigger task.TriggerType) bool {
	return slices.ContainsFunc(t.WorkflowRules, func(r task.WorkflowRule) bool {
		return r.IsActive && r.Trigger.Type == trigger
	})
}

func (o *Orchestrator) validateNew(ctx context.Context, t *task.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return flowerrors.ValidationError{Field: "title", Reason: "title is required"}
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if !task.IsValidPriority(t.Priority) {
		return flowerrors.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", t.Priority)}
	}
	if t.Status == "" {
		t.Status = task.StatusTodo
	}
	if !task.IsValidStatus(t.Status) {
		return flowerrors.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", t.Status)}
	}
	if task.IsTerminal(t.Status) {
		return flowerrors.ValidationError{Field: "status", Reason: "new tasks cannot start " + string(t.Status)}
	}
	if t.Points < 0 {
		return flowerrors.ValidationError{Field: "points", Reason: "must not be negative"}
	}
	if t.TimeTracking.EstimatedMinutes < 0 {
		return flowerrors.ValidationError{Field: "estimatedMinutes", Reason: "must not be negative"}
	}
	if t.Budget.HourlyRate < 0 {
		return flowerrors.ValidationError{Field: "hourlyRate", Reason: "must not be negative"}
	}

	if err := o.requireUser(ctx, t.AssignedTo); err != nil {
		return err
	}
	if err := o.requireCase(ctx, t.CaseID, t.TenantID); err != nil {
		return err
	}
	if t.ParentTaskID != "" {
		parent, err := o.store.Get(ctx, t.ParentTaskID)
		if err != nil {
			return err
		}
		if parent.TenantID != t.TenantID {
			return flowerrors.ValidationError{Field: "parentTaskId", Reason: "parent belongs to a different tenant"}
		}
	}
	if err := o.validateRecurring(ctx, t.Recurring); err != nil {
		return err
	}
	for i := range t.WorkflowRules {
		if err := o.validateRule(ctx, &t.WorkflowRules[i]); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) validateDependencies(ctx context.Context, t *task.Task, dependsOn []string) error {
	blockers, err := o.store.FindByIDs(ctx, dependsOn)
	if err != nil {
		return err
	}
	for _, id := range dependsOn {
		idx := slices.IndexFunc(blockers, func(b *task.Task) bool { return b.ID == id })
		if idx < 0 {
			return flowerrors.NotFoundError{ID: id}
		}
		b := blockers[idx]
		if b.TenantID != t.TenantID {
			return flowerrors.ValidationError{Field: "dependsOn", Reason: "tasks belong to different tenants"}
		}
		if t.Status == task.StatusInProgress && b.Status != task.StatusDone {
			return flowerrors.BlockedError{
				Blockers: []flowerrors.BlockingTask{{ID: b.ID, Title: b.Title, Status: string(b.Status)}},
			}
		}
	}
	return nil
}

func (o *Orchestrator) validateRecurring(ctx context.Context, r *task.Recurring) error {
	if r == nil {
		return nil
	}
	if r.Enabled && !task.IsValidFrequency(r.Frequency) {
		return flowerrors.ValidationError{Field: "recurring.frequency", Reason: fmt.Sprintf("unknown frequency %q", r.Frequency)}
	}
	if !task.IsValidAssigneeStrategy(r.AssigneeStrategy) {
		return flowerrors.ValidationError{
			Field:  "recurring.assigneeStrategy",
			Reason: fmt.Sprintf("unknown strategy %q", r.AssigneeStrategy),
		}
	}
	if r.Interval < 0 {
		return flowerrors.ValidationError{Field: "recurring.interval", Reason: "must not be negative"}
	}
	if r.MaxOccurrences != nil && *r.MaxOccurrences < 1 {
		return flowerrors.ValidationError{Field: "recurring.maxOccurrences", Reason: "must be at least 1"}
	}
	for _, user := range r.AssigneePool {
		if err := o.requireUser(ctx, user); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) requireUser(ctx context.Context, userID string) error {
	if userID == "" || o.users == nil {
		return nil
	}
	ok, err := o.users.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return flowerrors.NotFoundError{Kind: "user", ID: userID}
	}
	return nil
}

func (o *Orchestrator) requireCase(ctx context.Context, caseID, tenantID string) error {
	if caseID == "" || o.cases == nil {
		return nil
	}
	ok, err := o.cases.CaseExists(ctx, caseID, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return flowerrors.NotFoundError{Kind: "case", ID: caseID}
	}
	return nil
}

// DeleteTask removes a task after detaching every edge that touches it.
func (o *Orchestrator) DeleteTask(ctx context.Context, id, actor string) (err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanDeleteTask, id, actor)
	defer func() { end(nil, err) }()

	t, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err = o.deps.Detach(ctx, t); err != nil {
		return fmt.Errorf("detaching %s: %w", id, err)
	}
	if err = o.store.Delete(ctx, id); err != nil {
		return err
	}
	o.logger.Info("task deleted", "task_id", id, "actor", actor)
	return nil
}

// TransitionStatus moves a task to newStatus. Entering in_progress fails with
// BlockedError while any blocker is not done. Rule and recurrence failures
// after the transition commits are logged, not returned.
func (o *Orchestrator) TransitionStatus(
	ctx context.Context,
	id string,
	newStatus task.Status,
	actor string,
) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanTransition, id, actor)
	defer func() { end(t, err) }()

	var change status.Change
	saved, err := o.mutate(ctx, id, func(t *task.Task) error {
		c, err := o.machine.Transition(ctx, t, newStatus, actor)
		if err != nil {
			return err
		}
		change = c
		if !c.Changed() {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, _ = o.settle(ctx, saved, change, actor)
	return t, nil
}

// CompleteTask marks a task done with an optional note and returns the next
// occurrence when the task recurs.
func (o *Orchestrator) CompleteTask(ctx context.Context, id, actor, note string) (c Completion, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanComplete, id, actor)
	defer func() { end(c.Task, err) }()

	var change status.Change
	saved, err := o.mutate(ctx, id, func(t *task.Task) error {
		if t.Status == task.StatusDone {
			return flowerrors.ValidationError{Field: "status", Reason: "task is already done"}
		}
		ch, err := o.machine.Transition(ctx, t, task.StatusDone, actor)
		if err != nil {
			return err
		}
		change = ch
		t.CompletionNote = strings.TrimSpace(note)
		return nil
	})
	if err != nil {
		return Completion{}, err
	}

	c.Task, c.NextTask = o.settle(ctx, saved, change, actor)
	return c, nil
}

// AddDependency records that taskID is blocked by dependsOnID.
func (o *Orchestrator) AddDependency(ctx context.Context, taskID, dependsOnID, actor string) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanAddDependency, taskID, actor)
	defer func() { end(t, err) }()

	return o.retry(ctx, taskID, func() (*task.Task, error) {
		return o.deps.AddDependency(ctx, taskID, dependsOnID, actor)
	})
}

// RemoveDependency removes the edge between taskID and dependsOnID if present.
func (o *Orchestrator) RemoveDependency(ctx context.Context, taskID, dependsOnID, actor string) (t *task.Task, err error) {
	ctx, end := o.startSpan(ctx, telemetry.SpanRemoveDependency, taskID, actor)
	defer func() { end(t, err) }()

	return o.retry(ctx, taskID, func() (*task.Task, error) {
		return o.deps.RemoveDependency(ctx, taskID, dependsOnID, actor)
	})
}

// Blockers lists the incomplete tasks that keep id from starting.
func (o *Orchestrator) Blockers(ctx context.Context, id string) ([]flowerrors.BlockingTask, error) {
	t, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_, blockers, err := o.deps.CanStart(ctx, t)
	return blockers, err
}
