// Package workflow evaluates the automation rules attached to a task when one
// of its trigger events fires.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abatilo/taskflow/internal/directory"
	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
)

// TaskCreator persists a new task built by a create_task action.
type TaskCreator interface {
	Create(ctx context.Context, draft *task.Task, actor string) (*task.Task, error)
}

// TaskMutator applies fn to the stored task and saves it, re-reading on version conflicts.
type TaskMutator interface {
	Update(ctx context.Context, id string, fn func(*task.Task) error) (*task.Task, error)
}

// Result summarizes one evaluation.
type Result struct {
	// Matched holds the names of the rules whose conditions held.
	Matched []string
	// Created holds tasks produced by create_task actions.
	Created []*task.Task
	// Errors holds one entry per failed action. They never abort evaluation.
	Errors []error
}

// Engine evaluates workflow rules.
type Engine struct {
	creator TaskCreator
	mutator TaskMutator
	users   directory.UserDirectory
	cases   directory.CaseDirectory
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an Engine. users and cases may be nil, in which case
// assignees are not validated and case placeholders expand to "".
func NewEngine(
	creator TaskCreator,
	mutator TaskMutator,
	users directory.UserDirectory,
	cases directory.CaseDirectory,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		creator: creator,
		mutator: mutator,
		users:   users,
		cases:   cases,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the clock used for due date offsets and history.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Evaluate runs every active rule on t listening to trigger whose conditions
// all hold. Actions run in order; a failed action is logged and skipped.
// t is refreshed in place after actions that modify it.
func (e *Engine) Evaluate(ctx context.Context, t *task.Task, trigger task.TriggerType, actor string) Result {
	var res Result

	// Rules are snapshotted so actions that rewrite t do not change what runs.
	rules := append([]task.WorkflowRule(nil), t.WorkflowRules...)
	vars := &placeholders{engine: e, task: t}

	for _, rule := range rules {
		if !rule.IsActive || rule.Trigger.Type != trigger || !Matches(t, rule.Conditions) {
			continue
		}
		res.Matched = append(res.Matched, rule.Name)

		for i, action := range rule.Actions {
			created, err := e.execute(ctx, t, action, actor, vars)
			if err != nil {
				e.logger.Warn("workflow action failed",
					"task_id", t.ID, "rule", rule.Name, "action", action.Type(), "error", err)
				res.Errors = append(res.Errors, fmt.Errorf("rule %q action %d (%s): %w", rule.Name, i, action.Type(), err))
				continue
			}
			if created != nil {
				res.Created = append(res.Created, created)
			}
		}
	}
	return res
}

func (e *Engine) execute(
	ctx context.Context,
	t *task.Task,
	action task.Action,
	actor string,
	vars *placeholders,
) (*task.Task, error) {
	switch a := action.(type) {
	case task.CreateTaskAction:
		return e.createTask(ctx, t, a, actor, vars)
	case task.AssignUserAction:
		return nil, e.assignUser(ctx, t, a, actor)
	case task.UpdateFieldAction:
		return nil, e.updateField(ctx, t, a, actor)
	default:
		return nil, task.UnknownActionError{Type: action.Type()}
	}
}

func (e *Engine) createTask(
	ctx context.Context,
	t *task.Task,
	a task.CreateTaskAction,
	actor string,
	vars *placeholders,
) (*task.Task, error) {
	title := strings.TrimSpace(vars.expand(ctx, a.Title))
	if title == "" {
		return nil, flowerrors.ValidationError{Field: "title", Reason: "create_task needs a title"}
	}

	priority := a.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}

	assignee := a.AssignedTo
	if assignee == "" {
		assignee = t.AssignedTo
	}

	draft := &task.Task{
		TenantID:     t.TenantID,
		Title:        title,
		Description:  vars.expand(ctx, a.Description),
		Priority:     priority,
		Status:       task.StatusTodo,
		Label:        a.Label,
		Tags:         append([]string(nil), a.Tags...),
		AssignedTo:   assignee,
		ParentTaskID: t.ID,
		CaseID:       t.CaseID,
		ClientID:     t.ClientID,
	}
	if a.DueDateOffset != nil {
		due := e.now().AddDate(0, 0, *a.DueDateOffset)
		draft.DueDate = &due
	}

	return e.creator.Create(ctx, draft, actor)
}

func (e *Engine) assignUser(ctx context.Context, t *task.Task, a task.AssignUserAction, actor string) error {
	if a.UserID == "" {
		return flowerrors.ValidationError{Field: "userId", Reason: "assign_user needs a user"}
	}
	if e.users != nil {
		ok, err := e.users.UserExists(ctx, a.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return flowerrors.NotFoundError{Kind: "user", ID: a.UserID}
		}
	}

	return e.mutate(ctx, t, func(x *task.Task) error {
		change := task.Change{Field: task.FieldAssignedTo, From: x.AssignedTo, To: a.UserID}
		x.AssignedTo = a.UserID
		x.Record(task.NewEntryID(), "workflow_assigned", actor, e.now(), change)
		return nil
	})
}

func (e *Engine) updateField(ctx context.Context, t *task.Task, a task.UpdateFieldAction, actor string) error {
	return e.mutate(ctx, t, func(x *task.Task) error {
		change, err := x.SetField(a.Field, a.Value)
		if err != nil {
			return err
		}
		x.Record(task.NewEntryID(), "workflow_field_updated", actor, e.now(), change)
		return nil
	})
}

func (e *Engine) mutate(ctx context.Context, t *task.Task, fn func(*task.Task) error) error {
	updated, err := e.mutator.Update(ctx, t.ID, fn)
	if err != nil {
		return err
	}
	*t = *updated
	return nil
}

// placeholders expands ${caseNumber}, ${caseTitle} and ${taskTitle}. The case
// is looked up at most once per evaluation.
type placeholders struct {
	engine *Engine
	task   *task.Task
	loaded bool
	info   directory.CaseInfo
}

func (p *placeholders) expand(ctx context.Context, s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	if strings.Contains(s, "${case") {
		p.loadCase(ctx)
	}
	return strings.NewReplacer(
		"${caseNumber}", p.info.Number,
		"${caseTitle}", p.info.Title,
		"${taskTitle}", p.task.Title,
	).Replace(s)
}

func (p *placeholders) loadCase(ctx context.Context) {
	if p.loaded {
		return
	}
	p.loaded = true
	if p.task.CaseID == "" || p.engine.cases == nil {
		return
	}
	info, err := p.engine.cases.Case(ctx, p.task.CaseID, p.task.TenantID)
	if err != nil {
		p.engine.logger.Debug("case lookup for placeholders failed", "task_id", p.task.ID, "case_id", p.task.CaseID, "error", err)
		return
	}
	p.info = info
}
