//nolint:testpackage // Tests require internal access for thorough testing
package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/abatilo/taskflow/internal/directory"
	"github.com/abatilo/taskflow/internal/storage"
	"github.com/abatilo/taskflow/internal/task"
)

// memoryHost implements TaskCreator and TaskMutator over a Memory store.
type memoryHost struct {
	store *storage.Memory
	seq   int
}

func (h *memoryHost) Create(ctx context.Context, draft *task.Task, actor string) (*task.Task, error) {
	h.seq++
	draft.ID = "new" + string(rune('0'+h.seq))
	draft.CreatedBy = actor
	return h.store.Save(ctx, draft)
}

func (h *memoryHost) Update(ctx context.Context, id string, fn func(*task.Task) error) (*task.Task, error) {
	t, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = fn(t); err != nil {
		return nil, err
	}
	return h.store.Save(ctx, t)
}

var fixedNow = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, tk *task.Task) (*Engine, *memoryHost, *task.Task) {
	t.Helper()
	host := &memoryHost{store: storage.NewMemory()}
	saved, err := host.store.Save(context.Background(), tk)
	if err != nil {
		t.Fatal(err)
	}
	users := directory.NewStatic([]string{"alice", "bob"}, nil)
	cases := directory.NewStatic(nil, []directory.CaseInfo{
		{ID: "c1", TenantID: "firm", Number: "2025-017", Title: "Acme v. Widget"},
	})
	e := NewEngine(host, host, users, cases, nil).WithClock(func() time.Time { return fixedNow })
	return e, host, saved
}

func TestHolds(t *testing.T) {
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	tk := &task.Task{
		Title:    "File brief",
		Priority: task.PriorityHigh,
		Label:    "filing",
		Tags:     []string{"court", "urgent"},
		Points:   5,
		DueDate:  &due,
		TimeTracking: task.TimeTracking{
			EstimatedMinutes: 120,
		},
	}

	tests := []struct {
		name string
		cond task.Condition
		want bool
	}{
		{"equals text", task.Condition{Field: "label", Operator: task.OpEquals, Value: "filing"}, true},
		{"equals number from yaml int", task.Condition{Field: "points", Operator: task.OpEquals, Value: 5}, true},
		{"equals number from json float", task.Condition{Field: "points", Operator: task.OpEquals, Value: 5.0}, true},
		{"not equals", task.Condition{Field: "priority", Operator: task.OpNotEquals, Value: "low"}, true},
		{"contains tag", task.Condition{Field: "tags", Operator: task.OpContains, Value: "court"}, true},
		{"contains partial tag", task.Condition{Field: "tags", Operator: task.OpContains, Value: "cour"}, false},
		{"contains substring", task.Condition{Field: "title", Operator: task.OpContains, Value: "brief"}, true},
		{"greater than", task.Condition{Field: "estimatedMinutes", Operator: task.OpGreaterThan, Value: 60}, true},
		{"less than", task.Condition{Field: "points", Operator: task.OpLessThan, Value: "3"}, false},
		{"date before", task.Condition{Field: "dueDate", Operator: task.OpLessThan, Value: "2025-06-01"}, true},
		{"zero progress above negative", task.Condition{Field: "progress", Operator: task.OpGreaterThan, Value: -1}, true},
		{"unknown field", task.Condition{Field: "color", Operator: task.OpEquals, Value: ""}, false},
		{"unknown operator", task.Condition{Field: "label", Operator: "matches", Value: "filing"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Holds(tk, tt.cond); got != tt.want {
				t.Errorf("Holds(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}

	noDue := &task.Task{}
	if Holds(noDue, task.Condition{Field: "dueDate", Operator: task.OpGreaterThan, Value: "2000-01-01"}) {
		t.Error("unset due date should not compare greater")
	}
}

func TestMatchesConjunction(t *testing.T) {
	tk := &task.Task{Label: "filing", Priority: task.PriorityHigh}
	if !Matches(tk, nil) {
		t.Error("empty conditions should match")
	}
	conds := []task.Condition{
		{Field: "label", Operator: task.OpEquals, Value: "filing"},
		{Field: "priority", Operator: task.OpEquals, Value: "low"},
	}
	if Matches(tk, conds) {
		t.Error("one failing condition should fail the rule")
	}
}

func TestEvaluateRunsMatchingRules(t *testing.T) {
	offset := 3
	tk := &task.Task{
		ID:         "t1",
		TenantID:   "firm",
		Title:      "File complaint",
		Priority:   task.PriorityHigh,
		Status:     task.StatusDone,
		Label:      "filing",
		AssignedTo: "alice",
		CaseID:     "c1",
		ClientID:   "cl9",
		WorkflowRules: []task.WorkflowRule{
			{
				Name:       "serve after filing",
				Trigger:    task.Trigger{Type: task.TriggerCompletion},
				Conditions: []task.Condition{{Field: "label", Operator: task.OpEquals, Value: "filing"}},
				Actions: task.ActionList{
					task.CreateTaskAction{
						Title:         "Serve ${caseNumber}: ${caseTitle}",
						Description:   "Follow-up to ${taskTitle}",
						DueDateOffset: &offset,
					},
					task.AssignUserAction{UserID: "bob"},
					task.UpdateFieldAction{Field: "notes", Value: "served next"},
				},
				IsActive: true,
			},
			{
				Name:     "inactive",
				Trigger:  task.Trigger{Type: task.TriggerCompletion},
				Actions:  task.ActionList{task.AssignUserAction{UserID: "alice"}},
				IsActive: false,
			},
			{
				Name:     "other trigger",
				Trigger:  task.Trigger{Type: task.TriggerCreated},
				Actions:  task.ActionList{task.AssignUserAction{UserID: "alice"}},
				IsActive: true,
			},
		},
	}

	e, host, saved := setup(t, tk)
	res := e.Evaluate(context.Background(), saved, task.TriggerCompletion, "alice")

	if len(res.Matched) != 1 || res.Matched[0] != "serve after filing" {
		t.Errorf("matched = %v", res.Matched)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v", res.Errors)
	}
	if len(res.Created) != 1 {
		t.Fatalf("created = %d, want 1", len(res.Created))
	}

	c := res.Created[0]
	if c.Title != "Serve 2025-017: Acme v. Widget" || c.Description != "Follow-up to File complaint" {
		t.Errorf("interpolation: %q / %q", c.Title, c.Description)
	}
	if c.ParentTaskID != "t1" || c.TenantID != "firm" || c.CaseID != "c1" || c.ClientID != "cl9" {
		t.Errorf("inherited fields: %+v", c)
	}
	if c.Priority != task.PriorityMedium || c.AssignedTo != "alice" || c.Status != task.StatusTodo {
		t.Errorf("defaults: %+v", c)
	}
	if c.DueDate == nil || !c.DueDate.Equal(fixedNow.AddDate(0, 0, 3)) {
		t.Errorf("due date = %v", c.DueDate)
	}

	stored, _ := host.store.Get(context.Background(), "t1")
	if stored.AssignedTo != "bob" || stored.Notes != "served next" {
		t.Errorf("stored task = assignee %q notes %q", stored.AssignedTo, stored.Notes)
	}
	if saved.AssignedTo != "bob" || saved.Version != stored.Version {
		t.Error("evaluated task not refreshed in place")
	}
	if len(stored.History) != 2 {
		t.Errorf("history = %d entries, want 2", len(stored.History))
	}
}

func TestEvaluateContinuesAfterFailedAction(t *testing.T) {
	tk := &task.Task{
		ID:       "t1",
		TenantID: "firm",
		Title:    "Review",
		Status:   task.StatusDone,
		WorkflowRules: []task.WorkflowRule{{
			Name:    "mixed",
			Trigger: task.Trigger{Type: task.TriggerCompletion},
			Actions: task.ActionList{
				task.AssignUserAction{UserID: "mallory"},
				task.UpdateFieldAction{Field: "status", Value: "todo"},
				task.CreateTaskAction{Title: "  "},
				task.UpdateFieldAction{Field: "label", Value: "reviewed"},
			},
			IsActive: true,
		}},
	}

	e, host, saved := setup(t, tk)
	res := e.Evaluate(context.Background(), saved, task.TriggerCompletion, "alice")

	if len(res.Errors) != 3 {
		t.Errorf("errors = %v, want 3", res.Errors)
	}
	stored, _ := host.store.Get(context.Background(), "t1")
	if stored.Label != "reviewed" || stored.Status != task.StatusDone {
		t.Errorf("stored = label %q status %s", stored.Label, stored.Status)
	}
}

func TestEvaluateMissingCaseExpandsEmpty(t *testing.T) {
	tk := &task.Task{
		ID:       "t1",
		TenantID: "firm",
		Title:    "Intake",
		CaseID:   "gone",
		WorkflowRules: []task.WorkflowRule{{
			Name:     "follow up",
			Trigger:  task.Trigger{Type: task.TriggerStatusChange},
			Actions:  task.ActionList{task.CreateTaskAction{Title: "Call client [${caseNumber}]"}},
			IsActive: true,
		}},
	}

	e, _, saved := setup(t, tk)
	res := e.Evaluate(context.Background(), saved, task.TriggerStatusChange, "alice")
	if len(res.Created) != 1 || res.Created[0].Title != "Call client []" {
		t.Errorf("created = %+v, errors = %v", res.Created, res.Errors)
	}
}
