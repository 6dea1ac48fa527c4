//nolint:testpackage // Tests require internal access for thorough testing
package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/storage"
	"github.com/abatilo/taskflow/internal/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "tasks.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	saved, err := s.Save(ctx, &task.Task{
		ID: "a", TenantID: "firm", Title: "File brief", Status: task.StatusTodo,
		Priority: task.PriorityHigh, DueDate: &due, CreatedAt: due.Add(-48 * time.Hour),
		WorkflowRules: []task.WorkflowRule{{
			ID: "r1", Trigger: task.Trigger{Type: task.TriggerCompletion}, IsActive: true,
			Actions: task.ActionList{task.AssignUserAction{UserID: "u2"}},
		}},
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("Version = %d, want 1", saved.Version)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "File brief" || got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("Get = %+v, want title and due date preserved", got)
	}
	if len(got.WorkflowRules) != 1 || len(got.WorkflowRules[0].Actions) != 1 {
		t.Fatalf("WorkflowRules = %+v, want one rule with one action", got.WorkflowRules)
	}
	if _, ok := got.WorkflowRules[0].Actions[0].(task.AssignUserAction); !ok {
		t.Errorf("action = %T, want task.AssignUserAction", got.WorkflowRules[0].Actions[0])
	}

	if _, err = s.Get(ctx, "missing"); !flowerrors.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want NotFoundError", err)
	}
}

func TestOptimisticVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.Save(ctx, &task.Task{ID: "a", Title: "A", Status: task.StatusTodo}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	first, _ := s.Get(ctx, "a")
	second, _ := s.Get(ctx, "a")

	first.Title = "first writer"
	if _, err := s.Save(ctx, first); err != nil {
		t.Fatalf("first writer failed: %v", err)
	}

	second.Title = "second writer"
	_, err := s.Save(ctx, second)
	var conflict flowerrors.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second writer error = %v, want VersionConflictError", err)
	}
	if conflict.Expected != 1 || conflict.Actual != 2 {
		t.Errorf("conflict = %+v, want expected 1 actual 2", conflict)
	}

	if _, err = s.Save(ctx, &task.Task{ID: "a", Title: "dup"}); err == nil {
		t.Error("inserting an existing ID should fail")
	}
	if _, err = s.Save(ctx, &task.Task{ID: "ghost", Title: "ghost", Version: 4}); !flowerrors.IsNotFound(err) {
		t.Errorf("updating a missing task error = %v, want NotFoundError", err)
	}
}

func TestFindByIDsAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []*task.Task{
		{ID: "a", TenantID: "firm", Title: "A", Status: task.StatusTodo, Priority: task.PriorityLow, CreatedAt: base},
		{ID: "b", TenantID: "firm", Title: "B", Status: task.StatusDone, Priority: task.PriorityUrgent, CreatedAt: base.Add(time.Hour)},
		{ID: "c", TenantID: "other", Title: "C", Status: task.StatusTodo, Priority: task.PriorityMedium, CreatedAt: base},
	}
	for _, tk := range seed {
		if _, err := s.Save(ctx, tk); err != nil {
			t.Fatalf("Save(%s) failed: %v", tk.ID, err)
		}
	}

	found, err := s.FindByIDs(ctx, []string{"c", "nope", "a"})
	if err != nil {
		t.Fatalf("FindByIDs failed: %v", err)
	}
	if len(found) != 2 || found[0].ID != "c" || found[1].ID != "a" {
		t.Errorf("FindByIDs returned %d tasks in wrong order", len(found))
	}

	firm, err := s.List(ctx, storage.Filter{TenantID: "firm"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(firm) != 2 || firm[0].ID != "b" {
		t.Errorf("List(firm) first = %v, want urgent task b", firm)
	}

	todo, err := s.List(ctx, storage.Filter{Statuses: []task.Status{task.StatusTodo}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(todo) != 2 {
		t.Errorf("List(todo) length = %d, want 2", len(todo))
	}

	if err = s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err = s.Delete(ctx, "a"); !flowerrors.IsNotFound(err) {
		t.Errorf("second Delete error = %v, want NotFoundError", err)
	}
}
