//nolint:testpackage // Tests require internal access for thorough testing
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
)

func TestParseMarkdown(t *testing.T) {
	content := []byte(`---
id: abc123
tenant_id: firm-1
title: Test task
status: todo
priority: high
created_at: 2024-01-15T10:30:00Z
blocked_by:
  - def456
  - ghi789
version: 3
---

This is the description.
`)

	tk, err := ParseMarkdown(content)
	if err != nil {
		t.Fatalf("ParseMarkdown failed: %v", err)
	}

	if tk.ID != "abc123" {
		t.Errorf("ID = %q, want %q", tk.ID, "abc123")
	}
	if tk.TenantID != "firm-1" {
		t.Errorf("TenantID = %q, want %q", tk.TenantID, "firm-1")
	}
	if tk.Status != task.StatusTodo {
		t.Errorf("Status = %q, want %q", tk.Status, task.StatusTodo)
	}
	if tk.Priority != task.PriorityHigh {
		t.Errorf("Priority = %q, want %q", tk.Priority, task.PriorityHigh)
	}
	if tk.Description != "This is the description." {
		t.Errorf("Description = %q, want %q", tk.Description, "This is the description.")
	}
	if len(tk.BlockedBy) != 2 || tk.BlockedBy[0] != "def456" {
		t.Errorf("BlockedBy = %v, want [def456 ghi789]", tk.BlockedBy)
	}
	if tk.Version != 3 {
		t.Errorf("Version = %d, want 3", tk.Version)
	}
}

func TestParseMarkdownErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no frontmatter", "just text"},
		{"unclosed frontmatter", "---\nid: a\n"},
		{"missing id", "---\ntitle: x\n---\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMarkdown([]byte(tt.content)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestMarkdownRoundTripsFreeText(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	end := now.Add(30 * time.Minute)

	tests := []struct {
		name   string
		mutate func(*task.Task)
	}{
		{"delimiter line in notes", func(tk *task.Task) { tk.Notes = "first section\n---\nsecond section" }},
		{"delimiter line in completion note", func(tk *task.Task) { tk.CompletionNote = "filed\n---\nserved" }},
		{"delimiter line in session note", func(tk *task.Task) {
			tk.TimeTracking.Sessions = []task.Session{
				{ID: "s1", StartedAt: now, EndedAt: &end, Duration: 30, UserID: "u1", Notes: "call\n---\nemail"},
			}
			tk.TimeTracking.ActualMinutes = 30
		}},
		{"delimiter line in history", func(tk *task.Task) {
			tk.Record("h1", "updated", "u1", now, task.Change{Field: "notes", From: "a\n---", To: "---\nb"})
		}},
		{"leading delimiter in description", func(tk *task.Task) { tk.Description = "---\nintro\n---\nbody" }},
		{"CRLF description", func(tk *task.Task) { tk.Description = "line one\r\nline two" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := &task.Task{
				ID:        "abc123",
				Title:     "Free text",
				Status:    task.StatusTodo,
				Priority:  task.PriorityMedium,
				CreatedAt: now,
				BlockedBy: []string{"dep1"},
				Version:   4,
			}
			tt.mutate(original)

			data, err := SerializeMarkdown(original)
			if err != nil {
				t.Fatalf("SerializeMarkdown failed: %v", err)
			}
			parsed, err := ParseMarkdown(data)
			if err != nil {
				t.Fatalf("ParseMarkdown failed: %v", err)
			}

			if parsed.Notes != original.Notes {
				t.Errorf("Notes = %q, want %q", parsed.Notes, original.Notes)
			}
			if parsed.CompletionNote != original.CompletionNote {
				t.Errorf("CompletionNote = %q, want %q", parsed.CompletionNote, original.CompletionNote)
			}
			if parsed.Description != original.Description {
				t.Errorf("Description = %q, want %q", parsed.Description, original.Description)
			}
			if len(parsed.BlockedBy) != 1 || parsed.BlockedBy[0] != "dep1" {
				t.Errorf("BlockedBy = %v, want [dep1]", parsed.BlockedBy)
			}
			if parsed.Version != 4 {
				t.Errorf("Version = %d, want 4", parsed.Version)
			}
			if got, want := len(parsed.TimeTracking.Sessions), len(original.TimeTracking.Sessions); got != want {
				t.Fatalf("len(Sessions) = %d, want %d", got, want)
			}
			for i, s := range original.TimeTracking.Sessions {
				if parsed.TimeTracking.Sessions[i].Notes != s.Notes {
					t.Errorf("Sessions[%d].Notes = %q, want %q", i, parsed.TimeTracking.Sessions[i].Notes, s.Notes)
				}
			}
			if got, want := len(parsed.History), len(original.History); got != want {
				t.Fatalf("len(History) = %d, want %d", got, want)
			}
			for i, h := range original.History {
				if parsed.History[i].Changes[0].To != h.Changes[0].To || parsed.History[i].Changes[0].From != h.Changes[0].From {
					t.Errorf("History[%d].Changes = %+v, want %+v", i, parsed.History[i].Changes, h.Changes)
				}
			}
		})
	}
}

func TestParseMarkdownCRLFFile(t *testing.T) {
	content := "---\r\nid: abc123\r\ntitle: Windows\r\nversion: 2\r\n---\r\n\r\nBody text\r\n"

	tk, err := ParseMarkdown([]byte(content))
	if err != nil {
		t.Fatalf("ParseMarkdown failed: %v", err)
	}
	if tk.ID != "abc123" || tk.Title != "Windows" || tk.Version != 2 {
		t.Errorf("parsed = %+v", tk)
	}
	if tk.Description != "Body text" {
		t.Errorf("Description = %q, want %q", tk.Description, "Body text")
	}
}

func TestFileStoreSavesAgainAfterDelimiterInNotes(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), ".taskflow"))
	if err := store.Init(false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	created, err := store.Save(ctx, &task.Task{
		ID:        "p2",
		Title:     "Notes with a rule",
		Status:    task.StatusTodo,
		Priority:  task.PriorityLow,
		Notes:     "a\n---\nb",
		BlockedBy: []string{"dep1"},
	})
	if err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	loaded, err := store.Get(ctx, "p2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Version != created.Version || len(loaded.BlockedBy) != 1 || loaded.Notes != "a\n---\nb" {
		t.Fatalf("loaded version=%d blockedBy=%v notes=%q", loaded.Version, loaded.BlockedBy, loaded.Notes)
	}

	loaded.Title = "Renamed"
	if _, err := store.Save(ctx, loaded); err != nil {
		t.Errorf("second Save failed: %v", err)
	}
}

func TestSerializeMarkdownKeepsRulesAndSessions(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	end := now.Add(45 * time.Minute)
	offset := 2
	original := &task.Task{
		ID:          "abc123",
		Title:       "Test task",
		Status:      task.StatusDone,
		Priority:    task.PriorityHigh,
		CreatedAt:   now,
		Description: "Description here",
		TimeTracking: task.TimeTracking{
			EstimatedMinutes: 120,
			ActualMinutes:    45,
			Sessions: []task.Session{
				{ID: "s1", StartedAt: now, EndedAt: &end, Duration: 45, UserID: "u1", IsBillable: true},
			},
		},
		WorkflowRules: []task.WorkflowRule{{
			ID:      "r1",
			Name:    "follow up",
			Trigger: task.Trigger{Type: task.TriggerCompletion},
			Conditions: []task.Condition{
				{Field: "priority", Operator: task.OpEquals, Value: "high"},
			},
			Actions: task.ActionList{
				task.CreateTaskAction{Title: "Review ${taskTitle}", DueDateOffset: &offset},
				task.AssignUserAction{UserID: "u2"},
				task.UpdateFieldAction{Field: "label", Value: "closed"},
			},
			IsActive: true,
		}},
	}

	data, err := SerializeMarkdown(original)
	if err != nil {
		t.Fatalf("SerializeMarkdown failed: %v", err)
	}

	parsed, err := ParseMarkdown(data)
	if err != nil {
		t.Fatalf("ParseMarkdown failed: %v", err)
	}

	if parsed.Description != original.Description {
		t.Errorf("Description = %q, want %q", parsed.Description, original.Description)
	}
	if len(parsed.TimeTracking.Sessions) != 1 || parsed.TimeTracking.Sessions[0].EndedAt == nil {
		t.Fatalf("Sessions = %+v, want one closed session", parsed.TimeTracking.Sessions)
	}
	if len(parsed.WorkflowRules) != 1 {
		t.Fatalf("WorkflowRules length = %d, want 1", len(parsed.WorkflowRules))
	}
	actions := parsed.WorkflowRules[0].Actions
	if len(actions) != 3 {
		t.Fatalf("Actions length = %d, want 3", len(actions))
	}
	create, ok := actions[0].(task.CreateTaskAction)
	if !ok {
		t.Fatalf("Actions[0] = %T, want task.CreateTaskAction", actions[0])
	}
	if create.DueDateOffset == nil || *create.DueDateOffset != 2 {
		t.Errorf("DueDateOffset = %v, want 2", create.DueDateOffset)
	}
	if assign, ok := actions[1].(task.AssignUserAction); !ok || assign.UserID != "u2" {
		t.Errorf("Actions[1] = %#v, want AssignUserAction{u2}", actions[1])
	}
	if _, ok := actions[2].(task.UpdateFieldAction); !ok {
		t.Errorf("Actions[2] = %T, want task.UpdateFieldAction", actions[2])
	}
}

// storeContract exercises the TaskStore semantics every implementation shares.
func storeContract(t *testing.T, store TaskStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := store.Save(ctx, &task.Task{
		ID: "a", TenantID: "firm", Title: "A", Status: task.StatusTodo,
		Priority: task.PriorityLow, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("inserted version = %d, want 1", created.Version)
	}

	if _, err = store.Save(ctx, &task.Task{ID: "a", Title: "dup"}); err == nil {
		t.Error("inserting an existing ID should fail")
	}

	if _, err = store.Save(ctx, &task.Task{
		ID: "b", TenantID: "firm", Title: "B", Status: task.StatusDone,
		Priority: task.PriorityUrgent, CreatedAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("insert b failed: %v", err)
	}

	loaded, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	loaded.Title = "A2"
	updated, err := store.Save(ctx, loaded)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("updated version = %d, want 2", updated.Version)
	}

	// Saving the stale copy again must conflict.
	_, err = store.Save(ctx, loaded)
	var conflict flowerrors.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("stale save error = %v, want VersionConflictError", err)
	}
	if conflict.Actual != 2 {
		t.Errorf("conflict.Actual = %d, want 2", conflict.Actual)
	}

	found, err := store.FindByIDs(ctx, []string{"b", "missing", "a"})
	if err != nil {
		t.Fatalf("FindByIDs failed: %v", err)
	}
	if len(found) != 2 || found[0].ID != "b" || found[1].ID != "a" {
		t.Errorf("FindByIDs = %v, want [b a]", ids(found))
	}

	all, err := store.List(ctx, Filter{TenantID: "firm"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "b" {
		t.Errorf("List = %v, want urgent task b first", ids(all))
	}

	done, err := store.List(ctx, Filter{Statuses: []task.Status{task.StatusDone}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(done) != 1 || done[0].ID != "b" {
		t.Errorf("List(done) = %v, want [b]", ids(done))
	}

	if err = store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err = store.Get(ctx, "a"); !flowerrors.IsNotFound(err) {
		t.Errorf("Get after delete error = %v, want NotFoundError", err)
	}
	if err = store.Delete(ctx, "a"); !flowerrors.IsNotFound(err) {
		t.Errorf("second Delete error = %v, want NotFoundError", err)
	}
}

func ids(tasks []*task.Task) []string {
	out := make([]string, len(tasks))
	for i, tk := range tasks {
		out[i] = tk.ID
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	original := &task.Task{ID: "a", Title: "A", Tags: []string{"x"}}
	if _, err := store.Save(ctx, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	original.Tags[0] = "mutated"

	loaded, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Tags[0] != "x" {
		t.Errorf("stored tags changed through caller slice: %v", loaded.Tags)
	}
}

func TestFileStore(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), ".taskflow"))

	if store.IsInitialized() {
		t.Error("Store should not be initialized yet")
	}
	if _, err := store.Get(context.Background(), "a"); err == nil {
		t.Error("Get on an uninitialized store should fail")
	}
	if err := store.Init(false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.Init(false); err == nil {
		t.Error("second Init without force should fail")
	}

	storeContract(t, store)
}

func TestFilter(t *testing.T) {
	tk := &task.Task{TenantID: "firm", ParentTaskID: "p", Status: task.StatusTodo}
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter matches", Filter{}, true},
		{"tenant matches", Filter{TenantID: "firm"}, true},
		{"tenant mismatch", Filter{TenantID: "other"}, false},
		{"parent matches", Filter{ParentID: "p"}, true},
		{"status matches", Filter{Statuses: []task.Status{task.StatusTodo, task.StatusDone}}, true},
		{"status mismatch", Filter{Statuses: []task.Status{task.StatusDone}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tk); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple path", "/Users/abatilo/myproject", "Users-abatilo-myproject"},
		{"path with spaces", "/Users/john doe/my project", "Users-john-doe-my-project"},
		{"path with special chars", "/home/user/my.project-v2", "home-user-my-project-v2"},
		{"root path", "/", ""},
		{"trailing slash", "/Users/abatilo/project/", "Users-abatilo-project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePath(tt.input); got != tt.want {
				t.Errorf("SanitizePath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve symlinks: %v", err)
	}

	child := filepath.Join(tmpDir, "repo", "child")
	if err = os.MkdirAll(child, 0o755); err != nil {
		t.Fatalf("Failed to create directories: %v", err)
	}

	t.Run("finds .git in parent directory", func(t *testing.T) {
		repo := filepath.Join(tmpDir, "repo")
		gitDir := filepath.Join(repo, ".git")
		if err := os.Mkdir(gitDir, 0o755); err != nil { //nolint:govet // Intentional shadow in subtest
			t.Fatalf("Failed to create .git: %v", err)
		}
		defer os.RemoveAll(gitDir)

		t.Chdir(child)

		root, err := FindProjectRoot() //nolint:govet // Intentional shadow in subtest
		if err != nil {
			t.Fatalf("FindProjectRoot() error = %v", err)
		}
		if root != repo {
			t.Errorf("FindProjectRoot() = %q, want %q", root, repo)
		}
	})

	t.Run("returns error when no .git found", func(t *testing.T) {
		t.Chdir(child)

		_, err := FindProjectRoot() //nolint:govet // Intentional shadow in subtest
		var notInRepo NotInRepoError
		if !errors.As(err, &notInRepo) {
			t.Errorf("FindProjectRoot() error = %v, want NotInRepoError", err)
		}
	})
}
