//nolint:testpackage // Tests require internal access for thorough testing
package output

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abatilo/taskflow/internal/deps"
	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
	"github.com/abatilo/taskflow/internal/timetrack"
)

var created = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func sampleTask(id, title string, status task.Status, blockedBy ...string) *task.Task {
	return &task.Task{
		ID:        id,
		Title:     title,
		Status:    status,
		Priority:  task.PriorityHigh,
		CreatedAt: created,
		CreatedBy: "alice",
		BlockedBy: blockedBy,
	}
}

func TestHumanTaskList(t *testing.T) {
	f := NewHumanFormatter()

	if got := f.FormatTaskList(nil); got != "No tasks found.\n" {
		t.Errorf("empty list = %q", got)
	}

	a := sampleTask("a1", "Research", task.StatusDone)
	b := sampleTask("b2", "Draft", task.StatusTodo, "a1")
	b.AssignedTo = "bob"

	got := f.FormatTaskList([]*task.Task{a, b})
	want := "[X] P1 [a1] Research\n[ ] P1 [b2] Draft @bob [blocked by: a1]\n"
	if got != want {
		t.Errorf("FormatTaskList() =\n%s\nwant\n%s", got, want)
	}
}

func TestHumanStatusIcons(t *testing.T) {
	f := NewHumanFormatter()
	tests := []struct {
		status task.Status
		want   string
	}{
		{task.StatusTodo, "[ ]"},
		{task.StatusPending, "[~]"},
		{task.StatusInProgress, "[*]"},
		{task.StatusDone, "[X]"},
		{task.StatusCanceled, "[-]"},
		{"bogus", "[?]"},
	}
	for _, tt := range tests {
		if got := f.statusIcon(tt.status); got != tt.want {
			t.Errorf("statusIcon(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestHumanTask(t *testing.T) {
	tk := sampleTask("a1", "Research", task.StatusInProgress, "z9")
	tk.Progress = 50
	tk.Tags = []string{"court"}
	tk.Subtasks = []task.Subtask{{Title: "read", Completed: true}, {Title: "write"}}
	tk.TimeTracking = task.TimeTracking{EstimatedMinutes: 120, ActualMinutes: 45}

	got := NewHumanFormatter().FormatTask(tk)
	for _, want := range []string{
		"[a1] Research\n",
		"Progress: 50%\n",
		"Labels:   court\n",
		"Blocked:  z9\n",
		"Time:     45m of 2h00m\n",
		"0. [x] read\n",
		"1. [ ] write\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatTask() missing %q in\n%s", want, got)
		}
	}
}

func TestHumanGraph(t *testing.T) {
	a := sampleTask("a", "Root", task.StatusDone)
	b := sampleTask("b", "Left", task.StatusTodo, "a")
	c := sampleTask("c", "Right", task.StatusTodo, "a")
	d := sampleTask("d", "Leaf", task.StatusTodo, "b")

	nodes := []deps.TreeNode{{
		Task: a,
		Children: []deps.TreeNode{
			{Task: b, Children: []deps.TreeNode{{Task: d}}},
			{Task: c},
		},
	}}

	got := NewHumanFormatter().FormatGraph(nodes)
	want := "[X] [a] Root\n" +
		"├── [ ] [b] Left\n" +
		"│   └── [ ] [d] Leaf\n" +
		"└── [ ] [c] Right\n"
	if got != want {
		t.Errorf("FormatGraph() =\n%s\nwant\n%s", got, want)
	}
}

func TestHumanSummary(t *testing.T) {
	s := timetrack.Summary{
		TaskID:           "a1",
		EstimatedMinutes: 120,
		ActualMinutes:    45,
		RemainingMinutes: 75,
		PercentComplete:  38,
		HourlyRate:       100,
		EstimatedCost:    200,
		ActualCost:       75,
		Variance:         -125,
		VariancePercent:  -62.5,
	}
	got := NewHumanFormatter().FormatSummary(s)
	for _, want := range []string{"Actual:    45m (38%)", "Cost:      75.00 of 200.00 (variance -125.00, -62.5%)"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatSummary() missing %q in\n%s", want, got)
		}
	}
}

func TestHumanCompletion(t *testing.T) {
	due := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	done := sampleTask("a1", "Weekly update", task.StatusDone)
	next := sampleTask("b2", "Weekly update", task.StatusTodo)
	next.DueDate = &due
	next.AssignedTo = "bob"

	got := NewHumanFormatter().FormatCompletion(done, next)
	want := "Completed [a1] Weekly update\nNext occurrence [b2] due 2025-03-17 for bob\n"
	if got != want {
		t.Errorf("FormatCompletion() = %q, want %q", got, want)
	}
}

func TestJSONErrorIncludesBlockers(t *testing.T) {
	err := flowerrors.BlockedError{
		ID:       "t1",
		Blockers: []flowerrors.BlockingTask{{ID: "t2", Title: "Gather exhibits", Status: "todo"}},
	}

	var decoded errorJSON
	if jsonErr := json.Unmarshal([]byte(NewJSONFormatter().FormatError(err)), &decoded); jsonErr != nil {
		t.Fatal(jsonErr)
	}
	if len(decoded.Blockers) != 1 || decoded.Blockers[0].ID != "t2" {
		t.Errorf("blockers = %+v", decoded.Blockers)
	}

	plain := NewJSONFormatter().FormatError(errors.New("boom"))
	if strings.Contains(plain, "blockers") {
		t.Errorf("plain error = %s", plain)
	}
}

func TestJSONTaskList(t *testing.T) {
	due := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	tk := sampleTask("a1", "Research", task.StatusTodo, "z9")
	tk.DueDate = &due

	var decoded []map[string]any
	if err := json.Unmarshal([]byte(NewJSONFormatter().FormatTaskList([]*task.Task{tk})), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 1 {
		t.Fatalf("decoded = %v", decoded)
	}
	row := decoded[0]
	if row["id"] != "a1" || row["status"] != "todo" || row["dueDate"] != "2025-03-17" {
		t.Errorf("row = %v", row)
	}
}

func TestJSONBlockersEmpty(t *testing.T) {
	got := NewJSONFormatter().FormatBlockers("a1", nil)
	if !strings.Contains(got, `"canStart": true`) || !strings.Contains(got, `"blockers": []`) {
		t.Errorf("FormatBlockers() = %s", got)
	}
}
