package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/abatilo/taskflow/internal/deps"
	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
	"github.com/abatilo/taskflow/internal/timetrack"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// marshalJSON marshals a value to indented JSON with a trailing newline.
func marshalJSON(v any) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data) + "\n"
}

// NewJSONFormatter creates a new JSONFormatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// taskLineJSON is the compact representation used in lists.
type taskLineJSON struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	AssignedTo string   `json:"assignedTo,omitempty"`
	DueDate    *string  `json:"dueDate,omitempty"`
	Progress   int      `json:"progress"`
	BlockedBy  []string `json:"blockedBy,omitempty"`
	CreatedAt  string   `json:"createdAt"`
}

func toTaskLineJSON(t *task.Task) taskLineJSON {
	tj := taskLineJSON{
		ID:         t.ID,
		Title:      t.Title,
		Status:     string(t.Status),
		Priority:   string(t.Priority),
		AssignedTo: t.AssignedTo,
		Progress:   t.Progress,
		BlockedBy:  t.BlockedBy,
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
	}
	if t.DueDate != nil {
		s := t.DueDate.Format(time.DateOnly)
		tj.DueDate = &s
	}
	return tj
}

// FormatTask formats a single task as JSON, with every field.
func (f *JSONFormatter) FormatTask(t *task.Task) string {
	return marshalJSON(t)
}

// FormatTaskList formats a list of tasks as JSON.
func (f *JSONFormatter) FormatTaskList(tasks []*task.Task) string {
	jsonTasks := make([]taskLineJSON, len(tasks))
	for i, t := range tasks {
		jsonTasks[i] = toTaskLineJSON(t)
	}
	return marshalJSON(jsonTasks)
}

// errorJSON is the JSON representation of an error.
type errorJSON struct {
	Error    string                    `json:"error"`
	Blockers []flowerrors.BlockingTask `json:"blockers,omitempty"`
}

// FormatError formats an error as JSON. Blocked transitions list their blockers.
func (f *JSONFormatter) FormatError(err error) string {
	out := errorJSON{Error: err.Error()}
	var blocked flowerrors.BlockedError
	if errors.As(err, &blocked) {
		out.Blockers = blocked.Blockers
	}
	return marshalJSON(out)
}

// messageJSON is the JSON representation of a message.
type messageJSON struct {
	Message string `json:"message"`
}

// FormatMessage formats a simple message as JSON.
func (f *JSONFormatter) FormatMessage(msg string) string {
	return marshalJSON(messageJSON{Message: msg})
}

// graphNodeJSON is the JSON representation of a graph node.
type graphNodeJSON struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Status   string          `json:"status"`
	Priority string          `json:"priority"`
	Children []graphNodeJSON `json:"children,omitempty"`
}

func toGraphNodeJSON(node deps.TreeNode) graphNodeJSON {
	children := make([]graphNodeJSON, len(node.Children))
	for i, c := range node.Children {
		children[i] = toGraphNodeJSON(c)
	}
	return graphNodeJSON{
		ID:       node.Task.ID,
		Title:    node.Task.Title,
		Status:   string(node.Task.Status),
		Priority: string(node.Task.Priority),
		Children: children,
	}
}

// FormatGraph formats a dependency graph as JSON.
func (f *JSONFormatter) FormatGraph(nodes []deps.TreeNode) string {
	jsonNodes := make([]graphNodeJSON, len(nodes))
	for i, n := range nodes {
		jsonNodes[i] = toGraphNodeJSON(n)
	}
	return marshalJSON(jsonNodes)
}

type blockersJSON struct {
	ID       string                    `json:"id"`
	CanStart bool                      `json:"canStart"`
	Blockers []flowerrors.BlockingTask `json:"blockers"`
}

// FormatBlockers formats the tasks blocking id as JSON.
func (f *JSONFormatter) FormatBlockers(id string, blockers []flowerrors.BlockingTask) string {
	if blockers == nil {
		blockers = []flowerrors.BlockingTask{}
	}
	return marshalJSON(blockersJSON{ID: id, CanStart: len(blockers) == 0, Blockers: blockers})
}

type completionJSON struct {
	Task     *task.Task `json:"task"`
	NextTask *task.Task `json:"nextTask,omitempty"`
}

// FormatCompletion formats a completed task and its next occurrence as JSON.
func (f *JSONFormatter) FormatCompletion(done, next *task.Task) string {
	return marshalJSON(completionJSON{Task: done, NextTask: next})
}

type timeTrackingJSON struct {
	ID           string            `json:"id"`
	TimeTracking task.TimeTracking `json:"timeTracking"`
}

// FormatTimeTracking formats the time tracking state of a task as JSON.
func (f *JSONFormatter) FormatTimeTracking(id string, tt task.TimeTracking) string {
	return marshalJSON(timeTrackingJSON{ID: id, TimeTracking: tt})
}

// FormatSummary formats a time and budget summary as JSON.
func (f *JSONFormatter) FormatSummary(s timetrack.Summary) string {
	return marshalJSON(s)
}
