package task

import (
	"slices"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCanceled   Status = "canceled"
)

// Priority represents the importance level of a task.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// PriorityOrder returns the sort order for a priority (lower = higher priority).
func PriorityOrder(p Priority) int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Subtask is a checkable step inside a task. Subtask completion drives automatic progress.
type Subtask struct {
	Title       string     `yaml:"title" json:"title"`
	Completed   bool       `yaml:"completed" json:"completed"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completedAt,omitempty"`
	AutoReset   bool       `yaml:"auto_reset,omitempty" json:"autoReset,omitempty"`
}

// ChecklistItem is one line of a checklist group.
type ChecklistItem struct {
	Text      string `yaml:"text" json:"text"`
	Completed bool   `yaml:"completed" json:"completed"`
}

// Checklist is a named group of checklist items.
type Checklist struct {
	Title string          `yaml:"title" json:"title"`
	Items []ChecklistItem `yaml:"items,omitempty" json:"items,omitempty"`
}

// Reminder is an opaque reminder definition; delivery happens outside this module.
type Reminder struct {
	Type          string `yaml:"type" json:"type"`
	BeforeMinutes int    `yaml:"before_minutes" json:"beforeMinutes"`
}

// Session is one contiguous interval of tracked work time.
// An open session has a nil EndedAt; at most one may be open per task.
type Session struct {
	ID         string     `yaml:"id" json:"id"`
	StartedAt  time.Time  `yaml:"started_at" json:"startedAt"`
	EndedAt    *time.Time `yaml:"ended_at,omitempty" json:"endedAt,omitempty"`
	Duration   int        `yaml:"duration" json:"duration"`
	UserID     string     `yaml:"user_id" json:"userId"`
	Notes      string     `yaml:"notes,omitempty" json:"notes,omitempty"`
	IsBillable bool       `yaml:"is_billable" json:"isBillable"`
	Manual     bool       `yaml:"manual,omitempty" json:"manual,omitempty"`
}

// Closed reports whether the session has ended.
func (s Session) Closed() bool {
	return s.EndedAt != nil
}

// TimeTracking holds the timer state and the session log of a task.
// ActualMinutes is derived from Sessions and never edited directly.
type TimeTracking struct {
	EstimatedMinutes    int        `yaml:"estimated_minutes" json:"estimatedMinutes"`
	ActualMinutes       int        `yaml:"actual_minutes" json:"actualMinutes"`
	IsTracking          bool       `yaml:"is_tracking" json:"isTracking"`
	CurrentSessionStart *time.Time `yaml:"current_session_start,omitempty" json:"currentSessionStart,omitempty"`
	Sessions            []Session  `yaml:"sessions,omitempty" json:"sessions,omitempty"`
}

// Budget holds the hourly rate and the cost figures derived from it.
type Budget struct {
	HourlyRate      float64 `yaml:"hourly_rate" json:"hourlyRate"`
	EstimatedCost   float64 `yaml:"estimated_cost" json:"estimatedCost"`
	ActualCost      float64 `yaml:"actual_cost" json:"actualCost"`
	Variance        float64 `yaml:"variance" json:"variance"`
	VariancePercent float64 `yaml:"variance_percent" json:"variancePercent"`
}

// Change records one field transition inside a history entry.
type Change struct {
	Field string `yaml:"field" json:"field"`
	From  string `yaml:"from,omitempty" json:"from,omitempty"`
	To    string `yaml:"to,omitempty" json:"to,omitempty"`
}

// HistoryEntry is one line of the append-only audit log.
type HistoryEntry struct {
	ID        string    `yaml:"id" json:"id"`
	Action    string    `yaml:"action" json:"action"`
	UserID    string    `yaml:"user_id" json:"userId"`
	Changes   []Change  `yaml:"changes,omitempty" json:"changes,omitempty"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
}

// Task represents a tracked work item.
type Task struct {
	ID          string   `yaml:"id" json:"id"`
	TenantID    string   `yaml:"tenant_id" json:"tenantId"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"-" json:"description,omitempty"` // Stored as markdown body by the file store
	Priority    Priority `yaml:"priority" json:"priority"`
	Status      Status   `yaml:"status" json:"status"`
	Label       string   `yaml:"label,omitempty" json:"label,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Notes       string   `yaml:"notes,omitempty" json:"notes,omitempty"`
	Points      int      `yaml:"points,omitempty" json:"points,omitempty"`

	DueDate   *time.Time `yaml:"due_date,omitempty" json:"dueDate,omitempty"`
	DueTime   string     `yaml:"due_time,omitempty" json:"dueTime,omitempty"`
	StartDate *time.Time `yaml:"start_date,omitempty" json:"startDate,omitempty"`

	AssignedTo   string `yaml:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	CreatedBy    string `yaml:"created_by" json:"createdBy"`
	ParentTaskID string `yaml:"parent_task_id,omitempty" json:"parentTaskId,omitempty"`
	CaseID       string `yaml:"case_id,omitempty" json:"caseId,omitempty"`
	ClientID     string `yaml:"client_id,omitempty" json:"clientId,omitempty"`

	Subtasks   []Subtask   `yaml:"subtasks,omitempty" json:"subtasks,omitempty"`
	Checklists []Checklist `yaml:"checklists,omitempty" json:"checklists,omitempty"`

	BlockedBy []string `yaml:"blocked_by,omitempty" json:"blockedBy,omitempty"`
	Blocks    []string `yaml:"blocks,omitempty" json:"blocks,omitempty"`

	TimeTracking   TimeTracking `yaml:"time_tracking" json:"timeTracking"`
	Budget         Budget       `yaml:"budget" json:"budget"`
	Progress       int          `yaml:"progress" json:"progress"`
	ManualProgress bool         `yaml:"manual_progress" json:"manualProgress"`

	Recurring     *Recurring     `yaml:"recurring,omitempty" json:"recurring,omitempty"`
	Reminders     []Reminder     `yaml:"reminders,omitempty" json:"reminders,omitempty"`
	WorkflowRules []WorkflowRule `yaml:"workflow_rules,omitempty" json:"workflowRules,omitempty"`
	History       []HistoryEntry `yaml:"history,omitempty" json:"history,omitempty"`

	CompletedAt    *time.Time `yaml:"completed_at,omitempty" json:"completedAt,omitempty"`
	CompletedBy    string     `yaml:"completed_by,omitempty" json:"completedBy,omitempty"`
	CompletionNote string     `yaml:"completion_note,omitempty" json:"completionNote,omitempty"`

	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updatedAt"`

	// Version is the optimistic-concurrency version this copy was read at. Zero means never saved.
	Version int64 `yaml:"version" json:"version"`
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusPending, StatusInProgress, StatusDone, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsValidPriority checks if a priority string is valid.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no automation moves a task out of this status.
func IsTerminal(s Status) bool {
	return s == StatusDone || s == StatusCanceled
}

// Record appends an audit entry. History is never rewritten.
func (t *Task) Record(id, action, userID string, at time.Time, changes ...Change) {
	t.History = append(t.History, HistoryEntry{
		ID:        id,
		Action:    action,
		UserID:    userID,
		Changes:   changes,
		Timestamp: at,
	})
}

// IsBlockedBy reports whether the task waits on id.
func (t *Task) IsBlockedBy(id string) bool {
	return slices.Contains(t.BlockedBy, id)
}

// OpenSession returns the index of the running session, or -1.
func (t *Task) OpenSession() int {
	for i, s := range t.TimeTracking.Sessions {
		if !s.Closed() {
			return i
		}
	}
	return -1
}

// CompletedSubtasks returns the number of completed subtasks.
func (t *Task) CompletedSubtasks() int {
	n := 0
	for _, s := range t.Subtasks {
		if s.Completed {
			n++
		}
	}
	return n
}

// addUnique appends id to ids if absent.
func addUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

// removeID drops every occurrence of id from ids.
func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(s string) bool { return s == id })
}

// AddBlocker adds the blocked-by half of an edge.
func (t *Task) AddBlocker(id string) { t.BlockedBy = addUnique(t.BlockedBy, id) }

// RemoveBlocker removes the blocked-by half of an edge.
func (t *Task) RemoveBlocker(id string) { t.BlockedBy = removeID(t.BlockedBy, id) }

// AddBlocked adds the blocks half of an edge.
func (t *Task) AddBlocked(id string) { t.Blocks = addUnique(t.Blocks, id) }

// RemoveBlocked removes the blocks half of an edge.
func (t *Task) RemoveBlocked(id string) { t.Blocks = removeID(t.Blocks, id) }
