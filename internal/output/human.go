package output

import (
	"fmt"
	"strings"

	"github.com/abatilo/taskflow/internal/deps"
	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
	"github.com/abatilo/taskflow/internal/timetrack"
)

const timeLayout = "2006-01-02 15:04"

// HumanFormatter formats output for human-readable terminal display.
type HumanFormatter struct{}

// NewHumanFormatter creates a new HumanFormatter.
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{}
}

// FormatTask formats a single task for display.
func (f *HumanFormatter) FormatTask(t *task.Task) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[%s] %s\n", t.ID, t.Title)
	fmt.Fprintf(&sb, "  Status:   %s\n", t.Status)
	fmt.Fprintf(&sb, "  Priority: %s\n", t.Priority)
	fmt.Fprintf(&sb, "  Progress: %d%%%s\n", t.Progress, manualMark(t.ManualProgress))
	fmt.Fprintf(&sb, "  Created:  %s by %s\n", t.CreatedAt.Format(timeLayout), t.CreatedBy)

	if t.AssignedTo != "" {
		fmt.Fprintf(&sb, "  Assignee: %s\n", t.AssignedTo)
	}
	if t.DueDate != nil {
		fmt.Fprintf(&sb, "  Due:      %s %s\n", t.DueDate.Format("2006-01-02"), t.DueTime)
	}
	if t.CaseID != "" {
		fmt.Fprintf(&sb, "  Case:     %s\n", t.CaseID)
	}
	if t.Label != "" || len(t.Tags) > 0 {
		fmt.Fprintf(&sb, "  Labels:   %s\n", strings.TrimSpace(strings.Join(append([]string{t.Label}, t.Tags...), " ")))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(&sb, "  Done:     %s by %s\n", t.CompletedAt.Format(timeLayout), t.CompletedBy)
	}
	if t.CompletionNote != "" {
		fmt.Fprintf(&sb, "  Note:     %s\n", t.CompletionNote)
	}
	if len(t.BlockedBy) > 0 {
		fmt.Fprintf(&sb, "  Blocked:  %s\n", strings.Join(t.BlockedBy, ", "))
	}
	if len(t.Blocks) > 0 {
		fmt.Fprintf(&sb, "  Blocks:   %s\n", strings.Join(t.Blocks, ", "))
	}
	if tt := t.TimeTracking; tt.EstimatedMinutes > 0 || tt.ActualMinutes > 0 || tt.IsTracking {
		fmt.Fprintf(&sb, "  Time:     %s of %s%s\n",
			formatMinutes(tt.ActualMinutes), formatMinutes(tt.EstimatedMinutes), trackingMark(tt.IsTracking))
	}
	if r := t.Recurring; r.Active() {
		fmt.Fprintf(&sb, "  Repeats:  %s every %d (%d done)\n", r.Frequency, max(r.Interval, 1), r.OccurrencesCompleted)
	}
	for _, rule := range t.WorkflowRules {
		fmt.Fprintf(&sb, "  Rule:     [%s] %s on %s%s\n", rule.ID, rule.Name, rule.Trigger.Type, inactiveMark(rule.IsActive))
	}

	if len(t.Subtasks) > 0 {
		sb.WriteString("\n")
		for i, s := range t.Subtasks {
			check := " "
			if s.Completed {
				check = "x"
			}
			fmt.Fprintf(&sb, "  %d. [%s] %s\n", i, check, s.Title)
		}
	}
	if t.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(t.Description)
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatTaskList formats a list of tasks for display.
func (f *HumanFormatter) FormatTaskList(tasks []*task.Task) string {
	if len(tasks) == 0 {
		return "No tasks found.\n"
	}

	var sb strings.Builder
	for _, t := range tasks {
		sb.WriteString(f.formatTaskLine(t))
	}
	return sb.String()
}

// formatTaskLine formats a single task as a compact one-liner.
func (f *HumanFormatter) formatTaskLine(t *task.Task) string {
	statusIcon := f.statusIcon(t.Status)
	priorityMark := f.priorityMark(t.Priority)
	assignee := ""
	if t.AssignedTo != "" {
		assignee = " @" + t.AssignedTo
	}
	blockers := ""
	if len(t.BlockedBy) > 0 {
		blockers = fmt.Sprintf(" [blocked by: %s]", strings.Join(t.BlockedBy, ", "))
	}
	return fmt.Sprintf("%s %s [%s] %s%s%s\n", statusIcon, priorityMark, t.ID, t.Title, assignee, blockers)
}

func (f *HumanFormatter) statusIcon(s task.Status) string {
	switch s {
	case task.StatusTodo:
		return "[ ]"
	case task.StatusPending:
		return "[~]"
	case task.StatusInProgress:
		return "[*]"
	case task.StatusDone:
		return "[X]"
	case task.StatusCanceled:
		return "[-]"
	default:
		return "[?]"
	}
}

func (f *HumanFormatter) priorityMark(p task.Priority) string {
	switch p {
	case task.PriorityUrgent:
		return "P0"
	case task.PriorityHigh:
		return "P1"
	case task.PriorityMedium:
		return "P2"
	case task.PriorityLow:
		return "P3"
	default:
		return "P?"
	}
}

// FormatError formats an error for display.
func (f *HumanFormatter) FormatError(err error) string {
	return fmt.Sprintf("Error: %s\n", err.Error())
}

// FormatMessage formats a simple message.
func (f *HumanFormatter) FormatMessage(msg string) string {
	return msg + "\n"
}

// FormatGraph formats a dependency graph as ASCII art.
func (f *HumanFormatter) FormatGraph(nodes []deps.TreeNode) string {
	if len(nodes) == 0 {
		return "No tasks found.\n"
	}

	var sb strings.Builder
	for _, node := range nodes {
		f.formatGraphNode(&sb, node, "", "")
	}
	return sb.String()
}

func (f *HumanFormatter) formatGraphNode(sb *strings.Builder, node deps.TreeNode, prefix, connector string) {
	statusIcon := f.statusIcon(node.Task.Status)
	fmt.Fprintf(sb, "%s%s%s [%s] %s\n", prefix, connector, statusIcon, node.Task.ID, node.Task.Title)

	childPrefix := prefix
	switch connector {
	case "├── ":
		childPrefix += "│   "
	case "└── ":
		childPrefix += "    "
	}

	for i, child := range node.Children {
		next := "├── "
		if i == len(node.Children)-1 {
			next = "└── "
		}
		f.formatGraphNode(sb, child, childPrefix, next)
	}
}

// FormatBlockers lists the tasks keeping id from starting.
func (f *HumanFormatter) FormatBlockers(id string, blockers []flowerrors.BlockingTask) string {
	if len(blockers) == 0 {
		return fmt.Sprintf("%s can start.\n", id)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s is blocked by:\n", id)
	for _, b := range blockers {
		fmt.Fprintf(&sb, "  %s [%s] %s\n", f.statusIcon(task.Status(b.Status)), b.ID, b.Title)
	}
	return sb.String()
}

// FormatCompletion reports a completed task and the occurrence spawned after it.
func (f *HumanFormatter) FormatCompletion(done, next *task.Task) string {
	msg := fmt.Sprintf("Completed [%s] %s\n", done.ID, done.Title)
	if next != nil {
		due := ""
		if next.DueDate != nil {
			due = " due " + next.DueDate.Format("2006-01-02")
		}
		assignee := ""
		if next.AssignedTo != "" {
			assignee = " for " + next.AssignedTo
		}
		msg += fmt.Sprintf("Next occurrence [%s]%s%s\n", next.ID, due, assignee)
	}
	return msg
}

// FormatTimeTracking shows the timer state and session log of a task.
func (f *HumanFormatter) FormatTimeTracking(id string, tt task.TimeTracking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s logged%s\n", id, formatMinutes(tt.ActualMinutes), trackingMark(tt.IsTracking))
	for _, s := range tt.Sessions {
		end := "running"
		if s.EndedAt != nil {
			end = formatMinutes(s.Duration)
		}
		notes := ""
		if s.Notes != "" {
			notes = " - " + s.Notes
		}
		fmt.Fprintf(&sb, "  %s %-10s %s%s%s\n", s.StartedAt.Format(timeLayout), s.UserID, end, billableMark(s.IsBillable), notes)
	}
	return sb.String()
}

// FormatSummary shows the time and budget figures of a task.
func (f *HumanFormatter) FormatSummary(s timetrack.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] time summary%s\n", s.TaskID, trackingMark(s.IsTracking))
	fmt.Fprintf(&sb, "  Estimated: %s\n", formatMinutes(s.EstimatedMinutes))
	fmt.Fprintf(&sb, "  Actual:    %s (%d%%)\n", formatMinutes(s.ActualMinutes), s.PercentComplete)
	fmt.Fprintf(&sb, "  Remaining: %s\n", formatMinutes(s.RemainingMinutes))
	fmt.Fprintf(&sb, "  Billable:  %s\n", formatMinutes(s.BillableMinutes))
	if s.IsOverBudget {
		sb.WriteString("  Over budget\n")
	}
	if s.HourlyRate > 0 {
		fmt.Fprintf(&sb, "  Rate:      %.2f/h\n", s.HourlyRate)
		fmt.Fprintf(&sb, "  Cost:      %.2f of %.2f (variance %+.2f, %+.1f%%)\n",
			s.ActualCost, s.EstimatedCost, s.Variance, s.VariancePercent)
	}
	for _, u := range s.ByUser {
		fmt.Fprintf(&sb, "  %-10s %s\n", u.UserID, formatMinutes(u.Minutes))
	}
	return sb.String()
}

func formatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}

func manualMark(manual bool) string {
	if manual {
		return " (manual)"
	}
	return ""
}

func trackingMark(tracking bool) string {
	if tracking {
		return " (timer running)"
	}
	return ""
}

func billableMark(billable bool) string {
	if billable {
		return ""
	}
	return " (non-billable)"
}

func inactiveMark(active bool) string {
	if active {
		return ""
	}
	return " (inactive)"
}
