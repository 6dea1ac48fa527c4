// Package recurrence spawns the next occurrence of a recurring task when the
// current one is completed.
package recurrence

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/abatilo/taskflow/internal/task"
)

// Fixed cadences that ignore the policy interval.
const (
	biweeklyDays     = 14
	quarterlyMonths  = 3
	defaultIntervals = 1
)

// NextDueDate advances current by the policy cadence. Daily and weekly scale
// with the interval; biweekly is always 14 days and quarterly always 3 months.
// Month arithmetic follows time.AddDate, so Jan 31 + 1 month normalizes into March.
func NextDueDate(current time.Time, p *task.Recurring) time.Time {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultIntervals
	}

	switch p.Frequency {
	case task.FrequencyDaily:
		return current.AddDate(0, 0, interval)
	case task.FrequencyWeekly:
		return current.AddDate(0, 0, 7*interval)
	case task.FrequencyBiweekly:
		return current.AddDate(0, 0, biweeklyDays)
	case task.FrequencyMonthly:
		return current.AddDate(0, interval, 0)
	case task.FrequencyQuarterly:
		return current.AddDate(0, quarterlyMonths, 0)
	case task.FrequencyYearly:
		return current.AddDate(interval, 0, 0)
	default:
		return current.AddDate(0, 0, interval)
	}
}

// ShouldSpawn reports whether another occurrence is due. occurrencesCompleted
// already counts the occurrence being completed.
func ShouldSpawn(p *task.Recurring, occurrencesCompleted int, next time.Time) bool {
	if p.EndDate != nil && next.After(*p.EndDate) {
		return false
	}
	if p.MaxOccurrences != nil && occurrencesCompleted >= *p.MaxOccurrences {
		return false
	}
	return true
}

// NextAssignee picks who receives the next occurrence. pick returns a value in
// [0, n); nil means math/rand. An empty pool keeps the current assignee.
func NextAssignee(p *task.Recurring, current string, occurrencesCompleted int, pick func(n int) int) string {
	if len(p.AssigneePool) == 0 {
		return current
	}

	switch p.AssigneeStrategy {
	case task.AssignRoundRobin:
		return p.AssigneePool[occurrencesCompleted%len(p.AssigneePool)]
	case task.AssignRandom:
		if pick == nil {
			pick = rand.IntN
		}
		return p.AssigneePool[pick(len(p.AssigneePool))]
	default:
		return current
	}
}

// Creator persists a spawned occurrence.
type Creator interface {
	Create(ctx context.Context, draft *task.Task, actor string) (*task.Task, error)
}

// Scheduler spawns next occurrences through a Creator.
type Scheduler struct {
	creator Creator
	logger  *slog.Logger
	now     func() time.Time
	pick    func(n int) int
}

// NewScheduler creates a Scheduler.
func NewScheduler(creator Creator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{creator: creator, logger: logger, now: time.Now}
}

// WithClock overrides the clock used when a completed task has no due date.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// WithPicker overrides the random source of the random assignee strategy.
func (s *Scheduler) WithPicker(pick func(n int) int) *Scheduler {
	s.pick = pick
	return s
}

// MaybeSpawnNext creates the next occurrence of a completed recurring task.
// It returns nil without error when the policy is disabled or exhausted.
// The occurrence counter on t must already include this completion.
func (s *Scheduler) MaybeSpawnNext(ctx context.Context, t *task.Task) (*task.Task, error) {
	p := t.Recurring
	if !p.Active() {
		return nil, nil
	}

	base := s.now()
	switch {
	case t.DueDate != nil:
		base = *t.DueDate
	case t.CompletedAt != nil:
		base = *t.CompletedAt
	}

	next := NextDueDate(base, p)
	if !ShouldSpawn(p, p.OccurrencesCompleted, next) {
		s.logger.Debug("recurrence exhausted",
			"task_id", t.ID, "occurrences", p.OccurrencesCompleted, "next_due", next)
		return nil, nil
	}

	draft := NextOccurrence(t, next, NextAssignee(p, t.AssignedTo, p.OccurrencesCompleted, s.pick))

	actor := t.CompletedBy
	if actor == "" {
		actor = t.CreatedBy
	}
	return s.creator.Create(ctx, draft, actor)
}

// NextOccurrence builds the unsaved task for the next occurrence of t. Prior
// completion state (subtasks, checklists, time, history) is not carried over.
func NextOccurrence(t *task.Task, due time.Time, assignee string) *task.Task {
	return &task.Task{
		TenantID:     t.TenantID,
		Title:        t.Title,
		Description:  t.Description,
		Priority:     t.Priority,
		Status:       task.StatusTodo,
		Label:        t.Label,
		Tags:         append([]string(nil), t.Tags...),
		Notes:        t.Notes,
		Points:       t.Points,
		DueDate:      &due,
		DueTime:      t.DueTime,
		AssignedTo:   assignee,
		CreatedBy:    t.CreatedBy,
		ParentTaskID: t.ParentTaskID,
		CaseID:       t.CaseID,
		ClientID:     t.ClientID,
		TimeTracking: task.TimeTracking{EstimatedMinutes: t.TimeTracking.EstimatedMinutes},
		Budget:       task.Budget{HourlyRate: t.Budget.HourlyRate},
		Recurring:    t.Recurring.Copy(),
		Reminders:    append([]task.Reminder(nil), t.Reminders...),
	}
}
