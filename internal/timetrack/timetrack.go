// Package timetrack records work sessions on a task and derives its actual
// minutes and budget figures.
package timetrack

import (
	"math"
	"sort"
	"strconv"
	"time"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
)

// MaxManualMinutes caps a single manual entry at one day.
const MaxManualMinutes = 24 * 60

// StopOptions override the running session's fields when it is closed.
type StopOptions struct {
	Notes      string
	IsBillable *bool
}

// ManualEntry is time logged after the fact.
type ManualEntry struct {
	Minutes    int
	Date       *time.Time
	Notes      string
	IsBillable *bool
	UserID     string
}

// UserTime is one row of the per-user breakdown.
type UserTime struct {
	UserID  string  `json:"userId"`
	Minutes int     `json:"minutes"`
	Cost    float64 `json:"cost"`
}

// Summary is the time and budget state of a task.
type Summary struct {
	TaskID           string     `json:"taskId"`
	EstimatedMinutes int        `json:"estimatedMinutes"`
	ActualMinutes    int        `json:"actualMinutes"`
	RemainingMinutes int        `json:"remainingMinutes"`
	BillableMinutes  int        `json:"billableMinutes"`
	PercentComplete  int        `json:"percentComplete"`
	IsOverBudget     bool       `json:"isOverBudget"`
	IsTracking       bool       `json:"isTracking"`
	HourlyRate       float64    `json:"hourlyRate"`
	EstimatedCost    float64    `json:"estimatedCost"`
	ActualCost       float64    `json:"actualCost"`
	Variance         float64    `json:"variance"`
	VariancePercent  float64    `json:"variancePercent"`
	ByUser           []UserTime `json:"byUser"`
}

// Tracker mutates TimeTracking and Budget on a task in memory.
type Tracker struct {
	now func() time.Time
}

// NewTracker creates a Tracker. A nil clock means time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// StartTimer opens a session for actor. A task has at most one open session.
func (tr *Tracker) StartTimer(t *task.Task, actor, notes string) (task.Session, error) {
	if t.TimeTracking.IsTracking || t.OpenSession() >= 0 {
		return task.Session{}, flowerrors.TimerStateError{TaskID: t.ID, Kind: flowerrors.TimerAlreadyRunning}
	}

	now := tr.now()
	s := task.Session{
		ID:         task.NewEntryID(),
		StartedAt:  now,
		UserID:     actor,
		Notes:      notes,
		IsBillable: true,
	}
	t.TimeTracking.Sessions = append(t.TimeTracking.Sessions, s)
	t.TimeTracking.IsTracking = true
	t.TimeTracking.CurrentSessionStart = &now
	t.Record(task.NewEntryID(), "timer_started", actor, now)
	return s, nil
}

// StopTimer closes the open session, rounding its duration to whole minutes.
func (tr *Tracker) StopTimer(t *task.Task, actor string, opts StopOptions) (task.Session, error) {
	idx := t.OpenSession()
	if idx < 0 {
		return task.Session{}, flowerrors.TimerStateError{TaskID: t.ID, Kind: flowerrors.NoActiveTimer}
	}

	now := tr.now()
	s := &t.TimeTracking.Sessions[idx]
	s.EndedAt = &now
	s.Duration = max(int(math.Round(now.Sub(s.StartedAt).Minutes())), 0)
	if opts.Notes != "" {
		s.Notes = opts.Notes
	}
	if opts.IsBillable != nil {
		s.IsBillable = *opts.IsBillable
	}

	t.TimeTracking.IsTracking = false
	t.TimeTracking.CurrentSessionStart = nil
	tr.settle(t, actor, "timer_stopped", now)
	return *s, nil
}

// AddManualTime appends an already closed session of entry.Minutes starting at
// entry.Date (default now). Billable unless stated otherwise.
func (tr *Tracker) AddManualTime(t *task.Task, actor string, entry ManualEntry) (task.Session, error) {
	if entry.Minutes <= 0 || entry.Minutes > MaxManualMinutes {
		return task.Session{}, flowerrors.ValidationError{
			Field:  "minutes",
			Reason: "must be greater than 0 and at most " + strconv.Itoa(MaxManualMinutes),
		}
	}

	now := tr.now()
	start := now
	if entry.Date != nil {
		start = *entry.Date
	}
	end := start.Add(time.Duration(entry.Minutes) * time.Minute)

	user := entry.UserID
	if user == "" {
		user = actor
	}
	billable := true
	if entry.IsBillable != nil {
		billable = *entry.IsBillable
	}

	s := task.Session{
		ID:         task.NewEntryID(),
		StartedAt:  start,
		EndedAt:    &end,
		Duration:   entry.Minutes,
		UserID:     user,
		Notes:      entry.Notes,
		IsBillable: billable,
		Manual:     true,
	}
	t.TimeTracking.Sessions = append(t.TimeTracking.Sessions, s)
	tr.settle(t, actor, "time_logged", now)
	return s, nil
}

// SetEstimate sets the estimate in minutes and refreshes the budget.
func (tr *Tracker) SetEstimate(t *task.Task, minutes int, actor string) error {
	if minutes < 0 {
		return flowerrors.ValidationError{Field: "estimatedMinutes", Reason: "must not be negative"}
	}
	old := t.TimeTracking.EstimatedMinutes
	t.TimeTracking.EstimatedMinutes = minutes
	RecomputeBudget(t)
	t.Record(task.NewEntryID(), "estimate_updated", actor, tr.now(), task.Change{
		Field: task.FieldEstimatedMinutes,
		From:  strconv.Itoa(old),
		To:    strconv.Itoa(minutes),
	})
	return nil
}

// SetHourlyRate sets the hourly rate and refreshes the budget.
func (tr *Tracker) SetHourlyRate(t *task.Task, rate float64, actor string) error {
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return flowerrors.ValidationError{Field: "hourlyRate", Reason: "must be a non-negative number"}
	}
	old := t.Budget.HourlyRate
	t.Budget.HourlyRate = rate
	RecomputeBudget(t)
	t.Record(task.NewEntryID(), "hourly_rate_updated", actor, tr.now(), task.Change{
		Field: "hourlyRate",
		From:  task.FormatValue(old),
		To:    task.FormatValue(rate),
	})
	return nil
}

func (tr *Tracker) settle(t *task.Task, actor, action string, at time.Time) {
	old := t.TimeTracking.ActualMinutes
	RecomputeActual(t)
	RecomputeBudget(t)
	t.Record(task.NewEntryID(), action, actor, at, task.Change{
		Field: task.FieldActualMinutes,
		From:  strconv.Itoa(old),
		To:    strconv.Itoa(t.TimeTracking.ActualMinutes),
	})
}

// RecomputeActual sets ActualMinutes to the sum over closed sessions.
func RecomputeActual(t *task.Task) int {
	total := 0
	for _, s := range t.TimeTracking.Sessions {
		if s.Closed() {
			total += s.Duration
		}
	}
	t.TimeTracking.ActualMinutes = total
	return total
}

// RecomputeBudget derives the cost fields from minutes and the hourly rate.
func RecomputeBudget(t *task.Task) {
	b := &t.Budget
	b.EstimatedCost = cost(t.TimeTracking.EstimatedMinutes, b.HourlyRate)
	b.ActualCost = cost(t.TimeTracking.ActualMinutes, b.HourlyRate)
	b.Variance = round2(b.ActualCost - b.EstimatedCost)
	b.VariancePercent = 0
	if b.EstimatedCost > 0 {
		b.VariancePercent = round2(b.Variance / b.EstimatedCost * 100)
	}
}

// Summarize reports the time and budget state of t.
func Summarize(t *task.Task) Summary {
	tt := t.TimeTracking
	s := Summary{
		TaskID:           t.ID,
		EstimatedMinutes: tt.EstimatedMinutes,
		ActualMinutes:    tt.ActualMinutes,
		RemainingMinutes: max(tt.EstimatedMinutes-tt.ActualMinutes, 0),
		IsOverBudget:     tt.ActualMinutes > tt.EstimatedMinutes,
		IsTracking:       tt.IsTracking,
		HourlyRate:       t.Budget.HourlyRate,
		EstimatedCost:    t.Budget.EstimatedCost,
		ActualCost:       t.Budget.ActualCost,
		Variance:         t.Budget.Variance,
		VariancePercent:  t.Budget.VariancePercent,
	}
	if tt.EstimatedMinutes > 0 {
		s.PercentComplete = int(math.Round(100 * float64(tt.ActualMinutes) / float64(tt.EstimatedMinutes)))
	}

	perUser := map[string]int{}
	for _, session := range tt.Sessions {
		if !session.Closed() {
			continue
		}
		perUser[session.UserID] += session.Duration
		if session.IsBillable {
			s.BillableMinutes += session.Duration
		}
	}
	for user, minutes := range perUser {
		s.ByUser = append(s.ByUser, UserTime{UserID: user, Minutes: minutes, Cost: cost(minutes, t.Budget.HourlyRate)})
	}
	sort.Slice(s.ByUser, func(i, j int) bool { return s.ByUser[i].UserID < s.ByUser[j].UserID })
	return s
}

func cost(minutes int, rate float64) float64 {
	return round2(float64(minutes) / 60 * rate)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
