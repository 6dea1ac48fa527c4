package task

import "time"

// Frequency is the cadence unit of a recurrence policy.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// AssigneeStrategy decides who receives the next occurrence.
type AssigneeStrategy string

const (
	AssignFixed      AssigneeStrategy = "fixed"
	AssignRoundRobin AssigneeStrategy = "round_robin"
	AssignRandom     AssigneeStrategy = "random"
)

// Recurring describes whether and how a completed task spawns its next occurrence.
type Recurring struct {
	Enabled              bool             `yaml:"enabled" json:"enabled"`
	Frequency            Frequency        `yaml:"frequency" json:"frequency"`
	Interval             int              `yaml:"interval" json:"interval"`
	EndDate              *time.Time       `yaml:"end_date,omitempty" json:"endDate,omitempty"`
	MaxOccurrences       *int             `yaml:"max_occurrences,omitempty" json:"maxOccurrences,omitempty"`
	OccurrencesCompleted int              `yaml:"occurrences_completed" json:"occurrencesCompleted"`
	AssigneeStrategy     AssigneeStrategy `yaml:"assignee_strategy,omitempty" json:"assigneeStrategy,omitempty"`
	AssigneePool         []string         `yaml:"assignee_pool,omitempty" json:"assigneePool,omitempty"`
}

// IsValidFrequency checks if a frequency string is valid.
func IsValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly,
		FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// IsValidAssigneeStrategy checks if a strategy string is valid. Empty means fixed.
func IsValidAssigneeStrategy(s AssigneeStrategy) bool {
	switch s {
	case "", AssignFixed, AssignRoundRobin, AssignRandom:
		return true
	default:
		return false
	}
}

// Active reports whether the policy should be consulted on completion.
func (r *Recurring) Active() bool {
	return r != nil && r.Enabled
}

// Copy returns a detached copy of the policy.
func (r *Recurring) Copy() *Recurring {
	if r == nil {
		return nil
	}
	c := *r
	if r.EndDate != nil {
		end := *r.EndDate
		c.EndDate = &end
	}
	if r.MaxOccurrences != nil {
		limit := *r.MaxOccurrences
		c.MaxOccurrences = &limit
	}
	c.AssigneePool = append([]string(nil), r.AssigneePool...)
	return &c
}
