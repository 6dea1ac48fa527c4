//nolint:revive // Package name intentionally matches stdlib for domain clarity
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ValidationError indicates a bad enum value, an out-of-range number or a missing field.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError indicates a referenced task, user or case is absent.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "task"
	}
	return fmt.Sprintf("%s not found: %s", kind, e.ID)
}

// AlreadyExistsError indicates an ID collision on insert.
type AlreadyExistsError struct {
	ID string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("task already exists: %s", e.ID)
}

// SelfDependencyError indicates a task was asked to depend on itself.
type SelfDependencyError struct {
	ID string
}

func (e SelfDependencyError) Error() string {
	return fmt.Sprintf("task %s cannot depend on itself", e.ID)
}

// DuplicateDependencyError indicates the edge already exists.
type DuplicateDependencyError struct {
	From string
	To   string
}

func (e DuplicateDependencyError) Error() string {
	return fmt.Sprintf("task %s already depends on %s", e.From, e.To)
}

// CircularDependencyError indicates adding a dependency would create a cycle.
type CircularDependencyError struct {
	From string
	To   string
}

func (e CircularDependencyError) Error() string {
	return fmt.Sprintf("adding dependency %s -> %s would create a cycle", e.From, e.To)
}

// BlockingTask identifies one incomplete task standing in the way of a transition.
type BlockingTask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// BlockedError indicates a task has incomplete dependencies. ID is empty when
// the task has not been created yet.
type BlockedError struct {
	ID       string
	Blockers []BlockingTask
}

func (e BlockedError) Error() string {
	parts := make([]string, 0, len(e.Blockers))
	for _, b := range e.Blockers {
		parts = append(parts, fmt.Sprintf("%s (%s, %s)", b.ID, b.Title, b.Status))
	}
	if e.ID == "" {
		return "new task is blocked by: " + strings.Join(parts, "; ")
	}
	return fmt.Sprintf("task %s is blocked by: %s", e.ID, strings.Join(parts, "; "))
}

// TimerStateKind distinguishes the two timer state violations.
type TimerStateKind string

const (
	TimerAlreadyRunning TimerStateKind = "already_running"
	NoActiveTimer       TimerStateKind = "no_active_timer"
)

// TimerStateError indicates a timer start while running or a stop while idle.
type TimerStateError struct {
	TaskID string
	Kind   TimerStateKind
}

func (e TimerStateError) Error() string {
	if e.Kind == TimerAlreadyRunning {
		return fmt.Sprintf("timer already running on task %s", e.TaskID)
	}
	return fmt.Sprintf("no active timer on task %s", e.TaskID)
}

// VersionConflictError indicates an optimistic-concurrency collision. The whole
// operation is safe to retry from a fresh read.
type VersionConflictError struct {
	ID       string
	Expected int64
	Actual   int64
}

func (e VersionConflictError) Error() string {
	return fmt.Sprintf("task %s was modified concurrently (read version %d, stored version %d)",
		e.ID, e.Expected, e.Actual)
}

// IsRetryable reports whether err is a version conflict.
func IsRetryable(err error) bool {
	var conflict VersionConflictError
	return stderrors.As(err, &conflict)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return stderrors.As(err, &nf)
}
