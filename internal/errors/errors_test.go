//nolint:testpackage // Tests require internal access for thorough testing
package errors

import (
	"fmt"
	"testing"
)

func TestBlockedError(t *testing.T) {
	err := BlockedError{ID: "task1", Blockers: []BlockingTask{
		{ID: "task2", Title: "Draft brief", Status: "todo"},
		{ID: "task3", Title: "File motion", Status: "in_progress"},
	}}
	want := "task task1 is blocked by: task2 (Draft brief, todo); task3 (File motion, in_progress)"
	if got := err.Error(); got != want {
		t.Errorf("BlockedError.Error() = %q, want %q", got, want)
	}

	unsaved := BlockedError{Blockers: []BlockingTask{{ID: "task2", Title: "Draft brief", Status: "todo"}}}
	want = "new task is blocked by: task2 (Draft brief, todo)"
	if got := unsaved.Error(); got != want {
		t.Errorf("BlockedError.Error() without ID = %q, want %q", got, want)
	}
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  NotFoundError
		want string
	}{
		{"defaults to task", NotFoundError{ID: "xyz789"}, "task not found: xyz789"},
		{"named kind", NotFoundError{Kind: "user", ID: "u1"}, "user not found: u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("NotFoundError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimerStateError(t *testing.T) {
	tests := []struct {
		kind TimerStateKind
		want string
	}{
		{TimerAlreadyRunning, "timer already running on task t1"},
		{NoActiveTimer, "no active timer on task t1"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := TimerStateError{TaskID: "t1", Kind: tt.kind}
			if got := err.Error(); got != tt.want {
				t.Errorf("TimerStateError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	conflict := VersionConflictError{ID: "a", Expected: 1, Actual: 2}
	if !IsRetryable(conflict) {
		t.Error("VersionConflictError should be retryable")
	}
	if !IsRetryable(fmt.Errorf("saving: %w", conflict)) {
		t.Error("wrapped VersionConflictError should be retryable")
	}
	if IsRetryable(ValidationError{Field: "title", Reason: "required"}) {
		t.Error("ValidationError should not be retryable")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("loading: %w", NotFoundError{ID: "a"})) {
		t.Error("wrapped NotFoundError should be detected")
	}
	if IsNotFound(CircularDependencyError{From: "a", To: "b"}) {
		t.Error("CircularDependencyError is not a NotFoundError")
	}
}
