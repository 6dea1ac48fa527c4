//nolint:testpackage // Tests require internal access for thorough testing
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
)

type recordingSpan struct {
	noop.Span
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordingSpan) SetStatus(c codes.Code, _ string)              { s.status = c }
func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }
func (s *recordingSpan) End(_ ...trace.SpanEndOption)                  { s.ended = true }

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{flowerrors.ValidationError{Field: "title"}, ErrorKindValidation},
		{fmt.Errorf("wrapped: %w", flowerrors.NotFoundError{ID: "x"}), ErrorKindNotFound},
		{flowerrors.BlockedError{ID: "x"}, ErrorKindBlocked},
		{flowerrors.TimerStateError{Kind: flowerrors.NoActiveTimer}, ErrorKindTimer},
		{flowerrors.VersionConflictError{ID: "x"}, ErrorKindConflict},
		{flowerrors.CircularDependencyError{From: "a", To: "b"}, ErrorKindDependency},
		{flowerrors.SelfDependencyError{ID: "a"}, ErrorKindDependency},
		{errors.New("disk full"), ErrorKindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestEnd(t *testing.T) {
	failed := &recordingSpan{}
	End(failed, errors.New("boom"))
	if failed.status != codes.Error || len(failed.errs) != 1 || !failed.ended {
		t.Errorf("failed span = %+v", failed)
	}

	ok := &recordingSpan{}
	End(ok, nil)
	if ok.status != codes.Ok || len(ok.errs) != 0 || !ok.ended {
		t.Errorf("ok span = %+v", ok)
	}
}

func TestStartTaskSpanWithoutProvider(t *testing.T) {
	ctx, span := StartTaskSpan(context.Background(), SpanTransition, "t1", "alice")
	if ctx == nil || span == nil {
		t.Fatal("StartTaskSpan returned nil")
	}
	SetStatus(span, "done")
	SetAttempt(span, 1)
	End(span, nil)
}
