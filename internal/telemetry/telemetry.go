// Package telemetry provides OpenTelemetry tracing for taskflow operations.
//
// Spans go to the global tracer provider; without an SDK installed they are no-ops.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
)

// Attribute keys
const (
	KeyTaskID      = "taskflow.task.id"
	KeyTenantID    = "taskflow.tenant.id"
	KeyTaskStatus  = "taskflow.task.status"
	KeyDependsOn   = "taskflow.dependency.target"
	KeyActor       = "taskflow.actor"
	KeyAttempt     = "taskflow.attempt"
	KeyErrorKind   = "taskflow.error.kind"
	KeyRuleTrigger = "taskflow.rule.trigger"
)

// Error kinds attached to failed spans.
const (
	ErrorKindValidation = "validation"
	ErrorKindNotFound   = "not_found"
	ErrorKindDependency = "dependency"
	ErrorKindBlocked    = "blocked"
	ErrorKindTimer      = "timer_state"
	ErrorKindConflict   = "version_conflict"
	ErrorKindInternal   = "internal"
)

// Span names
const (
	SpanCreateTask       = "taskflow.task.create"
	SpanDeleteTask       = "taskflow.task.delete"
	SpanTransition       = "taskflow.task.transition"
	SpanComplete         = "taskflow.task.complete"
	SpanAddDependency    = "taskflow.dependency.add"
	SpanRemoveDependency = "taskflow.dependency.remove"
	SpanTimer            = "taskflow.time.timer"
	SpanManualTime       = "taskflow.time.manual"
	SpanBudget           = "taskflow.time.budget"
	SpanProgress         = "taskflow.progress.set"
	SpanSubtask          = "taskflow.progress.subtask"
	SpanRules            = "taskflow.rules.update"
)

func tracer() trace.Tracer {
	return otel.Tracer("taskflow")
}

// StartTaskSpan starts a span for an operation on one task.
func StartTaskSpan(ctx context.Context, name, taskID, actor string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String(KeyTaskID, taskID),
		attribute.String(KeyActor, actor),
	)
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// ErrorKind classifies err for span attributes.
func ErrorKind(err error) string {
	var (
		validation flowerrors.ValidationError
		notFound   flowerrors.NotFoundError
		blocked    flowerrors.BlockedError
		timer      flowerrors.TimerStateError
		conflict   flowerrors.VersionConflictError
		self       flowerrors.SelfDependencyError
		duplicate  flowerrors.DuplicateDependencyError
		cycle      flowerrors.CircularDependencyError
	)
	switch {
	case errors.As(err, &validation):
		return ErrorKindValidation
	case errors.As(err, &notFound):
		return ErrorKindNotFound
	case errors.As(err, &blocked):
		return ErrorKindBlocked
	case errors.As(err, &timer):
		return ErrorKindTimer
	case errors.As(err, &conflict):
		return ErrorKindConflict
	case errors.As(err, &self), errors.As(err, &duplicate), errors.As(err, &cycle):
		return ErrorKindDependency
	default:
		return ErrorKindInternal
	}
}

// End finishes span, recording err when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err, trace.WithAttributes(attribute.String(KeyErrorKind, ErrorKind(err))))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SetStatus sets the resulting task status as a span attribute.
func SetStatus(span trace.Span, status string) {
	span.SetAttributes(attribute.String(KeyTaskStatus, status))
}

// SetAttempt records the optimistic-concurrency attempt that committed.
func SetAttempt(span trace.Span, attempt int) {
	span.SetAttributes(attribute.Int(KeyAttempt, attempt))
}
