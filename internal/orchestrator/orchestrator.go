// Package orchestrator exposes the task operations of taskflow. It wires the
// dependency manager, status machine, progress and time trackers, workflow
// engine and recurrence scheduler over a TaskStore, and retries every
// read-modify-write on optimistic-concurrency conflicts.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/abatilo/taskflow/internal/deps"
	"github.com/abatilo/taskflow/internal/directory"
	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/progress"
	"github.com/abatilo/taskflow/internal/recurrence"
	"github.com/abatilo/taskflow/internal/status"
	"github.com/abatilo/taskflow/internal/storage"
	"github.com/abatilo/taskflow/internal/task"
	"github.com/abatilo/taskflow/internal/telemetry"
	"github.com/abatilo/taskflow/internal/timetrack"
	"github.com/abatilo/taskflow/internal/workflow"
)

// DefaultMaxRetries is how many times a conflicting write is retried.
const DefaultMaxRetries = 3

// Options configures an Orchestrator. Zero values pick defaults.
type Options struct {
	Users      directory.UserDirectory
	Cases      directory.CaseDirectory
	Logger     *slog.Logger
	Clock      func() time.Time
	MaxRetries int
	// Picker chooses an index in [0, n) for the random assignee strategy.
	Picker func(n int) int
}

// Orchestrator implements the task operations.
type Orchestrator struct {
	store      storage.TaskStore
	users      directory.UserDirectory
	cases      directory.CaseDirectory
	deps       *deps.Manager
	machine    *status.Machine
	progress   *progress.Tracker
	timer      *timetrack.Tracker
	rules      *workflow.Engine
	recurrence *recurrence.Scheduler
	logger     *slog.Logger
	now        func() time.Time
	maxRetries int
}

// New creates an Orchestrator over store.
func New(store storage.TaskStore, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	o := &Orchestrator{
		store:      store,
		users:      opts.Users,
		cases:      opts.Cases,
		logger:     logger,
		now:        now,
		maxRetries: retries,
	}

	h := host{o: o}
	o.deps = deps.NewManager(store, logger.With("component", "deps")).WithClock(now)
	o.progress = progress.NewTracker(now)
	o.timer = timetrack.NewTracker(now)
	o.rules = workflow.NewEngine(h, h, opts.Users, opts.Cases, logger.With("component", "workflow")).WithClock(now)
	o.recurrence = recurrence.NewScheduler(h, logger.With("component", "recurrence")).
		WithClock(now).
		WithPicker(opts.Picker)
	o.machine = status.NewMachine(o.deps, o.rules, o.recurrence, logger.With("component", "status")).WithClock(now)
	return o
}

// GetTask returns a task by ID.
func (o *Orchestrator) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return o.store.Get(ctx, id)
}

// ListTasks returns the tasks matching filter.
func (o *Orchestrator) ListTasks(ctx context.Context, filter storage.Filter) ([]*task.Task, error) {
	return o.store.List(ctx, filter)
}

// ListByReadiness returns the tasks matching filter with unblocked tasks first,
// then by priority and age. Blockers are resolved against the whole tenant, not
// just the filtered tasks.
func (o *Orchestrator) ListByReadiness(ctx context.Context, filter storage.Filter) ([]*task.Task, error) {
	graph, err := o.Graph(ctx, storage.Filter{TenantID: filter.TenantID})
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	graph.SortByReadiness(tasks)
	return tasks, nil
}

// Graph returns a dependency snapshot over the tasks matching filter.
func (o *Orchestrator) Graph(ctx context.Context, filter storage.Filter) (*deps.Graph, error) {
	tasks, err := o.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return deps.NewGraph(tasks), nil
}

// mutate runs fn on a fresh copy of the task and saves it, starting over from
// a new read when the save hits a version conflict. fn must be safe to re-run.
func (o *Orchestrator) mutate(ctx context.Context, id string, fn func(*task.Task) error) (*task.Task, error) {
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		t, err := o.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err = fn(t); err != nil {
			if errors.Is(err, errUnchanged) {
				return t, nil
			}
			return nil, err
		}
		t.UpdatedAt = o.now()

		saved, err := o.store.Save(ctx, t)
		if err == nil {
			telemetry.SetAttempt(trace.SpanFromContext(ctx), attempt+1)
			return saved, nil
		}
		if !flowerrors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		o.logger.Debug("version conflict, retrying", "task_id", id, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// retry re-runs a multi-record operation on version conflicts.
func (o *Orchestrator) retry(ctx context.Context, id string, fn func() (*task.Task, error)) (*task.Task, error) {
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := fn()
		if err == nil {
			return t, nil
		}
		if !flowerrors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		o.logger.Debug("version conflict, retrying", "task_id", id, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// settle runs post-commit automation for a transition and returns the
// refreshed task together with any spawned occurrence.
func (o *Orchestrator) settle(ctx context.Context, saved *task.Task, change status.Change, actor string) (*task.Task, *task.Task) {
	if !change.Changed() {
		return saved, nil
	}
	next := o.machine.Settle(ctx, saved, change, actor)

	fresh, err := o.store.Get(ctx, saved.ID)
	if err != nil {
		o.logger.Warn("reloading task after automation failed", "task_id", saved.ID, "error", err)
		return saved, next
	}
	return fresh, next
}

// host adapts the Orchestrator to the creator and mutator interfaces of the
// workflow engine and the recurrence scheduler.
type host struct {
	o *Orchestrator
}

func (h host) Create(ctx context.Context, draft *task.Task, actor string) (*task.Task, error) {
	return h.o.insert(ctx, draft, nil, actor)
}

func (h host) Update(ctx context.Context, id string, fn func(*task.Task) error) (*task.Task, error) {
	return h.o.mutate(ctx, id, fn)
}

// span helpers keep every operation's tracing in one shape.
func (o *Orchestrator) startSpan(ctx context.Context, name, id, actor string) (context.Context, func(*task.Task, error)) {
	ctx, span := telemetry.StartTaskSpan(ctx, name, id, actor)
	return ctx, func(t *task.Task, err error) {
		if t != nil {
			telemetry.SetStatus(span, string(t.Status))
		}
		telemetry.End(span, err)
	}
}
