package deps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/storage"
	"github.com/abatilo/taskflow/internal/task"
)

// secondaryAttempts bounds the re-read-and-retry loop for the second record of an edge.
const secondaryAttempts = 3

// Manager maintains blocked-by edges on stored tasks.
//
// An edge lives on two records: task.BlockedBy on the waiting task and
// task.Blocks on the task it waits for. The waiting task is written first; if
// the second write cannot be made after secondaryAttempts, the first is
// compensated so the pair stays symmetric.
type Manager struct {
	store  storage.TaskStore
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager over store.
func NewManager(store storage.TaskStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for history timestamps.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WouldCreateCycle reports whether adding taskID -> dependsOnID closes a cycle,
// that is whether taskID is reachable from dependsOnID over existing blocked-by edges.
func (m *Manager) WouldCreateCycle(ctx context.Context, taskID, dependsOnID string) (bool, error) {
	visited := make(map[string]bool)
	stack := []string{dependsOnID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current == taskID {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true

		t, err := m.store.Get(ctx, current)
		if flowerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return false, err
		}
		for _, next := range t.BlockedBy {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false, nil
}

// AddDependency records that taskID cannot start until dependsOnID is done.
// Nothing is written when validation fails.
func (m *Manager) AddDependency(ctx context.Context, taskID, dependsOnID, actor string) (*task.Task, error) {
	if taskID == dependsOnID {
		return nil, flowerrors.SelfDependencyError{ID: taskID}
	}

	t, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	dep, err := m.store.Get(ctx, dependsOnID)
	if err != nil {
		return nil, err
	}
	if t.TenantID != dep.TenantID {
		return nil, flowerrors.ValidationError{Field: "dependsOn", Reason: "tasks belong to different tenants"}
	}
	if t.IsBlockedBy(dependsOnID) {
		return nil, flowerrors.DuplicateDependencyError{From: taskID, To: dependsOnID}
	}

	cycle, err := m.WouldCreateCycle(ctx, taskID, dependsOnID)
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, flowerrors.CircularDependencyError{From: taskID, To: dependsOnID}
	}

	t.AddBlocker(dependsOnID)
	t.Record(task.NewEntryID(), "dependency_added", actor, m.now(), task.Change{Field: "blockedBy", To: dependsOnID})
	saved, err := m.store.Save(ctx, t)
	if err != nil {
		return nil, err
	}

	_, err = m.update(ctx, dependsOnID, func(d *task.Task) bool {
		if slices.Contains(d.Blocks, taskID) {
			return false
		}
		d.AddBlocked(taskID)
		return true
	})
	if err == nil {
		return saved, nil
	}

	m.logger.Warn("dependency back-reference failed, rolling back",
		"task_id", taskID, "depends_on", dependsOnID, "error", err)
	if _, undoErr := m.update(ctx, taskID, func(p *task.Task) bool {
		if !p.IsBlockedBy(dependsOnID) {
			return false
		}
		p.RemoveBlocker(dependsOnID)
		p.Record(task.NewEntryID(), "dependency_rolled_back", actor, m.now(),
			task.Change{Field: "blockedBy", From: dependsOnID})
		return true
	}); undoErr != nil {
		m.logger.Error("dependency rollback failed; edge is asymmetric",
			"task_id", taskID, "depends_on", dependsOnID, "error", undoErr)
		return nil, fmt.Errorf("linking %s to %s: %w", taskID, dependsOnID, errors.Join(err, undoErr))
	}
	return nil, fmt.Errorf("linking %s to %s: %w", taskID, dependsOnID, err)
}

// RemoveDependency removes both halves of the edge. Removing an edge that does
// not exist is a no-op apart from repairing a dangling back-reference.
func (m *Manager) RemoveDependency(ctx context.Context, taskID, dependsOnID, actor string) (*task.Task, error) {
	t, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if t.IsBlockedBy(dependsOnID) {
		t.RemoveBlocker(dependsOnID)
		t.Record(task.NewEntryID(), "dependency_removed", actor, m.now(), task.Change{Field: "blockedBy", From: dependsOnID})
		if t, err = m.store.Save(ctx, t); err != nil {
			return nil, err
		}
	}

	_, err = m.update(ctx, dependsOnID, func(d *task.Task) bool {
		if !slices.Contains(d.Blocks, taskID) {
			return false
		}
		d.RemoveBlocked(taskID)
		return true
	})
	if err != nil && !flowerrors.IsNotFound(err) {
		m.logger.Warn("dependency back-reference cleanup failed",
			"task_id", taskID, "depends_on", dependsOnID, "error", err)
		return nil, fmt.Errorf("unlinking %s from %s: %w", taskID, dependsOnID, err)
	}
	return t, nil
}

// CanStart reports whether every blocker of t is done, and lists the ones that
// are not. Blockers that no longer exist do not block.
func (m *Manager) CanStart(ctx context.Context, t *task.Task) (bool, []flowerrors.BlockingTask, error) {
	if len(t.BlockedBy) == 0 {
		return true, nil, nil
	}
	blockers, err := m.store.FindByIDs(ctx, t.BlockedBy)
	if err != nil {
		return false, nil, err
	}

	var incomplete []flowerrors.BlockingTask
	for _, b := range blockers {
		if b.Status != task.StatusDone {
			incomplete = append(incomplete, flowerrors.BlockingTask{ID: b.ID, Title: b.Title, Status: string(b.Status)})
		}
	}
	return len(incomplete) == 0, incomplete, nil
}

// Detach removes every edge touching t from the related tasks. It is used
// before t is deleted; t itself is not written.
func (m *Manager) Detach(ctx context.Context, t *task.Task) error {
	var errs []error
	for _, id := range t.BlockedBy {
		_, err := m.update(ctx, id, func(d *task.Task) bool {
			if !slices.Contains(d.Blocks, t.ID) {
				return false
			}
			d.RemoveBlocked(t.ID)
			return true
		})
		if err != nil && !flowerrors.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	for _, id := range t.Blocks {
		_, err := m.update(ctx, id, func(d *task.Task) bool {
			if !d.IsBlockedBy(t.ID) {
				return false
			}
			d.RemoveBlocker(t.ID)
			return true
		})
		if err != nil && !flowerrors.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// update re-reads id, applies fn and saves, retrying on version conflicts.
// fn returns false when no write is needed.
func (m *Manager) update(ctx context.Context, id string, fn func(*task.Task) bool) (*task.Task, error) {
	var lastErr error
	for range secondaryAttempts {
		t, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !fn(t) {
			return t, nil
		}
		saved, err := m.store.Save(ctx, t)
		if err == nil {
			return saved, nil
		}
		if !flowerrors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
