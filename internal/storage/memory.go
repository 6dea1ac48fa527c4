package storage

import (
	"context"
	"encoding/json"
	"sync"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
)

// Memory is an in-process TaskStore. Records are kept encoded so callers never
// share memory with the stored copy.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string][]byte
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string][]byte)}
}

func decode(data []byte) (*task.Task, error) {
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Get returns a copy of the stored task.
func (m *Memory) Get(_ context.Context, id string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.tasks[id]
	if !ok {
		return nil, flowerrors.NotFoundError{ID: id}
	}
	return decode(data)
}

// Save stores t if its version matches the stored one.
func (m *Memory) Save(_ context.Context, t *task.Task) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.tasks[t.ID]
	switch {
	case !exists && t.Version != 0:
		return nil, flowerrors.NotFoundError{ID: t.ID}
	case exists && t.Version == 0:
		return nil, flowerrors.AlreadyExistsError{ID: t.ID}
	case exists:
		current, err := decode(data)
		if err != nil {
			return nil, err
		}
		if current.Version != t.Version {
			return nil, flowerrors.VersionConflictError{ID: t.ID, Expected: t.Version, Actual: current.Version}
		}
	}

	next := *t
	next.Version = t.Version + 1
	encoded, err := json.Marshal(&next)
	if err != nil {
		return nil, err
	}
	m.tasks[t.ID] = encoded
	return decode(encoded)
}

// FindByIDs returns the tasks that exist among ids, in the order given.
func (m *Memory) FindByIDs(_ context.Context, ids []string) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		data, ok := m.tasks[id]
		if !ok {
			continue
		}
		t, err := decode(data)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Delete removes a task.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return flowerrors.NotFoundError{ID: id}
	}
	delete(m.tasks, id)
	return nil
}

// List returns all matching tasks sorted by priority and age.
func (m *Memory) List(_ context.Context, filter Filter) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tasks []*task.Task
	for _, data := range m.tasks {
		t, err := decode(data)
		if err != nil {
			return nil, err
		}
		if filter.Matches(t) {
			tasks = append(tasks, t)
		}
	}
	SortTasks(tasks)
	return tasks, nil
}
