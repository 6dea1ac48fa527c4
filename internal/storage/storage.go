package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/task"
)

const fileExt = ".md"

// TaskStore is the durable record store the core runs on.
//
// Save is an optimistic write: a task whose Version is zero is inserted, any
// other task is written only if the stored version still equals t.Version,
// otherwise VersionConflictError is returned. The returned copy carries the
// new version.
type TaskStore interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	Save(ctx context.Context, t *task.Task) (*task.Task, error)
	FindByIDs(ctx context.Context, ids []string) ([]*task.Task, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter Filter) ([]*task.Task, error)
}

// Filter controls which tasks List returns. Zero values match everything.
type Filter struct {
	TenantID string
	Statuses []task.Status
	ParentID string
}

// Matches returns true if the task should be included.
func (f Filter) Matches(t *task.Task) bool {
	if f.TenantID != "" && t.TenantID != f.TenantID {
		return false
	}
	if f.ParentID != "" && t.ParentTaskID != f.ParentID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	return true
}

// SortTasks orders by priority (highest first), then by creation time (oldest first).
func SortTasks(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		pi := task.PriorityOrder(tasks[i].Priority)
		pj := task.PriorityOrder(tasks[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

// FileStore keeps one markdown file with YAML frontmatter per task.
// Version checks are serialized by an in-process mutex.
type FileStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStore creates a FileStore rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{basePath: path}
}

// BasePath returns the base path of the store.
func (s *FileStore) BasePath() string {
	return s.basePath
}

// IsInitialized checks if the data directory exists.
func (s *FileStore) IsInitialized() bool {
	info, err := os.Stat(s.basePath)
	return err == nil && info.IsDir()
}

// Init creates the data directory.
func (s *FileStore) Init(force bool) error {
	if s.IsInitialized() && !force {
		return AlreadyInitializedError{Path: s.basePath}
	}
	//nolint:gosec // G301: 0755 is appropriate for a user-owned data directory
	return os.MkdirAll(s.basePath, 0o755)
}

func (s *FileStore) taskPath(id string) string {
	return filepath.Join(s.basePath, id+fileExt)
}

// Get reads a task from disk.
func (s *FileStore) Get(_ context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *FileStore) load(id string) (*task.Task, error) {
	if !s.IsInitialized() {
		return nil, NotInitializedError{Path: s.basePath}
	}
	content, err := os.ReadFile(s.taskPath(id))
	if os.IsNotExist(err) {
		return nil, flowerrors.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading task %s: %w", id, err)
	}
	return ParseMarkdown(content)
}

// Save writes a task to disk after checking its version.
func (s *FileStore) Save(_ context.Context, t *task.Task) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsInitialized() {
		return nil, NotInitializedError{Path: s.basePath}
	}

	current, err := s.load(t.ID)
	switch {
	case flowerrors.IsNotFound(err):
		if t.Version != 0 {
			return nil, err
		}
	case err != nil:
		return nil, err
	case t.Version == 0:
		return nil, flowerrors.AlreadyExistsError{ID: t.ID}
	case current.Version != t.Version:
		return nil, flowerrors.VersionConflictError{ID: t.ID, Expected: t.Version, Actual: current.Version}
	}

	next := *t
	next.Version = t.Version + 1
	content, err := SerializeMarkdown(&next)
	if err != nil {
		return nil, fmt.Errorf("serializing task %s: %w", t.ID, err)
	}

	tmp := s.taskPath(t.ID) + ".tmp"
	//nolint:gosec // G306: 0644 is appropriate for user-readable task files
	if err = os.WriteFile(tmp, content, 0o644); err != nil {
		return nil, fmt.Errorf("writing task %s: %w", t.ID, err)
	}
	if err = os.Rename(tmp, s.taskPath(t.ID)); err != nil {
		return nil, fmt.Errorf("writing task %s: %w", t.ID, err)
	}
	return ParseMarkdown(content)
}

// FindByIDs loads the tasks that exist among ids, in the order given.
func (s *FileStore) FindByIDs(_ context.Context, ids []string) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.load(id)
		if flowerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Delete removes a task file.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsInitialized() {
		return NotInitializedError{Path: s.basePath}
	}
	err := os.Remove(s.taskPath(id))
	if os.IsNotExist(err) {
		return flowerrors.NotFoundError{ID: id}
	}
	return err
}

// List returns all matching tasks sorted by priority and age.
func (s *FileStore) List(_ context.Context, filter Filter) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsInitialized() {
		return nil, NotInitializedError{Path: s.basePath}
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	var tasks []*task.Task
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		t, loadErr := s.load(strings.TrimSuffix(entry.Name(), fileExt))
		if loadErr != nil {
			continue // Skip malformed files
		}
		if filter.Matches(t) {
			tasks = append(tasks, t)
		}
	}

	SortTasks(tasks)
	return tasks, nil
}
