// Package sqlite implements storage.TaskStore on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
	"github.com/abatilo/taskflow/internal/storage"
	"github.com/abatilo/taskflow/internal/task"
)

// Store keeps each task as a JSON document next to the columns used for
// filtering and for the optimistic version check.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	//nolint:gosec // G301: 0755 is appropriate for a user-owned data directory
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		parent_task_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_tenant ON tasks(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

func decodeTask(data []byte) (*task.Task, error) {
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	return &t, nil
}

func scanTask(row interface{ Scan(...any) error }) (*task.Task, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	return decodeTask([]byte(data))
}

// Get loads a task by ID.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT data FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, flowerrors.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	return t, nil
}

// Save inserts a new task or updates an existing one guarded by its version.
func (s *Store) Save(ctx context.Context, t *task.Task) (*task.Task, error) {
	next := *t
	next.Version = t.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return nil, fmt.Errorf("encoding task %s: %w", t.ID, err)
	}
	created := next.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z")

	if t.Version == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO tasks (id, tenant_id, parent_task_id, status, priority, version, created_at, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, next.ID, next.TenantID, next.ParentTaskID, next.Status, next.Priority, next.Version, created, string(data))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return nil, flowerrors.AlreadyExistsError{ID: t.ID}
			}
			return nil, fmt.Errorf("inserting task %s: %w", t.ID, err)
		}
		return decodeTask(data)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET tenant_id = ?, parent_task_id = ?, status = ?, priority = ?, version = ?, data = ?
		WHERE id = ? AND version = ?
	`, next.TenantID, next.ParentTaskID, next.Status, next.Priority, next.Version, string(data), t.ID, t.Version)
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	if n == 0 {
		var stored int64
		err = s.db.QueryRowContext(ctx, `SELECT version FROM tasks WHERE id = ?`, t.ID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, flowerrors.NotFoundError{ID: t.ID}
		}
		if err != nil {
			return nil, fmt.Errorf("checking version of %s: %w", t.ID, err)
		}
		return nil, flowerrors.VersionConflictError{ID: t.ID, Expected: t.Version, Actual: stored}
	}
	return decodeTask(data)
}

// FindByIDs returns the tasks that exist among ids, in the order given.
func (s *Store) FindByIDs(ctx context.Context, ids []string) ([]*task.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	//nolint:gosec // G202: placeholders are generated, values are bound
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM tasks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*task.Task, len(ids))
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		byID[t.ID] = t
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	tasks := make([]*task.Task, 0, len(byID))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			tasks = append(tasks, t)
			delete(byID, id)
		}
	}
	return tasks, nil
}

// Delete removes a task.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return flowerrors.NotFoundError{ID: id}
	}
	return nil
}

// List returns all matching tasks sorted by priority and age.
func (s *Store) List(ctx context.Context, filter storage.Filter) ([]*task.Task, error) {
	query := `SELECT data FROM tasks WHERE 1 = 1`
	var args []any
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.ParentID != "" {
		query += ` AND parent_task_id = ?`
		args = append(args, filter.ParentID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + strings.TrimSuffix(strings.Repeat("?,", len(filter.Statuses)), ",") + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tasks = append(tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	storage.SortTasks(tasks)
	return tasks, nil
}

var _ storage.TaskStore = (*Store)(nil)
