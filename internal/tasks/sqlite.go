package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists finished tasks in a SQLite database so results
// survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the task database at
// path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			status TEXT NOT NULL,
			user_key TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			result TEXT,
			error TEXT,
			steps INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_started ON tasks(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save upserts a task row.
func (s *SQLiteStore) Save(ctx context.Context, task *Task) error {
	var finishedAt sql.NullInt64
	if task.FinishedAt != nil {
		finishedAt = sql.NullInt64{Int64: task.FinishedAt.UnixMilli(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tasks
			(id, description, status, user_key, started_at, finished_at, result, error, steps, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Description,
		string(task.Status),
		task.UserKey,
		task.StartedAt.UnixMilli(),
		finishedAt,
		task.Result,
		task.Error,
		task.Steps,
		task.Success,
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// Get returns the task with the given id or ErrTaskNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, status, user_key, started_at, finished_at, result, error, steps, success
		FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// List returns all stored tasks, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, status, user_key, started_at, finished_at, result, error, steps, success
		FROM tasks ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Delete removes a task row or returns ErrTaskNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task       Task
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
	)

	err := row.Scan(
		&task.ID,
		&task.Description,
		&status,
		&task.UserKey,
		&startedAt,
		&finishedAt,
		&task.Result,
		&task.Error,
		&task.Steps,
		&task.Success,
	)
	if err != nil {
		return nil, err
	}

	task.Status = Status(status)
	task.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		finished := time.UnixMilli(finishedAt.Int64)
		task.FinishedAt = &finished
	}
	return &task, nil
}
