package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/quizsmith/quizsmith-api/internal/domain"
	"github.com/quizsmith/quizsmith-api/internal/store"
)

// PostgreSQL error codes
const pgUniqueViolationCode = "23505"

// PostgresTaskStore implements the store.TaskStore interface using a
// PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller. If logger is nil, the
// default logger is used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if task.Version < 1 {
		task.Version = 1
	}

	resultJSON, errorJSON, err := marshalArtifacts(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, state, input_text, result, error, cancel_requested, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.State,
		task.InputText,
		resultJSON,
		errorJSON,
		task.CancelRequested,
		task.CreatedAt,
		task.UpdatedAt,
		task.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return fmt.Errorf("%w: %s", store.ErrTaskExists, task.ID)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, state, input_text, result, error, cancel_requested, created_at, updated_at, version
		FROM tasks
		WHERE id = $1
	`
	return s.scanTask(s.db.QueryRowContext(ctx, query, id))
}

// CompareAndUpdate implements store.TaskStore.CompareAndUpdate.
func (s *PostgresTaskStore) CompareAndUpdate(
	ctx context.Context,
	task *domain.Task,
	expectedVersion int64,
) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	resultJSON, errorJSON, err := marshalArtifacts(task)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET state = $2,
		    result = $3,
		    error = $4,
		    cancel_requested = $5,
		    updated_at = $6,
		    version = $7
		WHERE id = $1 AND version = $8
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.State,
		resultJSON,
		errorJSON,
		task.CancelRequested,
		task.UpdatedAt,
		expectedVersion+1,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if rows == 0 {
		exists, err := s.taskExists(ctx, task.ID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", store.ErrTaskNotFound, task.ID)
		}
		return fmt.Errorf("%w: task %s expected version %d",
			store.ErrVersionConflict, task.ID, expectedVersion)
	}

	task.Version = expectedVersion + 1
	return nil
}

// Delete implements store.TaskStore.Delete. The state predicate enforces
// the contract that non-terminal tasks are never evicted.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM tasks
		WHERE id = $1 AND state IN ($2, $3, $4)
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		id,
		domain.TaskStateCompleted,
		domain.TaskStateFailed,
		domain.TaskStateCanceled,
	)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}

	if rows == 0 {
		exists, err := s.taskExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", store.ErrTaskNotFound, id)
		}
		return fmt.Errorf("%w: %s", store.ErrTaskNotTerminal, id)
	}

	return nil
}

// List implements store.TaskStore.List.
func (s *PostgresTaskStore) List(ctx context.Context, limit int) ([]*domain.Task, error) {
	query := `
		SELECT id, state, input_text, result, error, cancel_requested, created_at, updated_at, version
		FROM tasks
		ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn("failed to close rows", "error", cerr)
		}
	}()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := s.scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// taskExists reports whether a task row is present.
func (s *PostgresTaskStore) taskExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check task existence: %w", err)
	}
	return exists, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask scans a single task row, mapping sql.ErrNoRows to
// store.ErrTaskNotFound.
func (s *PostgresTaskStore) scanTask(row *sql.Row) (*domain.Task, error) {
	task, err := s.scanTaskRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// scanTaskRow scans the task columns from any row scanner.
func (s *PostgresTaskStore) scanTaskRow(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		resultJSON []byte
		errorJSON  []byte
	)

	err := row.Scan(
		&task.ID,
		&task.State,
		&task.InputText,
		&resultJSON,
		&errorJSON,
		&task.CancelRequested,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	if len(resultJSON) > 0 {
		var quiz domain.Quiz
		if err := json.Unmarshal(resultJSON, &quiz); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task result: %w", err)
		}
		task.Result = &quiz
	}

	if len(errorJSON) > 0 {
		var taskErr domain.TaskError
		if err := json.Unmarshal(errorJSON, &taskErr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task error: %w", err)
		}
		task.Error = &taskErr
	}

	return &task, nil
}

// marshalArtifacts serializes the optional result and error fields to JSONB
// values, using NULL when absent.
func marshalArtifacts(task *domain.Task) (resultJSON, errorJSON []byte, err error) {
	if task.Result != nil {
		resultJSON, err = json.Marshal(task.Result)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal task result: %w", err)
		}
	}

	if task.Error != nil {
		errorJSON, err = json.Marshal(task.Error)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal task error: %w", err)
		}
	}

	return resultJSON, errorJSON, nil
}
