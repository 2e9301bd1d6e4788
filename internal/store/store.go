package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/quizsmith/quizsmith-api/internal/domain"
)

// Common store errors used across all store implementations.
var (
	// ErrTaskNotFound is returned when a requested task does not exist in
	// the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a task whose ID is already
	// present in the store.
	ErrTaskExists = errors.New("task already exists")

	// ErrVersionConflict is returned by CompareAndUpdate when the record's
	// current version does not match the expected version, meaning another
	// writer got there first.
	ErrVersionConflict = errors.New("task version conflict")

	// ErrTaskNotTerminal is returned when attempting to evict a task that
	// has not reached a terminal state. In-progress tasks must never be
	// evicted.
	ErrTaskNotTerminal = errors.New("task is not in a terminal state")

	// ErrInvalidEntity is returned when a task fails domain validation
	// before being stored.
	ErrInvalidEntity = errors.New("invalid task entity")
)

// TaskStore defines the interface for task persistence.
//
// Implementations must hand out deep copies: a task returned from GetByID or
// List is a point-in-time snapshot, never a live reference into the store.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrTaskExists if a task with the same ID is already present.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a snapshot of the task with the given ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// CompareAndUpdate replaces the stored record with task if and only if
	// the stored version equals expectedVersion. On success the stored (and
	// given) task's version is bumped to expectedVersion+1.
	// Returns ErrTaskNotFound if the task does not exist and
	// ErrVersionConflict if the version check fails.
	CompareAndUpdate(ctx context.Context, task *domain.Task, expectedVersion int64) error

	// Delete evicts a task from the store. Only terminal tasks may be
	// evicted; returns ErrTaskNotTerminal otherwise and ErrTaskNotFound if
	// the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns snapshots of the most recently created tasks, newest
	// first. A limit of zero or less returns all tasks.
	List(ctx context.Context, limit int) ([]*domain.Task, error)
}
