package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/quizsmith/quizsmith-api/internal/domain"
)

// MemoryTaskStore is an in-memory implementation of the TaskStore interface.
// It guards a task map with a mutex, so reads and conditional updates are
// linearizable, and stores clones so callers can never mutate a record
// without going through CompareAndUpdate.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Ensure MemoryTaskStore implements the TaskStore interface
var _ TaskStore = (*MemoryTaskStore)(nil)

// Create implements TaskStore.Create.
func (s *MemoryTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}

	if task.Version < 1 {
		task.Version = 1
	}

	s.tasks[task.ID] = task.Clone()
	return nil
}

// GetByID implements TaskStore.GetByID.
func (s *MemoryTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	return task.Clone(), nil
}

// CompareAndUpdate implements TaskStore.CompareAndUpdate.
func (s *MemoryTaskStore) CompareAndUpdate(
	ctx context.Context,
	task *domain.Task,
	expectedVersion int64,
) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[task.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID)
	}

	if current.Version != expectedVersion {
		return fmt.Errorf("%w: task %s expected version %d, have %d",
			ErrVersionConflict, task.ID, expectedVersion, current.Version)
	}

	task.Version = expectedVersion + 1
	s.tasks[task.ID] = task.Clone()
	return nil
}

// Delete implements TaskStore.Delete. Non-terminal tasks are never evicted.
func (s *MemoryTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if !task.IsTerminal() {
		return fmt.Errorf("%w: task %s is %s", ErrTaskNotTerminal, id, task.State)
	}

	delete(s.tasks, id)
	return nil
}

// List implements TaskStore.List.
func (s *MemoryTaskStore) List(ctx context.Context, limit int) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
