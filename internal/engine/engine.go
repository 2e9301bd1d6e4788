package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/quizsmith/quizsmith-api/internal/domain"
	"github.com/quizsmith/quizsmith-api/internal/generation"
	"github.com/quizsmith/quizsmith-api/internal/store"
	"github.com/quizsmith/quizsmith-api/internal/task"
)

// Errors surfaced synchronously to callers of the engine's public
// operations.
var (
	// ErrInvalidInput is returned by Submit for empty or oversized text.
	// The task is never created.
	ErrInvalidInput = errors.New("invalid submission input")

	// ErrTaskNotFound is returned by GetStatus and Cancel for unknown task
	// IDs.
	ErrTaskNotFound = errors.New("task not found")

	// ErrOverloaded is returned by Submit when the execution queue is full.
	ErrOverloaded = errors.New("engine is overloaded, try again later")

	// ErrInternal indicates a concurrency bug: transitions on one task kept
	// conflicting even after re-reading.
	ErrInternal = errors.New("internal engine error")
)

// jobTypeQuizGeneration identifies the engine's only job type on the worker
// pool.
const jobTypeQuizGeneration = "quiz_generation"

// Config holds the engine's knobs.
type Config struct {
	// MaxInputBytes is the largest accepted submission, in bytes.
	MaxInputBytes int

	// WorkerCount is the number of concurrent synthesis workers.
	WorkerCount int

	// QueueSize is the buffer size of the dispatch queue.
	QueueSize int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxInputBytes: 100_000,
		WorkerCount:   4,
		QueueSize:     64,
	}
}

// Engine is the task lifecycle engine. Submit never blocks on synthesis:
// it persists a submitted task, schedules exactly one execution attempt on
// the worker pool and returns. GetStatus and Cancel are safe to call
// concurrently with an in-flight execution for the same task.
type Engine struct {
	store     store.TaskStore
	generator generation.Generator
	queue     *task.Queue
	pool      *task.WorkerPool
	config    Config
	logger    *slog.Logger

	// cancels maps in-flight task IDs to the cancel function of their
	// execution context, so Cancel can signal cooperative abandonment.
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// New creates an Engine with the given store, generator and configuration.
func New(
	taskStore store.TaskStore,
	generator generation.Generator,
	config Config,
	logger *slog.Logger,
) (*Engine, error) {
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.MaxInputBytes <= 0 {
		config.MaxInputBytes = DefaultConfig().MaxInputBytes
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	queue := task.NewQueue(config.QueueSize, logger)
	pool := task.NewWorkerPool(queue, task.WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)

	return &Engine{
		store:     taskStore,
		generator: generator,
		queue:     queue,
		pool:      pool,
		config:    config,
		logger:    logger.With("component", "engine"),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
	}, nil
}

// Start recovers tasks left over from a previous run and launches the
// worker pool.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.recover(ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	e.pool.Start()
	return nil
}

// Stop closes the dispatch queue and shuts down the worker pool, canceling
// in-flight synthesis.
func (e *Engine) Stop() {
	e.queue.Close()
	e.pool.Stop()
}

// Submit validates the input text, creates a task in the submitted state,
// persists it and schedules exactly one execution attempt. It returns the
// new task snapshot immediately, never blocking on synthesis.
func (e *Engine) Submit(ctx context.Context, text string) (*domain.Task, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}
	if len(text) > e.config.MaxInputBytes {
		return nil, fmt.Errorf("%w: text exceeds %d bytes", ErrInvalidInput, e.config.MaxInputBytes)
	}

	t, err := domain.NewTask(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := e.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	if err := e.queue.Enqueue(&synthesisJob{engine: e, taskID: t.ID}); err != nil {
		// The task record exists but will never execute. Record the
		// overload as a terminal failure so pollers are not left with a
		// task stuck in submitted forever.
		failErr := e.applyTransition(ctx, t.ID, func(t *domain.Task) error {
			return t.Fail(generation.CauseInternal, "execution queue full at submission")
		})
		if failErr != nil {
			e.logger.Error("failed to fail task after enqueue rejection",
				"task_id", t.ID, "error", failErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrOverloaded, err)
	}

	e.logger.Info("task submitted", "task_id", t.ID, "input_bytes", len(text))
	return t.Clone(), nil
}

// GetStatus returns a consistent point-in-time snapshot of the task.
func (e *Engine) GetStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := e.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return nil, err
	}
	return t, nil
}

// List returns snapshots of the most recently created tasks, newest first.
func (e *Engine) List(ctx context.Context, limit int) ([]*domain.Task, error) {
	return e.store.List(ctx, limit)
}

// Cancel requests cancellation of a task. A task still in the submitted
// state transitions to canceled immediately. A working task is canceled
// cooperatively: the in-flight synthesis is signaled and the transition
// happens once it acknowledges abandonment. Cancel on a terminal task is a
// no-op; the current snapshot is returned unchanged.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := e.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return nil, err
	}

	if t.IsTerminal() {
		return t, nil
	}

	err = e.applyTransition(ctx, id, func(t *domain.Task) error {
		if t.IsTerminal() {
			// Completion won the race; cancellation is void.
			return errSkipWrite
		}

		t.CancelRequested = true
		if t.State == domain.TaskStateSubmitted {
			return t.TransitionTo(domain.TaskStateCanceled)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Signal the in-flight synthesis, if any. The executing job observes
	// the signal at its next checkpoint and performs the working->canceled
	// transition itself.
	e.mu.Lock()
	if cancel, ok := e.cancels[id]; ok {
		cancel()
	}
	e.mu.Unlock()

	e.logger.Info("task cancellation requested", "task_id", id)
	return e.store.GetByID(ctx, id)
}

// recover handles tasks left behind by a previous process. Submitted tasks
// are re-dispatched (at-least-once scheduling); working tasks lost their
// execution and are failed so pollers are not stranded.
func (e *Engine) recover(ctx context.Context) error {
	tasks, err := e.store.List(ctx, 0)
	if err != nil {
		return err
	}

	var requeued, failed int
	for _, t := range tasks {
		switch t.State {
		case domain.TaskStateSubmitted:
			if err := e.queue.Enqueue(&synthesisJob{engine: e, taskID: t.ID}); err != nil {
				e.logger.Error("failed to requeue submitted task",
					"task_id", t.ID, "error", err)
				continue
			}
			requeued++
		case domain.TaskStateWorking:
			err := e.applyTransition(ctx, t.ID, func(t *domain.Task) error {
				if t.State != domain.TaskStateWorking {
					return errSkipWrite
				}
				return t.Fail(generation.CauseInternal, "execution interrupted by restart")
			})
			if err != nil {
				e.logger.Error("failed to fail interrupted task",
					"task_id", t.ID, "error", err)
				continue
			}
			failed++
		}
	}

	if requeued > 0 || failed > 0 {
		e.logger.Info("recovered unfinished tasks",
			"requeued", requeued,
			"failed_interrupted", failed)
	}
	return nil
}

// errSkipWrite is returned by a mutate callback to abort applyTransition
// without writing, leaving the stored record untouched.
var errSkipWrite = errors.New("skip write")

// applyTransition loads the task, applies mutate and writes it back with a
// version check. On a version conflict it re-reads and retries once; a
// second conflict indicates a concurrency bug and escalates to ErrInternal.
func (e *Engine) applyTransition(
	ctx context.Context,
	id uuid.UUID,
	mutate func(*domain.Task) error,
) error {
	const attempts = 2

	var lastErr error
	for i := 0; i < attempts; i++ {
		t, err := e.store.GetByID(ctx, id)
		if err != nil {
			return err
		}

		expected := t.Version
		if err := mutate(t); err != nil {
			if errors.Is(err, errSkipWrite) {
				return nil
			}
			return err
		}

		err = e.store.CompareAndUpdate(ctx, t, expected)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: repeated version conflicts on task %s: %v", ErrInternal, id, lastErr)
}
