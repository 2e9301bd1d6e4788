package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/quizsmith/quizsmith-api/internal/domain"
	"github.com/quizsmith/quizsmith-api/internal/generation"
)

// synthesisJob is the single execution attempt scheduled for a submitted
// task. It implements task.Job; the worker pool drives Execute.
type synthesisJob struct {
	engine *Engine
	taskID uuid.UUID
}

// ID returns the job's unique identifier.
func (j *synthesisJob) ID() uuid.UUID {
	return j.taskID
}

// Type returns the job type identifier.
func (j *synthesisJob) Type() string {
	return jobTypeQuizGeneration
}

// Execute runs the synthesis attempt for the task.
func (j *synthesisJob) Execute(ctx context.Context) error {
	return j.engine.runTask(ctx, j.taskID)
}

// runTask drives one task from submitted through working to a terminal
// state. Any error it returns has already been recorded on the task record
// where possible; the return value exists for logging by the pool.
func (e *Engine) runTask(ctx context.Context, id uuid.UUID) error {
	// Dispatch: submitted -> working, unless the task was canceled before
	// a worker picked it up.
	var abandoned bool
	err := e.applyTransition(ctx, id, func(t *domain.Task) error {
		if t.IsTerminal() {
			abandoned = true
			return errSkipWrite
		}
		if t.CancelRequested {
			abandoned = true
			return t.TransitionTo(domain.TaskStateCanceled)
		}
		return t.TransitionTo(domain.TaskStateWorking)
	})
	if err != nil {
		return err
	}
	if abandoned {
		e.logger.Info("task canceled before dispatch", "task_id", id)
		return nil
	}

	// Register the cancel signal for this execution, then re-check the
	// cancel flag: a Cancel that landed between the transition above and
	// the registration would otherwise go unseen.
	taskCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, id)
		e.mu.Unlock()
		cancel()
	}()

	t, err := e.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.CancelRequested {
		cancel()
	}

	quiz, synthErr := e.generator.Synthesize(taskCtx, t.InputText)

	if synthErr == nil {
		// If cancellation was requested but synthesis already produced a
		// result, completion wins.
		return e.applyTransition(ctx, id, func(t *domain.Task) error {
			if t.IsTerminal() {
				return errSkipWrite
			}
			return t.Complete(quiz)
		})
	}

	if errors.Is(synthErr, context.Canceled) {
		return e.applyTransition(ctx, id, func(t *domain.Task) error {
			if t.IsTerminal() {
				return errSkipWrite
			}
			if t.CancelRequested {
				return t.TransitionTo(domain.TaskStateCanceled)
			}
			return t.Fail(generation.CauseInternal, "synthesis aborted by shutdown")
		})
	}

	code := generation.CauseCode(synthErr)
	e.logger.Error("synthesis failed",
		"task_id", id,
		"cause", code,
		"error", synthErr)

	return e.applyTransition(ctx, id, func(t *domain.Task) error {
		if t.IsTerminal() {
			return errSkipWrite
		}
		return t.Fail(code, synthErr.Error())
	})
}
