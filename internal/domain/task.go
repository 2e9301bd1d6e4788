package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a quiz-generation task.
type TaskState string

// Possible task states, in transition order.
const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

// Task-specific validation and transition errors
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskInput    = errors.New("task input text cannot be empty")
	ErrInvalidTaskState  = errors.New("invalid task state")
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrTaskTerminal      = errors.New("task is in a terminal state")
	ErrResultWithoutCompletion = errors.New(
		"task result may only be set on a completed task",
	)
	ErrErrorWithoutFailure = errors.New("task error may only be set on a failed task")
)

// TaskError is the structured error recorded on a failed task.
// Code is one of the synthesis cause codes surfaced to polling clients.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Task is the unit of asynchronous quiz-generation work. A task is created
// in the submitted state and moves monotonically through the state machine:
//
//	submitted -> working -> completed | failed
//	submitted -> canceled
//	working   -> canceled
//
// Completed, failed and canceled are terminal. Version is a monotonically
// increasing counter used by stores for optimistic concurrency control.
type Task struct {
	ID              uuid.UUID  `json:"id"`
	State           TaskState  `json:"state"`
	InputText       string     `json:"input_text"`
	Result          *Quiz      `json:"result,omitempty"`
	Error           *TaskError `json:"error,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Version         int64      `json:"version"`
}

// NewTask creates a new Task in the submitted state for the given input text.
// It generates a new UUID for the task ID and sets the creation/update
// timestamps. Returns an error if validation fails.
func NewTask(inputText string) (*Task, error) {
	task := &Task{
		ID:        uuid.New(),
		State:     TaskStateSubmitted,
		InputText: inputText,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		Version:   1,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.InputText == "" {
		return ErrEmptyTaskInput
	}

	if !isValidTaskState(t.State) {
		return ErrInvalidTaskState
	}

	if t.Result != nil && t.State != TaskStateCompleted {
		return ErrResultWithoutCompletion
	}

	if t.Error != nil && t.State != TaskStateFailed {
		return ErrErrorWithoutFailure
	}

	return nil
}

// IsTerminal reports whether the task has reached a state with no outgoing
// transitions.
func (t *Task) IsTerminal() bool {
	return t.State.IsTerminal()
}

// IsTerminal reports whether the state has no outgoing transitions.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine permits moving from s to
// next.
func (s TaskState) CanTransition(next TaskState) bool {
	switch s {
	case TaskStateSubmitted:
		return next == TaskStateWorking || next == TaskStateCanceled
	case TaskStateWorking:
		return next == TaskStateCompleted || next == TaskStateFailed ||
			next == TaskStateCanceled
	default:
		// Terminal states have no outgoing transitions.
		return false
	}
}

// TransitionTo moves the task to the given state and refreshes the UpdatedAt
// timestamp. Returns ErrTaskTerminal if the task has already reached a
// terminal state, or ErrInvalidTransition if the state machine does not
// permit the move.
func (t *Task) TransitionTo(state TaskState) error {
	if !isValidTaskState(state) {
		return ErrInvalidTaskState
	}

	if t.IsTerminal() {
		return ErrTaskTerminal
	}

	if !t.State.CanTransition(state) {
		return ErrInvalidTransition
	}

	t.State = state
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete transitions the task to the completed state and records the quiz
// artifact. The quiz must satisfy its structural invariants.
func (t *Task) Complete(quiz *Quiz) error {
	if quiz == nil {
		return ErrResultWithoutCompletion
	}

	if err := quiz.Validate(); err != nil {
		return err
	}

	if err := t.TransitionTo(TaskStateCompleted); err != nil {
		return err
	}

	t.Result = quiz
	return nil
}

// Fail transitions the task to the failed state and records the structured
// error that polling clients will observe.
func (t *Task) Fail(code, message string) error {
	if err := t.TransitionTo(TaskStateFailed); err != nil {
		return err
	}

	t.Error = &TaskError{Code: code, Message: message}
	return nil
}

// Clone returns a deep copy of the task. Stores hand out clones so that
// callers never observe partial mutation of a shared record.
func (t *Task) Clone() *Task {
	clone := *t

	if t.Result != nil {
		clone.Result = t.Result.Clone()
	}

	if t.Error != nil {
		errCopy := *t.Error
		clone.Error = &errCopy
	}

	return &clone
}

// isValidTaskState checks if the given state is a valid TaskState.
func isValidTaskState(state TaskState) bool {
	switch state {
	case TaskStateSubmitted, TaskStateWorking, TaskStateCompleted,
		TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}
