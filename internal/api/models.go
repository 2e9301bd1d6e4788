package api

import (
	"encoding/json"
	"time"

	"github.com/quizsmith/quizsmith-api/internal/domain"
)

// Supported envelope operations.
const (
	methodSubmit = "tasks/submit"
	methodGet    = "tasks/get"
	methodCancel = "tasks/cancel"
	methodList   = "tasks/list"
)

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SubmitParams is the params payload of tasks/submit.
type SubmitParams struct {
	Text string `json:"text" validate:"required,min=1"`
}

// TaskRefParams identifies a task for tasks/get and tasks/cancel.
type TaskRefParams struct {
	TaskID string `json:"task_id" validate:"required,uuid"`
}

// ListParams is the params payload of tasks/list. Params may be omitted
// entirely, in which case a default limit applies.
type ListParams struct {
	Limit int `json:"limit" validate:"gte=0"`
}

// SubmitResult is the result payload of tasks/submit.
type SubmitResult struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// CancelResult is the result payload of tasks/cancel.
type CancelResult struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// TaskResult is the snapshot payload of tasks/get and the element type of
// tasks/list. Result is present only for completed tasks, Error only for
// failed ones.
type TaskResult struct {
	TaskID    string           `json:"task_id"`
	State     string           `json:"state"`
	Result    *QuizResult      `json:"result,omitempty"`
	Error     *TaskErrorResult `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ListResult is the result payload of tasks/list.
type ListResult struct {
	Tasks []TaskResult `json:"tasks"`
}

// QuizResult is the external representation of a completed quiz.
type QuizResult struct {
	Questions []QuestionResult `json:"questions"`
}

// QuestionResult is the external representation of one question. Options
// are labeled A-D by position.
type QuestionResult struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// TaskErrorResult is the structured error of a failed task.
type TaskErrorResult struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// taskToResult converts a domain task snapshot into its external
// representation.
func taskToResult(t *domain.Task) TaskResult {
	out := TaskResult{
		TaskID:    t.ID.String(),
		State:     string(t.State),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}

	if t.State == domain.TaskStateCompleted && t.Result != nil {
		quiz := &QuizResult{Questions: make([]QuestionResult, len(t.Result.Questions))}
		for i, q := range t.Result.Questions {
			quiz.Questions[i] = QuestionResult(q)
		}
		out.Result = quiz
	}

	if t.State == domain.TaskStateFailed && t.Error != nil {
		out.Error = &TaskErrorResult{Code: t.Error.Code, Message: t.Error.Message}
	}

	return out
}
