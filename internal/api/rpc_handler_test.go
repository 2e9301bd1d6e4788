package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/quizsmith/quizsmith-api/internal/domain"
	"github.com/quizsmith/quizsmith-api/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEngine implements TaskEngine with per-method stubs.
type mockEngine struct {
	submitFn func(ctx context.Context, text string) (*domain.Task, error)
	getFn    func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	cancelFn func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	listFn   func(ctx context.Context, limit int) ([]*domain.Task, error)
}

func (m *mockEngine) Submit(ctx context.Context, text string) (*domain.Task, error) {
	return m.submitFn(ctx, text)
}

func (m *mockEngine) GetStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return m.getFn(ctx, id)
}

func (m *mockEngine) Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return m.cancelFn(ctx, id)
}

func (m *mockEngine) List(ctx context.Context, limit int) ([]*domain.Task, error) {
	return m.listFn(ctx, limit)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQuiz(t *testing.T) *domain.Quiz {
	t.Helper()

	quiz := &domain.Quiz{Questions: make([]domain.Question, domain.QuizQuestionCount)}
	for i := range quiz.Questions {
		quiz.Questions[i] = domain.Question{
			Prompt: fmt.Sprintf("What is fact number %d?", i),
			Options: []string{
				fmt.Sprintf("Right %d", i),
				fmt.Sprintf("Wrong %d-a", i),
				fmt.Sprintf("Wrong %d-b", i),
				fmt.Sprintf("Wrong %d-c", i),
			},
			CorrectIndex: 0,
			Explanation:  fmt.Sprintf("Option A states fact number %d.", i),
		}
	}
	require.NoError(t, quiz.Validate())
	return quiz
}

// callRPC posts one envelope and decodes the response.
func callRPC(t *testing.T, h *RPCHandler, body string) (*httptest.ResponseRecorder, rpcResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.HandleRPC(rec, req)

	var resp rpcResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

// resultInto re-marshals the generic result into a typed payload.
func resultInto(t *testing.T, resp rpcResponse, v interface{}) {
	t.Helper()

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestHandleRPCSubmit(t *testing.T) {
	task, err := domain.NewTask("The water cycle has three phases.")
	require.NoError(t, err)

	eng := &mockEngine{
		submitFn: func(ctx context.Context, text string) (*domain.Task, error) {
			assert.Equal(t, "The water cycle has three phases.", text)
			return task, nil
		},
	}
	h := NewRPCHandler(eng, testLogger())

	rec, resp := callRPC(t, h, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/submit",
		"params": {"text": "The water cycle has three phases."}
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, json.RawMessage("1"), resp.ID)

	var result SubmitResult
	resultInto(t, resp, &result)
	assert.Equal(t, task.ID.String(), result.TaskID)
	assert.Equal(t, "submitted", result.State)
}

func TestHandleRPCSubmitEmptyText(t *testing.T) {
	h := NewRPCHandler(&mockEngine{}, testLogger())

	_, resp := callRPC(t, h, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/submit",
		"params": {"text": ""}
	}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestHandleRPCSubmitMissingParams(t *testing.T) {
	h := NewRPCHandler(&mockEngine{}, testLogger())

	_, resp := callRPC(t, h, `{"jsonrpc": "2.0", "id": 1, "method": "tasks/submit"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestHandleRPCSubmitOverloaded(t *testing.T) {
	eng := &mockEngine{
		submitFn: func(ctx context.Context, text string) (*domain.Task, error) {
			return nil, engine.ErrOverloaded
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/submit",
		"params": {"text": "some text"}
	}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeOverloaded, resp.Error.Code)
}

func TestHandleRPCGetCompletedTask(t *testing.T) {
	task, err := domain.NewTask("some text")
	require.NoError(t, err)
	require.NoError(t, task.TransitionTo(domain.TaskStateWorking))
	require.NoError(t, task.Complete(testQuiz(t)))

	eng := &mockEngine{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
			assert.Equal(t, task.ID, id)
			return task, nil
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 7,
		"method": "tasks/get",
		"params": {"task_id": %q}
	}`, task.ID))

	require.Nil(t, resp.Error)

	var result TaskResult
	resultInto(t, resp, &result)
	assert.Equal(t, "completed", result.State)
	require.NotNil(t, result.Result)
	assert.Len(t, result.Result.Questions, domain.QuizQuestionCount)
	assert.Nil(t, result.Error)
}

func TestHandleRPCGetFailedTaskCarriesError(t *testing.T) {
	task, err := domain.NewTask("some text")
	require.NoError(t, err)
	require.NoError(t, task.TransitionTo(domain.TaskStateWorking))
	require.NoError(t, task.Fail("timeout", "synthesis time budget exceeded"))

	eng := &mockEngine{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
			return task, nil
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 7,
		"method": "tasks/get",
		"params": {"task_id": %q}
	}`, task.ID))

	require.Nil(t, resp.Error)

	var result TaskResult
	resultInto(t, resp, &result)
	assert.Equal(t, "failed", result.State)
	assert.Nil(t, result.Result)
	require.NotNil(t, result.Error)
	assert.Equal(t, "timeout", result.Error.Code)
}

func TestHandleRPCGetUnknownTask(t *testing.T) {
	eng := &mockEngine{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
			return nil, fmt.Errorf("%w: %s", engine.ErrTaskNotFound, id)
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/get",
		"params": {"task_id": %q}
	}`, uuid.New()))

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeTaskNotFound, resp.Error.Code)
	assert.Equal(t, "task not found", resp.Error.Message)
}

func TestHandleRPCGetMalformedTaskID(t *testing.T) {
	h := NewRPCHandler(&mockEngine{}, testLogger())

	_, resp := callRPC(t, h, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/get",
		"params": {"task_id": "not-a-uuid"}
	}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestHandleRPCCancel(t *testing.T) {
	task, err := domain.NewTask("some text")
	require.NoError(t, err)
	require.NoError(t, task.TransitionTo(domain.TaskStateCanceled))

	eng := &mockEngine{
		cancelFn: func(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
			return task, nil
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/cancel",
		"params": {"task_id": %q}
	}`, task.ID))

	require.Nil(t, resp.Error)

	var result CancelResult
	resultInto(t, resp, &result)
	assert.Equal(t, "canceled", result.State)
}

func TestHandleRPCCancelTerminalTaskReturnsState(t *testing.T) {
	task, err := domain.NewTask("some text")
	require.NoError(t, err)
	require.NoError(t, task.TransitionTo(domain.TaskStateWorking))
	require.NoError(t, task.Complete(testQuiz(t)))

	eng := &mockEngine{
		cancelFn: func(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
			return task, nil
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/cancel",
		"params": {"task_id": %q}
	}`, task.ID))

	require.Nil(t, resp.Error)

	var result CancelResult
	resultInto(t, resp, &result)
	assert.Equal(t, "completed", result.State)
}

func TestHandleRPCList(t *testing.T) {
	first, err := domain.NewTask("first")
	require.NoError(t, err)
	second, err := domain.NewTask("second")
	require.NoError(t, err)

	var gotLimit int
	eng := &mockEngine{
		listFn: func(ctx context.Context, limit int) ([]*domain.Task, error) {
			gotLimit = limit
			return []*domain.Task{second, first}, nil
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, `{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/list",
		"params": {"limit": 5}
	}`)

	require.Nil(t, resp.Error)
	assert.Equal(t, 5, gotLimit)

	var result ListResult
	resultInto(t, resp, &result)
	require.Len(t, result.Tasks, 2)
	assert.Equal(t, second.ID.String(), result.Tasks[0].TaskID)
}

func TestHandleRPCListDefaultsLimit(t *testing.T) {
	var gotLimit int
	eng := &mockEngine{
		listFn: func(ctx context.Context, limit int) ([]*domain.Task, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, `{"jsonrpc": "2.0", "id": 1, "method": "tasks/list"}`)

	require.Nil(t, resp.Error)
	assert.Equal(t, defaultListLimit, gotLimit)
}

func TestHandleRPCParseError(t *testing.T) {
	h := NewRPCHandler(&mockEngine{}, testLogger())

	rec, resp := callRPC(t, h, `{not json`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}

func TestHandleRPCInvalidEnvelope(t *testing.T) {
	h := NewRPCHandler(&mockEngine{}, testLogger())

	_, resp := callRPC(t, h, `{"jsonrpc": "1.0", "id": 1, "method": "tasks/get"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestHandleRPCMethodNotFound(t *testing.T) {
	h := NewRPCHandler(&mockEngine{}, testLogger())

	_, resp := callRPC(t, h, `{"jsonrpc": "2.0", "id": 1, "method": "tasks/destroy"}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestHandleRPCInternalErrorIsSanitized(t *testing.T) {
	eng := &mockEngine{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
			return nil, fmt.Errorf("store blew up: secret connection string")
		},
	}
	h := NewRPCHandler(eng, testLogger())

	_, resp := callRPC(t, h, fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tasks/get",
		"params": {"task_id": %q}
	}`, uuid.New()))

	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInternalError, resp.Error.Code)
	assert.Equal(t, "internal error", resp.Error.Message)
	assert.NotContains(t, resp.Error.Message, "secret")
}
