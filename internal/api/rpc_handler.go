package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/quizsmith/quizsmith-api/internal/domain"
)

// defaultListLimit bounds tasks/list when the client omits a limit.
const defaultListLimit = 20

// TaskEngine defines the engine operations the gateway delegates to.
type TaskEngine interface {
	// Submit creates and schedules a new task for the given text.
	Submit(ctx context.Context, text string) (*domain.Task, error)

	// GetStatus returns a point-in-time snapshot of the task.
	GetStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Cancel requests cancellation and returns the resulting snapshot.
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns recent task snapshots, newest first.
	List(ctx context.Context, limit int) ([]*domain.Task, error)
}

// RPCHandler handles the JSON-RPC task protocol endpoint. It holds no state
// of its own; every call is a pure translation plus one engine call.
type RPCHandler struct {
	engine    TaskEngine
	validator *validator.Validate
	logger    *slog.Logger
}

// NewRPCHandler creates a new RPCHandler.
func NewRPCHandler(engine TaskEngine, logger *slog.Logger) *RPCHandler {
	return &RPCHandler{
		engine:    engine,
		validator: validator.New(),
		logger:    logger.With("component", "rpc_handler"),
	}
}

// HandleRPC handles POST /rpc requests carrying one JSON-RPC envelope.
func (h *RPCHandler) HandleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, nil, &rpcError{Code: codeParseError, Message: "invalid JSON"})
		return
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		h.writeError(w, req.ID, &rpcError{Code: codeInvalidRequest, Message: "invalid request envelope"})
		return
	}

	switch req.Method {
	case methodSubmit:
		h.handleSubmit(w, r, req)
	case methodGet:
		h.handleGet(w, r, req)
	case methodCancel:
		h.handleCancel(w, r, req)
	case methodList:
		h.handleList(w, r, req)
	default:
		h.writeError(w, req.ID, &rpcError{
			Code:    codeMethodNotFound,
			Message: "unsupported method: " + req.Method,
		})
	}
}

// handleSubmit maps tasks/submit onto Engine.Submit.
func (h *RPCHandler) handleSubmit(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params SubmitParams
	if !h.decodeParams(w, req, &params) {
		return
	}

	t, err := h.engine.Submit(r.Context(), params.Text)
	if err != nil {
		h.writeEngineError(w, req.ID, req.Method, err)
		return
	}

	h.writeResult(w, req.ID, SubmitResult{TaskID: t.ID.String(), State: string(t.State)})
}

// handleGet maps tasks/get onto Engine.GetStatus.
func (h *RPCHandler) handleGet(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	id, ok := h.decodeTaskRef(w, req)
	if !ok {
		return
	}

	t, err := h.engine.GetStatus(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, req.ID, req.Method, err)
		return
	}

	h.writeResult(w, req.ID, taskToResult(t))
}

// handleCancel maps tasks/cancel onto Engine.Cancel. Canceling a task that
// already reached a terminal state is not an error; the unchanged state is
// returned.
func (h *RPCHandler) handleCancel(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	id, ok := h.decodeTaskRef(w, req)
	if !ok {
		return
	}

	t, err := h.engine.Cancel(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, req.ID, req.Method, err)
		return
	}

	h.writeResult(w, req.ID, CancelResult{TaskID: t.ID.String(), State: string(t.State)})
}

// handleList maps tasks/list onto Engine.List.
func (h *RPCHandler) handleList(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	params := ListParams{Limit: defaultListLimit}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			h.writeError(w, req.ID, &rpcError{Code: codeInvalidParams, Message: "malformed params"})
			return
		}
		if params.Limit <= 0 {
			params.Limit = defaultListLimit
		}
	}

	tasks, err := h.engine.List(r.Context(), params.Limit)
	if err != nil {
		h.writeEngineError(w, req.ID, req.Method, err)
		return
	}

	out := ListResult{Tasks: make([]TaskResult, len(tasks))}
	for i, t := range tasks {
		out.Tasks[i] = taskToResult(t)
	}

	h.writeResult(w, req.ID, out)
}

// decodeParams unmarshals and validates the request params into v. On
// failure it writes an invalid-params error and returns false.
func (h *RPCHandler) decodeParams(w http.ResponseWriter, req rpcRequest, v interface{}) bool {
	if len(req.Params) == 0 {
		h.writeError(w, req.ID, &rpcError{Code: codeInvalidParams, Message: "missing params"})
		return false
	}

	if err := json.Unmarshal(req.Params, v); err != nil {
		h.writeError(w, req.ID, &rpcError{Code: codeInvalidParams, Message: "malformed params"})
		return false
	}

	if err := h.validator.Struct(v); err != nil {
		h.writeError(w, req.ID, &rpcError{
			Code:    codeInvalidParams,
			Message: "validation error: " + err.Error(),
		})
		return false
	}

	return true
}

// decodeTaskRef decodes the task_id param shared by tasks/get and
// tasks/cancel.
func (h *RPCHandler) decodeTaskRef(w http.ResponseWriter, req rpcRequest) (uuid.UUID, bool) {
	var params TaskRefParams
	if !h.decodeParams(w, req, &params) {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(params.TaskID)
	if err != nil {
		h.writeError(w, req.ID, &rpcError{Code: codeInvalidParams, Message: "invalid task_id"})
		return uuid.Nil, false
	}

	return id, true
}

// writeEngineError logs the engine error and writes its external mapping.
func (h *RPCHandler) writeEngineError(w http.ResponseWriter, id json.RawMessage, method string, err error) {
	rpcErr := mapError(err)

	level := slog.LevelDebug
	if rpcErr.Code == codeInternalError {
		level = slog.LevelError
	}
	h.logger.Log(context.Background(), level, "engine call failed",
		"method", method,
		"rpc_code", rpcErr.Code,
		"error", err)

	h.writeError(w, id, rpcErr)
}

// writeResult writes a successful JSON-RPC response.
func (h *RPCHandler) writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	h.writeResponse(w, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

// writeError writes a JSON-RPC error response.
func (h *RPCHandler) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *rpcError) {
	h.writeResponse(w, rpcResponse{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

// writeResponse serializes one envelope. JSON-RPC errors still ride on
// HTTP 200; transport-level failures are the server's concern, not the
// protocol's.
func (h *RPCHandler) writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}
