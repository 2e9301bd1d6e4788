package api

import (
	"errors"

	"github.com/quizsmith/quizsmith-api/internal/engine"
)

// JSON-RPC error codes. The -32xxx range below -32000 is reserved by the
// spec; the -320xx application codes follow the A2A task vocabulary.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeTaskNotFound   = -32001
	codeOverloaded     = -32002
)

// mapError translates an engine error into the external error vocabulary.
// Messages are sanitized: internal error details never reach the client.
func mapError(err error) *rpcError {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, engine.ErrTaskNotFound):
		return &rpcError{Code: codeTaskNotFound, Message: "task not found"}
	case errors.Is(err, engine.ErrOverloaded):
		return &rpcError{Code: codeOverloaded, Message: "engine overloaded, retry later"}
	default:
		return &rpcError{Code: codeInternalError, Message: "internal error"}
	}
}
