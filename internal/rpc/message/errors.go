package message

import "encoding/json"

// Standard JSON-RPC 2.0 error codes.
const (
	// ParseError indicates invalid JSON was received.
	ParseError = -32700

	// InvalidRequest indicates the JSON is not a valid Request object.
	InvalidRequest = -32600

	// MethodNotFound indicates the method does not exist.
	MethodNotFound = -32601

	// InvalidParams indicates invalid method parameters.
	InvalidParams = -32602

	// InternalError indicates an internal JSON-RPC error.
	InternalError = -32603
)

// aidesk-specific error codes (-32001 to -32050).
const (
	// Registry errors
	WorkspaceNotFound = -32001
	SessionNotFound   = -32002
	DuplicateSession  = -32003
	ReconcileBusy     = -32004

	// External store errors
	StoreUnavailable = -32010

	// Persistence errors
	SnapshotFailed = -32020
)

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new JSON-RPC error.
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithData creates a new JSON-RPC error with additional data.
func NewErrorWithData(code int, message string, data interface{}) *Error {
	err := &Error{
		Code:    code,
		Message: message,
	}

	if data != nil {
		if d, e := json.Marshal(data); e == nil {
			err.Data = d
		}
	}

	return err
}

// ErrParseError creates a parse error.
func ErrParseError(message string) *Error {
	if message == "" {
		message = "Parse error"
	}
	return NewError(ParseError, message)
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	if message == "" {
		message = "Invalid Request"
	}
	return NewError(InvalidRequest, message)
}

// ErrMethodNotFound creates a method not found error.
func ErrMethodNotFound(method string) *Error {
	return NewError(MethodNotFound, "Method not found: "+method)
}

// ErrInvalidParams creates an invalid params error.
func ErrInvalidParams(message string) *Error {
	if message == "" {
		message = "Invalid params"
	}
	return NewError(InvalidParams, message)
}

// ErrInternalError creates an internal error.
func ErrInternalError(message string) *Error {
	if message == "" {
		message = "Internal error"
	}
	return NewError(InternalError, message)
}

// ErrWorkspaceNotFound creates a workspace not found error.
func ErrWorkspaceNotFound(workspaceID string) *Error {
	return NewErrorWithData(WorkspaceNotFound, "Workspace not found", map[string]string{
		"workspace_id": workspaceID,
	})
}

// ErrSessionNotFound creates a session not found error.
func ErrSessionNotFound(sessionID string) *Error {
	return NewErrorWithData(SessionNotFound, "Session not found", map[string]string{
		"session_id": sessionID,
	})
}

// ErrDuplicateSession creates a duplicate session error.
func ErrDuplicateSession(sessionID string) *Error {
	return NewErrorWithData(DuplicateSession, "Session already exists", map[string]string{
		"session_id": sessionID,
	})
}

// ErrReconcileBusy creates a reconcile-in-flight error.
func ErrReconcileBusy(workspaceID string) *Error {
	return NewErrorWithData(ReconcileBusy, "Reconciliation already in flight", map[string]string{
		"workspace_id": workspaceID,
	})
}

// ErrStoreUnavailable creates a store unavailable error.
func ErrStoreUnavailable(message string) *Error {
	if message == "" {
		message = "External store unavailable"
	}
	return NewError(StoreUnavailable, message)
}

// ErrorCodeName returns a human-readable name for an error code.
func ErrorCodeName(code int) string {
	switch code {
	case ParseError:
		return "ParseError"
	case InvalidRequest:
		return "InvalidRequest"
	case MethodNotFound:
		return "MethodNotFound"
	case InvalidParams:
		return "InvalidParams"
	case InternalError:
		return "InternalError"
	case WorkspaceNotFound:
		return "WorkspaceNotFound"
	case SessionNotFound:
		return "SessionNotFound"
	case DuplicateSession:
		return "DuplicateSession"
	case ReconcileBusy:
		return "ReconcileBusy"
	case StoreUnavailable:
		return "StoreUnavailable"
	case SnapshotFailed:
		return "SnapshotFailed"
	default:
		return "UnknownError"
	}
}
