// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrWorkspaceNotFound   = errors.New("workspace not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrDuplicateSession    = errors.New("session id already exists")
	ErrSourceUnavailable   = errors.New("external source unavailable")
	ErrSnapshotVersion     = errors.New("unsupported snapshot version")
	ErrSnapshotCorrupt     = errors.New("snapshot file is corrupt")
	ErrReconcileInFlight   = errors.New("reconciliation already in flight for workspace")
	ErrRegistryShutDown    = errors.New("registry has been shut down")
	ErrHubNotRunning       = errors.New("event hub is not running")
	ErrSubscriberClosed    = errors.New("subscriber is closed")
	ErrEmptyWorkspaceID    = errors.New("workspace identifier cannot be empty")
)

// Error codes for client responses.
const (
	ErrCodeWorkspaceNotFound = "WORKSPACE_NOT_FOUND"
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeDuplicateSession  = "DUPLICATE_SESSION"
	ErrCodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	ErrCodeInvalidPayload    = "INVALID_PAYLOAD"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// SourceError represents a failure querying the host editor's chat store.
// Callers must treat it as "no answer this tick", never as an empty result.
type SourceError struct {
	Op          string // Operation that failed
	WorkspaceID string
	Err         error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("chatstore %s (%s): %v", e.Op, e.WorkspaceID, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a new SourceError.
func NewSourceError(op, workspaceID string, err error) *SourceError {
	return &SourceError{Op: op, WorkspaceID: workspaceID, Err: err}
}

// PersistError represents a snapshot read or write failure.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// NewPersistError creates a new PersistError.
func NewPersistError(op, path string, err error) *PersistError {
	return &PersistError{Op: op, Path: path, Err: err}
}
