// Package events defines all event types used in aidesk.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Registry events
	EventTypeSessionAdded   EventType = "session_added"
	EventTypeSessionRemoved EventType = "session_removed"
	EventTypeSessionRenamed EventType = "session_renamed"
	EventTypeFocusChanged   EventType = "focus_changed"

	// Workspace events
	EventTypeWorkspaceAdded   EventType = "workspace_added"
	EventTypeWorkspaceRemoved EventType = "workspace_removed"

	// Scheduler events
	EventTypeReconcileComplete EventType = "reconcile_complete"
	EventTypeSnapshotSaved     EventType = "snapshot_saved"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)

	// GetWorkspaceID returns the workspace ID (may be empty).
	GetWorkspaceID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType   EventType   `json:"event"`
	EventTime   time.Time   `json:"timestamp"`
	WorkspaceID string      `json:"workspace_id,omitempty"`
	Payload     interface{} `json:"payload"`
}

// NewEvent creates a new BaseEvent with the current timestamp.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType { return e.EventType }

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time { return e.EventTime }

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

// GetWorkspaceID returns the workspace ID.
func (e *BaseEvent) GetWorkspaceID() string { return e.WorkspaceID }

// WithWorkspace sets the workspace context and returns the event.
func (e *BaseEvent) WithWorkspace(workspaceID string) *BaseEvent {
	e.WorkspaceID = workspaceID
	return e
}

// SessionPayload is the payload for session_added/removed/renamed events.
type SessionPayload struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name,omitempty"`
	OldName   string `json:"old_name,omitempty"`
}

// WorkspacePayload is the payload for workspace_added/removed events.
type WorkspacePayload struct {
	WorkspaceID string `json:"workspace_id"`
}

// FocusChangedPayload is the payload for focus_changed events.
type FocusChangedPayload struct {
	SessionID     string `json:"session_id"`
	PrevSessionID string `json:"prev_session_id,omitempty"`
}

// ReconcileCompletePayload is the payload for reconcile_complete events.
type ReconcileCompletePayload struct {
	Added   int  `json:"added"`
	Removed int  `json:"removed"`
	Renamed int  `json:"renamed"`
	Updated int  `json:"updated"`
	Deep    bool `json:"deep"`
}

// SnapshotSavedPayload is the payload for snapshot_saved events.
type SnapshotSavedPayload struct {
	Path       string `json:"path"`
	Workspaces int    `json:"workspaces"`
	Sessions   int    `json:"sessions"`
}

// NewSessionAddedEvent creates a session_added event for a workspace.
func NewSessionAddedEvent(workspaceID, sessionID, name string) *BaseEvent {
	return NewEvent(EventTypeSessionAdded, SessionPayload{
		SessionID: sessionID,
		Name:      name,
	}).WithWorkspace(workspaceID)
}

// NewSessionRemovedEvent creates a session_removed event for a workspace.
func NewSessionRemovedEvent(workspaceID, sessionID string) *BaseEvent {
	return NewEvent(EventTypeSessionRemoved, SessionPayload{
		SessionID: sessionID,
	}).WithWorkspace(workspaceID)
}

// NewSessionRenamedEvent creates a session_renamed event for a workspace.
func NewSessionRenamedEvent(workspaceID, sessionID, oldName, newName string) *BaseEvent {
	return NewEvent(EventTypeSessionRenamed, SessionPayload{
		SessionID: sessionID,
		Name:      newName,
		OldName:   oldName,
	}).WithWorkspace(workspaceID)
}

// NewWorkspaceAddedEvent creates a workspace_added event.
func NewWorkspaceAddedEvent(workspaceID string) *BaseEvent {
	return NewEvent(EventTypeWorkspaceAdded, WorkspacePayload{
		WorkspaceID: workspaceID,
	}).WithWorkspace(workspaceID)
}

// NewWorkspaceRemovedEvent creates a workspace_removed event.
func NewWorkspaceRemovedEvent(workspaceID string) *BaseEvent {
	return NewEvent(EventTypeWorkspaceRemoved, WorkspacePayload{
		WorkspaceID: workspaceID,
	}).WithWorkspace(workspaceID)
}

// NewFocusChangedEvent creates a focus_changed event for a workspace.
func NewFocusChangedEvent(workspaceID, sessionID, prevSessionID string) *BaseEvent {
	return NewEvent(EventTypeFocusChanged, FocusChangedPayload{
		SessionID:     sessionID,
		PrevSessionID: prevSessionID,
	}).WithWorkspace(workspaceID)
}

// NewReconcileCompleteEvent creates a reconcile_complete event.
func NewReconcileCompleteEvent(workspaceID string, added, removed, renamed, updated int, deep bool) *BaseEvent {
	return NewEvent(EventTypeReconcileComplete, ReconcileCompletePayload{
		Added:   added,
		Removed: removed,
		Renamed: renamed,
		Updated: updated,
		Deep:    deep,
	}).WithWorkspace(workspaceID)
}

// NewSnapshotSavedEvent creates a snapshot_saved event.
func NewSnapshotSavedEvent(path string, workspaces, sessions int) *BaseEvent {
	return NewEvent(EventTypeSnapshotSaved, SnapshotSavedPayload{
		Path:       path,
		Workspaces: workspaces,
		Sessions:   sessions,
	})
}
