package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brianly1003/aidesk/internal/domain"
	"github.com/brianly1003/aidesk/internal/pathutil"
)

// Workspace is one externally-tracked working location. It owns its session
// map and the active-session pointer; at most one session is active at a
// time, and the pointer is always either empty or a key of the map.
type Workspace struct {
	id string

	project             string
	projectAutoDetected bool

	sessions        map[string]*Session
	activeSessionID string

	createdAt    time.Time
	lastActivity time.Time

	mu sync.RWMutex
}

// NewWorkspace creates an empty workspace for a normalized identifier.
func NewWorkspace(id string) *Workspace {
	now := time.Now().UTC()
	return &Workspace{
		id:           pathutil.NormalizeWorkspaceID(id),
		sessions:     make(map[string]*Session),
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the workspace identifier.
func (w *Workspace) ID() string { return w.id }

// Touch advances the last-activity timestamp.
func (w *Workspace) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastActivity = time.Now().UTC()
}

// LastActivity returns the last-activity timestamp.
func (w *Workspace) LastActivity() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastActivity
}

// CreatedAt returns the creation timestamp.
func (w *Workspace) CreatedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.createdAt
}

// IsStale reports whether the workspace has seen no activity for maxAge.
func (w *Workspace) IsStale(maxAge time.Duration) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return time.Since(w.lastActivity) > maxAge
}

// Project returns the workspace-level default project and whether it was
// auto-detected from the workspace path.
func (w *Workspace) Project() (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.project, w.projectAutoDetected
}

// SetProject sets the workspace-level default project.
func (w *Workspace) SetProject(project string, autoDetected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.project = project
	w.projectAutoDetected = autoDetected
}

// CreateSessionParams carries the optional inputs for CreateSession.
type CreateSessionParams struct {
	Persona string
	Name    string
	// Project overrides the workspace default when non-empty.
	Project string
	// ExplicitID pins the session identity; empty means the caller has no
	// preference (an external id hint or a generated uuid is used instead).
	ExplicitID string
	// ExternalID is the host editor's currently focused session id, used
	// to keep local and external identities aligned.
	ExternalID string
	// ExternalName accompanies ExternalID.
	ExternalName string
}

// CreateSession creates a session and makes it the active one. Identity
// preference: explicit id, then the external focus hint, then a random uuid.
func (w *Workspace) CreateSession(p CreateSessionParams) (*Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := p.ExplicitID
	name := p.Name
	if id == "" && p.ExternalID != "" {
		id = p.ExternalID
		if name == "" {
			name = p.ExternalName
		}
	}
	if id == "" {
		id = uuid.New().String()
	}

	if _, exists := w.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateSession, id)
	}

	s := NewSession(id, w.id)
	s.SetPersona(p.Persona)
	s.SetName(name)

	if p.Project != "" {
		s.SetProject(p.Project, false)
	} else if w.project != "" {
		s.SetProject(w.project, w.projectAutoDetected)
	}

	w.sessions[id] = s
	w.activeSessionID = id
	w.lastActivity = time.Now().UTC()

	return s, nil
}

// AdoptSession inserts an already-built session (restore path). It does not
// change the active pointer.
func (w *Workspace) AdoptSession(s *Session) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.sessions[s.ID()]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateSession, s.ID())
	}
	w.sessions[s.ID()] = s
	return nil
}

// RemoveSession deletes a session. When the removed session was active, the
// most-recently-active remaining session becomes active (or none).
func (w *Workspace) RemoveSession(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removeSessionLocked(id)
}

func (w *Workspace) removeSessionLocked(id string) error {
	if _, ok := w.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	delete(w.sessions, id)

	if w.activeSessionID == id {
		w.activeSessionID = w.mostRecentlyActiveLocked()
	}
	w.lastActivity = time.Now().UTC()
	return nil
}

// mostRecentlyActiveLocked returns the id of the session with the newest
// last-activity timestamp, or empty when no sessions remain.
func (w *Workspace) mostRecentlyActiveLocked() string {
	var best string
	var bestAt time.Time
	for id, s := range w.sessions {
		if at := s.LastActivity(); best == "" || at.After(bestAt) {
			best = id
			bestAt = at
		}
	}
	return best
}

// pruneStaleSessions removes sessions that are both stale and absent from
// the external id set. Unlike RemoveSession it does not bump last-activity,
// so a workspace does not look fresh merely because cleanup ran.
func (w *Workspace) pruneStaleSessions(maxAge time.Duration, external map[string]struct{}) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for id, s := range w.sessions {
		if !s.IsStale(maxAge) {
			continue
		}
		if _, listed := external[id]; listed {
			continue
		}
		delete(w.sessions, id)
		removed++
	}
	if removed > 0 {
		if _, ok := w.sessions[w.activeSessionID]; !ok {
			w.activeSessionID = w.mostRecentlyActiveLocked()
		}
	}
	return removed
}

// SetActiveSession switches the active session. Returns false (and leaves
// state untouched) when the id is unknown.
func (w *Workspace) SetActiveSession(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.sessions[id]; !ok {
		return false
	}
	w.activeSessionID = id
	w.lastActivity = time.Now().UTC()
	return true
}

// ActiveSessionID returns the active session id, or empty.
func (w *Workspace) ActiveSessionID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.activeSessionID
}

// ActiveSession returns the active session, or nil for an empty workspace.
func (w *Workspace) ActiveSession() *Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.activeSessionID == "" {
		return nil
	}
	return w.sessions[w.activeSessionID]
}

// Session returns a session by id.
func (w *Workspace) Session(id string) (*Session, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[id]
	return s, ok
}

// Sessions returns all sessions in unspecified order.
func (w *Workspace) Sessions() []*Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		out = append(out, s)
	}
	return out
}

// SessionIDs returns the set of known session ids.
func (w *Workspace) SessionIDs() map[string]struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]struct{}, len(w.sessions))
	for id := range w.sessions {
		out[id] = struct{}{}
	}
	return out
}

// SessionCount returns the number of sessions.
func (w *Workspace) SessionCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

// Persona is a read-through accessor delegating to the active session.
// Returns empty when the workspace has no active session.
func (w *Workspace) Persona() string {
	if s := w.ActiveSession(); s != nil {
		return s.Persona()
	}
	return ""
}

// IssueKey is a read-through accessor delegating to the active session.
func (w *Workspace) IssueKey() string {
	if s := w.ActiveSession(); s != nil {
		return s.IssueKey()
	}
	return ""
}

// Branch is a read-through accessor delegating to the active session.
func (w *Workspace) Branch() string {
	if s := w.ActiveSession(); s != nil {
		return s.Branch()
	}
	return ""
}

// WorkspaceState is the serializable snapshot of a workspace.
type WorkspaceState struct {
	ID                  string                  `json:"workspace_uri"`
	Project             string                  `json:"project,omitempty"`
	ProjectAutoDetected bool                    `json:"is_auto_detected,omitempty"`
	ActiveSessionID     string                  `json:"active_session_id,omitempty"`
	Sessions            map[string]SessionState `json:"sessions"`
	CreatedAt           time.Time               `json:"created_at"`
	LastActivity        time.Time               `json:"last_activity"`
}

// State returns a serializable snapshot of the workspace and its sessions.
func (w *Workspace) State() WorkspaceState {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st := WorkspaceState{
		ID:                  w.id,
		Project:             w.project,
		ProjectAutoDetected: w.projectAutoDetected,
		ActiveSessionID:     w.activeSessionID,
		Sessions:            make(map[string]SessionState, len(w.sessions)),
		CreatedAt:           w.createdAt,
		LastActivity:        w.lastActivity,
	}
	for id, s := range w.sessions {
		st.Sessions[id] = s.State()
	}
	return st
}

// NewWorkspaceFromState reconstructs a workspace from a persisted snapshot.
// An active pointer naming a missing session is dropped rather than
// restored (invariant guard).
func NewWorkspaceFromState(st WorkspaceState) *Workspace {
	w := NewWorkspace(st.ID)
	w.project = st.Project
	w.projectAutoDetected = st.ProjectAutoDetected
	if !st.CreatedAt.IsZero() {
		w.createdAt = st.CreatedAt
	}
	if !st.LastActivity.IsZero() {
		w.lastActivity = st.LastActivity
	}

	for id, ss := range st.Sessions {
		if ss.ID == "" {
			ss.ID = id
		}
		if ss.WorkspaceID == "" {
			ss.WorkspaceID = w.id
		}
		w.sessions[ss.ID] = NewSessionFromState(ss)
	}

	if _, ok := w.sessions[st.ActiveSessionID]; ok {
		w.activeSessionID = st.ActiveSessionID
	}
	return w
}
