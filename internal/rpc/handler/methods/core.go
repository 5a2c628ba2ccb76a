// Package methods implements the RPC method handlers.
package methods

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/domain"
	"github.com/brianly1003/aidesk/internal/domain/events"
	"github.com/brianly1003/aidesk/internal/domain/ports"
	"github.com/brianly1003/aidesk/internal/registry"
	"github.com/brianly1003/aidesk/internal/rpc/handler"
	"github.com/brianly1003/aidesk/internal/rpc/message"
	"github.com/brianly1003/aidesk/internal/scheduler"
)

// Refresher is the slice of the scheduler the RPC layer needs.
type Refresher interface {
	ReconcileNow(ctx context.Context) registry.Result
	Stats() scheduler.Stats
}

// FocusProvider reports which external session the editor currently has
// focused for a workspace. *chatstore.Store satisfies it.
type FocusProvider interface {
	FocusedSession(ctx context.Context, workspaceID string) (id, name string, ok bool)
}

// Saver persists the registry after structural mutations.
type Saver interface {
	Save(reg *registry.Registry) error
}

// CoreService implements the registry query and mutation methods.
type CoreService struct {
	reg       *registry.Registry
	refresher Refresher // may be nil (tests)
	focus     FocusProvider
	saver     Saver
	hub       ports.EventHub // may be nil
	version   string
	startedAt time.Time
}

// NewCoreService creates the core method service.
func NewCoreService(reg *registry.Registry, refresher Refresher, focus FocusProvider, saver Saver, eventHub ports.EventHub, version string) *CoreService {
	return &CoreService{
		reg:       reg,
		refresher: refresher,
		focus:     focus,
		saver:     saver,
		hub:       eventHub,
		version:   version,
		startedAt: time.Now(),
	}
}

func (s *CoreService) publish(e events.Event) {
	if s.hub != nil {
		s.hub.Publish(e)
	}
}

// persist writes a snapshot after a structural mutation. Failures are
// logged, not surfaced: the mutation itself already succeeded.
func (s *CoreService) persist() {
	if s.saver == nil {
		return
	}
	if err := s.saver.Save(s.reg); err != nil {
		log.Warn().Err(err).Msg("post-mutation snapshot save failed")
	}
}

// RegisterMethods registers all core methods.
func (s *CoreService) RegisterMethods(r *handler.Registry) {
	r.RegisterAll(map[string]handler.HandlerFunc{
		"state/get":        s.StateGet,
		"session/list":     s.SessionList,
		"session/search":   s.SessionSearch,
		"session/create":   s.SessionCreate,
		"session/remove":   s.SessionRemove,
		"session/focus":    s.SessionFocus,
		"registry/refresh": s.RegistryRefresh,
		"workspace/remove": s.WorkspaceRemove,
		"status/get":       s.StatusGet,
	})
}

// StateGetResult is the full registry dump.
type StateGetResult struct {
	Workspaces map[string]registry.WorkspaceState `json:"workspaces"`
	Count      int                                `json:"count"`
}

// StateGet returns the full registry state.
func (s *CoreService) StateGet(_ context.Context, _ json.RawMessage) (interface{}, *message.Error) {
	result := StateGetResult{Workspaces: make(map[string]registry.WorkspaceState)}
	for _, w := range s.reg.Workspaces() {
		st := w.State()
		result.Workspaces[st.ID] = st
		result.Count += len(st.Sessions)
	}
	return result, nil
}

// SessionListResult is the flattened session list.
type SessionListResult struct {
	Sessions []registry.SessionState `json:"sessions"`
	Count    int                     `json:"count"`
}

// SessionList returns every session across all workspaces, most recently
// active first.
func (s *CoreService) SessionList(_ context.Context, _ json.RawMessage) (interface{}, *message.Error) {
	var result SessionListResult
	for _, w := range s.reg.Workspaces() {
		for _, sess := range w.Sessions() {
			result.Sessions = append(result.Sessions, sess.State())
		}
	}
	sort.Slice(result.Sessions, func(i, j int) bool {
		return result.Sessions[i].LastActivity.After(result.Sessions[j].LastActivity)
	})
	result.Count = len(result.Sessions)
	return result, nil
}

// SessionCreateParams are the parameters for session/create.
type SessionCreateParams struct {
	WorkspaceID string `json:"workspace_id"`
	Persona     string `json:"persona,omitempty"`
	Name        string `json:"name,omitempty"`
	Project     string `json:"project,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// SessionCreate creates a session in a workspace, resolving the workspace
// first if it is unknown.
func (s *CoreService) SessionCreate(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p SessionCreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}
	if p.WorkspaceID == "" {
		return nil, message.ErrInvalidParams("workspace_id is required")
	}

	persona := p.Persona
	if persona == "" {
		persona = s.reg.DefaultPersona()
	}

	_, existed := s.reg.Workspace(p.WorkspaceID)
	w, err := s.reg.Resolve(p.WorkspaceID, false)
	if err != nil {
		return nil, message.ErrInternalError(err.Error())
	}
	if !existed {
		s.publish(events.NewWorkspaceAddedEvent(w.ID()))
	}

	// With no explicit id, reuse the editor's focused session identity so
	// the local and external ids stay aligned.
	var extID, extName string
	if p.SessionID == "" && s.focus != nil {
		if id, name, ok := s.focus.FocusedSession(ctx, w.ID()); ok {
			extID, extName = id, name
		}
	}

	sess, err := w.CreateSession(registry.CreateSessionParams{
		Persona:      persona,
		Name:         p.Name,
		Project:      p.Project,
		ExplicitID:   p.SessionID,
		ExternalID:   extID,
		ExternalName: extName,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateSession) {
			return nil, message.ErrDuplicateSession(p.SessionID)
		}
		return nil, message.ErrInternalError(err.Error())
	}
	s.publish(events.NewSessionAddedEvent(w.ID(), sess.ID(), sess.Name()))
	s.persist()
	return sess.State(), nil
}

// SessionRemoveParams are the parameters for session/remove.
type SessionRemoveParams struct {
	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id"`
}

// SessionRemove deletes a session.
func (s *CoreService) SessionRemove(_ context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p SessionRemoveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}

	w, ok := s.reg.Workspace(p.WorkspaceID)
	if !ok {
		return nil, message.ErrWorkspaceNotFound(p.WorkspaceID)
	}
	if err := w.RemoveSession(p.SessionID); err != nil {
		return nil, message.ErrSessionNotFound(p.SessionID)
	}
	s.publish(events.NewSessionRemovedEvent(w.ID(), p.SessionID))
	s.persist()
	return map[string]interface{}{
		"removed":           true,
		"active_session_id": w.ActiveSessionID(),
	}, nil
}

// SessionFocusParams are the parameters for session/focus.
type SessionFocusParams struct {
	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id"`
}

// SessionFocus switches a workspace's active session.
func (s *CoreService) SessionFocus(_ context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p SessionFocusParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}

	w, ok := s.reg.Workspace(p.WorkspaceID)
	if !ok {
		return nil, message.ErrWorkspaceNotFound(p.WorkspaceID)
	}
	prev := w.ActiveSessionID()
	if !w.SetActiveSession(p.SessionID) {
		return nil, message.ErrSessionNotFound(p.SessionID)
	}
	if p.SessionID != prev {
		s.publish(events.NewFocusChangedEvent(w.ID(), p.SessionID, prev))
	}
	s.persist()
	return map[string]bool{"focused": true}, nil
}

// RegistryRefresh triggers an immediate full reconciliation pass and
// returns the resulting counts.
func (s *CoreService) RegistryRefresh(ctx context.Context, _ json.RawMessage) (interface{}, *message.Error) {
	if s.refresher == nil {
		return nil, message.ErrInternalError("scheduler not running")
	}
	res := s.refresher.ReconcileNow(ctx)
	return map[string]int{
		"added":   res.Added,
		"removed": res.Removed,
		"renamed": res.Renamed,
		"updated": res.Updated,
	}, nil
}

// WorkspaceRemoveParams are the parameters for workspace/remove.
type WorkspaceRemoveParams struct {
	WorkspaceID string `json:"workspace_id"`
}

// WorkspaceRemove deletes a workspace and everything in it.
func (s *CoreService) WorkspaceRemove(_ context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p WorkspaceRemoveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, message.ErrInvalidParams(err.Error())
	}

	w, ok := s.reg.Workspace(p.WorkspaceID)
	if !ok {
		return nil, message.ErrWorkspaceNotFound(p.WorkspaceID)
	}
	if err := s.reg.RemoveWorkspace(p.WorkspaceID); err != nil {
		return nil, message.ErrWorkspaceNotFound(p.WorkspaceID)
	}
	s.publish(events.NewWorkspaceRemovedEvent(w.ID()))
	s.persist()
	return map[string]bool{"removed": true}, nil
}

// StatusGetResult is the daemon status summary.
type StatusGetResult struct {
	Version    string          `json:"version"`
	UptimeSecs int64           `json:"uptime_secs"`
	Workspaces int             `json:"workspaces"`
	Sessions   int             `json:"sessions"`
	Scheduler  scheduler.Stats `json:"scheduler"`
}

// StatusGet returns daemon health and activity counters.
func (s *CoreService) StatusGet(_ context.Context, _ json.RawMessage) (interface{}, *message.Error) {
	result := StatusGetResult{
		Version:    s.version,
		UptimeSecs: int64(time.Since(s.startedAt).Seconds()),
	}
	for _, w := range s.reg.Workspaces() {
		result.Workspaces++
		result.Sessions += w.SessionCount()
	}
	if s.refresher != nil {
		result.Scheduler = s.refresher.Stats()
	}
	return result, nil
}
