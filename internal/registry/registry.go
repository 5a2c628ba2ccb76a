// Package registry holds the in-memory model of workspaces and chat
// sessions mirrored from the host editor's session store, enriched with
// the persona, project, issue, and tool-usage tracking the store itself
// does not carry.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/config"
	"github.com/brianly1003/aidesk/internal/domain"
	"github.com/brianly1003/aidesk/internal/pathutil"
)

// LoadedToolsProvider exposes the tool names currently loaded in this
// process. The registry only reads it to backfill effective tool counts;
// it never loads or unloads tools itself.
type LoadedToolsProvider interface {
	EffectiveToolNames() map[string]struct{}
}

// Restorer loads a single workspace from the persisted snapshot. It is
// injected by the persistence layer so the registry stays storage-agnostic.
type Restorer func(workspaceID string) (*Workspace, bool)

// CleanupResult counts what a staleness pass removed.
type CleanupResult struct {
	SessionsRemoved   int
	WorkspacesRemoved int
}

// Registry is the process-wide workspace map. All structural mutation goes
// through its mutex; individual sessions carry their own locks.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace

	personaToolCounts map[string]int

	projects       *config.ProjectsConfig
	defaultPersona string

	restorer      Restorer
	toolsProvider LoadedToolsProvider

	inflight map[string]struct{}
	closed   bool
}

// New creates an empty registry. projects may be nil when no project roots
// are configured.
func New(projects *config.ProjectsConfig, defaultPersona string) *Registry {
	if projects == nil {
		projects = &config.ProjectsConfig{}
	}
	return &Registry{
		workspaces:        make(map[string]*Workspace),
		personaToolCounts: make(map[string]int),
		projects:          projects,
		defaultPersona:    defaultPersona,
		inflight:          make(map[string]struct{}),
	}
}

// DefaultPersona returns the persona assigned to sessions created without
// an explicit one.
func (r *Registry) DefaultPersona() string { return r.defaultPersona }

// SetRestorer installs the single-workspace disk restore hook.
func (r *Registry) SetRestorer(fn Restorer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restorer = fn
}

// SetToolsProvider installs the loaded-tools collaborator.
func (r *Registry) SetToolsProvider(p LoadedToolsProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolsProvider = p
}

// Resolve returns the workspace for an identifier, creating it on first
// sight. Lookup order: in-memory map, single-workspace disk restore, fresh
// workspace with project auto-detection. With ensureSession set an empty
// workspace gets a default "Auto-created" session; read-only callers pass
// false so a query never mutates state.
func (r *Registry) Resolve(identifier string, ensureSession bool) (*Workspace, error) {
	id := pathutil.NormalizeWorkspaceID(identifier)
	if id == "" {
		return nil, domain.ErrEmptyWorkspaceID
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, domain.ErrRegistryShutDown
	}

	w, ok := r.workspaces[id]
	if !ok && r.restorer != nil {
		if restored, found := r.restorer(id); found {
			r.workspaces[restored.ID()] = restored
			w = restored
			ok = true
			log.Debug().Str("workspace", restored.ID()).
				Int("sessions", restored.SessionCount()).
				Msg("Workspace restored from snapshot")
		}
	}
	if !ok {
		w = NewWorkspace(id)
		if name, found := r.projects.DetectProject(id); found {
			w.SetProject(name, true)
		}
		r.workspaces[id] = w
		log.Info().Str("workspace", id).Msg("Workspace registered")
	}
	r.mu.Unlock()

	w.Touch()

	if ensureSession && w.SessionCount() == 0 {
		if _, err := w.CreateSession(CreateSessionParams{
			Persona: r.defaultPersona,
			Name:    "Auto-created",
		}); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// AdoptWorkspace inserts an already-built workspace (full-restore path).
// An existing workspace with the same id is left in place.
func (r *Registry) AdoptWorkspace(w *Workspace) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workspaces[w.ID()]; exists {
		return false
	}
	r.workspaces[w.ID()] = w
	return true
}

// Workspace returns a workspace by identifier without creating it.
func (r *Registry) Workspace(identifier string) (*Workspace, bool) {
	id := pathutil.NormalizeWorkspaceID(identifier)
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workspaces[id]
	return w, ok
}

// RemoveWorkspace deletes a workspace and everything in it.
func (r *Registry) RemoveWorkspace(identifier string) error {
	id := pathutil.NormalizeWorkspaceID(identifier)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workspaces[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrWorkspaceNotFound, id)
	}
	delete(r.workspaces, id)
	log.Info().Str("workspace", id).Msg("Workspace removed")
	return nil
}

// Workspaces returns all workspaces sorted by identifier.
func (r *Registry) Workspaces() []*Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workspace, 0, len(r.workspaces))
	for _, w := range r.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// WorkspaceIDs returns all workspace identifiers sorted.
func (r *Registry) WorkspaceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.workspaces))
	for id := range r.workspaces {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear drops every workspace. Test hook.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workspaces = make(map[string]*Workspace)
	r.inflight = make(map[string]struct{})
}

// Shutdown marks the registry closed; Resolve refuses new workspaces
// afterwards. Existing workspaces stay readable for the final save.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// BeginReconcile claims the per-workspace reconcile slot. Reconciliation
// for one workspace is not re-entrant; a second pass while one is in
// flight gets ErrReconcileInFlight.
func (r *Registry) BeginReconcile(workspaceID string) error {
	id := pathutil.NormalizeWorkspaceID(workspaceID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return fmt.Errorf("%w: %s", domain.ErrReconcileInFlight, id)
	}
	r.inflight[id] = struct{}{}
	return nil
}

// EndReconcile releases the slot claimed by BeginReconcile.
func (r *Registry) EndReconcile(workspaceID string) {
	id := pathutil.NormalizeWorkspaceID(workspaceID)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
}

// SetPersonaToolCount records the last-known tool count for a persona.
func (r *Registry) SetPersonaToolCount(persona string, count int) {
	if persona == "" || count <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personaToolCounts[persona] = count
}

// PersonaToolCount returns the last-known tool count for a persona.
func (r *Registry) PersonaToolCount(persona string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.personaToolCounts[persona]
	return n, ok
}

// BackfillToolCount fills a session's tool count when it has none: the
// live loaded-tools set wins when available, otherwise the persona cache.
func (r *Registry) BackfillToolCount(s *Session) {
	if s.EffectiveToolCount() > 0 {
		return
	}

	r.mu.RLock()
	provider := r.toolsProvider
	cached, haveCached := r.personaToolCounts[s.Persona()]
	r.mu.RUnlock()

	if provider != nil {
		if names := provider.EffectiveToolNames(); len(names) > 0 {
			s.SetDynamicToolCount(len(names))
			r.SetPersonaToolCount(s.Persona(), len(names))
			return
		}
	}
	if haveCached {
		s.SetStaticToolCount(cached)
	}
}

// CleanupStale removes stale sessions, then stale empty workspaces, in
// that order. externalIDs maps workspace id to the set of session ids the
// external store currently lists; a nil set means the store could not be
// queried, so no session is removed for that workspace (absence of an
// answer is not an answer of absence). Externally listed sessions always
// survive regardless of age.
func (r *Registry) CleanupStale(sessionMaxAge, workspaceMaxAge time.Duration, externalIDs map[string]map[string]struct{}) CleanupResult {
	var res CleanupResult

	for _, w := range r.Workspaces() {
		external, known := externalIDs[w.ID()]
		if !known || external == nil {
			continue
		}
		if n := w.pruneStaleSessions(sessionMaxAge, external); n > 0 {
			res.SessionsRemoved += n
			log.Debug().Str("workspace", w.ID()).Int("removed", n).
				Msg("Stale sessions pruned")
		}
	}

	r.mu.Lock()
	for id, w := range r.workspaces {
		if w.SessionCount() == 0 && w.IsStale(workspaceMaxAge) {
			delete(r.workspaces, id)
			res.WorkspacesRemoved++
			log.Info().Str("workspace", id).Msg("Stale empty workspace removed")
		}
	}
	r.mu.Unlock()

	return res
}
