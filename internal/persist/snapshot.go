// Package persist writes and restores the registry snapshot: a versioned
// JSON file replaced atomically so a crash mid-write never corrupts the
// previous snapshot.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/config"
	"github.com/brianly1003/aidesk/internal/domain"
	"github.com/brianly1003/aidesk/internal/pathutil"
	"github.com/brianly1003/aidesk/internal/registry"
)

// SnapshotVersion is the only version this reader accepts. Older snapshots
// restore nothing rather than being partially migrated.
const SnapshotVersion = 2

// staleEmptyWorkspaceAge is how old an empty workspace may be before a full
// restore skips it instead of resurrecting it.
const staleEmptyWorkspaceAge = 7 * 24 * time.Hour

type snapshotFile struct {
	Version    int                                `json:"version"`
	SavedAt    time.Time                          `json:"saved_at"`
	Workspaces map[string]registry.WorkspaceState `json:"workspaces"`
	// Sessions repeats every session flattened, for consumers that want the
	// list without walking the workspace map.
	Sessions []registry.SessionState `json:"sessions"`
}

// Store reads and writes snapshots at a fixed path.
type Store struct {
	path     string
	projects *config.ProjectsConfig
}

// NewStore creates a snapshot store. projects is used to re-derive each
// workspace's auto-detected project on restore.
func NewStore(path string, projects *config.ProjectsConfig) *Store {
	if projects == nil {
		projects = &config.ProjectsConfig{}
	}
	return &Store{path: path, projects: projects}
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Save serializes the full registry and atomically replaces the snapshot.
func (s *Store) Save(reg *registry.Registry) error {
	snap := snapshotFile{
		Version:    SnapshotVersion,
		SavedAt:    time.Now().UTC(),
		Workspaces: make(map[string]registry.WorkspaceState),
	}
	for _, w := range reg.Workspaces() {
		st := w.State()
		snap.Workspaces[st.ID] = st
		for _, ss := range st.Sessions {
			snap.Sessions = append(snap.Sessions, ss)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &domain.PersistError{Op: "save", Path: s.path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &domain.PersistError{Op: "save", Path: s.path, Err: err}
	}

	// Temp file in the target directory so the rename stays on one
	// filesystem and is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".registry-*.json")
	if err != nil {
		return &domain.PersistError{Op: "save", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &domain.PersistError{Op: "save", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &domain.PersistError{Op: "save", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return &domain.PersistError{Op: "save", Path: s.path, Err: err}
	}

	log.Debug().
		Str("path", s.path).
		Int("workspaces", len(snap.Workspaces)).
		Int("sessions", len(snap.Sessions)).
		Msg("Snapshot saved")
	return nil
}

// RestoreAll loads every workspace from the snapshot into the registry and
// returns how many it restored. A missing file restores nothing without
// error; an unsupported version or corrupt file restores nothing and leaves
// the registry untouched.
func (s *Store) RestoreAll(reg *registry.Registry) (int, error) {
	snap, err := s.read()
	if err != nil {
		return 0, err
	}
	if snap == nil {
		return 0, nil
	}

	restored := 0
	for _, st := range snap.Workspaces {
		w := s.rebuild(st)
		if w == nil {
			continue
		}
		if reg.AdoptWorkspace(w) {
			restored++
		}
	}

	log.Info().
		Str("path", s.path).
		Int("restored", restored).
		Time("saved_at", snap.SavedAt).
		Msg("Registry restored from snapshot")
	return restored, nil
}

// RestoreOne loads a single workspace by id, tolerating trailing-slash
// differences between the requested and persisted identifiers.
func (s *Store) RestoreOne(workspaceID string) (*registry.Workspace, bool) {
	snap, err := s.read()
	if err != nil || snap == nil {
		return nil, false
	}

	for id, st := range snap.Workspaces {
		if !pathutil.SameWorkspaceID(id, workspaceID) {
			continue
		}
		if w := s.rebuild(st); w != nil {
			return w, true
		}
		return nil, false
	}
	return nil, false
}

// read parses the snapshot file. (nil, nil) means no snapshot exists.
func (s *Store) read() (*snapshotFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.PersistError{Op: "restore", Path: s.path, Err: err}
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &domain.PersistError{Op: "restore", Path: s.path,
			Err: fmt.Errorf("%w: %v", domain.ErrSnapshotCorrupt, err)}
	}
	if snap.Version != SnapshotVersion {
		return nil, &domain.PersistError{Op: "restore", Path: s.path,
			Err: fmt.Errorf("%w: found %d, want %d", domain.ErrSnapshotVersion, snap.Version, SnapshotVersion)}
	}
	return &snap, nil
}

// rebuild turns a persisted workspace into a live one. The auto-detected
// project is re-derived from the current project roots instead of trusted
// verbatim, which self-heals after configuration changes. Empty workspaces
// past the staleness threshold are dropped.
func (s *Store) rebuild(st registry.WorkspaceState) *registry.Workspace {
	if len(st.Sessions) == 0 && time.Since(st.LastActivity) > staleEmptyWorkspaceAge {
		log.Debug().Str("workspace", st.ID).Msg("Skipping stale empty workspace")
		return nil
	}

	w := registry.NewWorkspaceFromState(st)
	if st.ProjectAutoDetected || st.Project == "" {
		if name, found := s.projects.DetectProject(w.ID()); found {
			w.SetProject(name, true)
		} else {
			w.SetProject("", false)
		}
	}
	return w
}
