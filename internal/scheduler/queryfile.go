package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// QueryState is the external-facing partial snapshot the recent loop
// writes after each pass, so out-of-process consumers can read current
// state without speaking RPC.
type QueryState struct {
	SavedAt    time.Time        `json:"saved_at"`
	Workspaces []QueryWorkspace `json:"workspaces"`
}

// QueryWorkspace is one workspace in the query file.
type QueryWorkspace struct {
	ID              string         `json:"workspace_uri"`
	Project         string         `json:"project,omitempty"`
	ActiveSessionID string         `json:"active_session_id,omitempty"`
	Sessions        []QuerySession `json:"sessions"`
}

// QuerySession is one session in the query file, reduced to the fields
// consumers actually query on.
type QuerySession struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Persona      string    `json:"persona,omitempty"`
	Project      string    `json:"project,omitempty"`
	IssueKey     string    `json:"issue_key,omitempty"`
	Branch       string    `json:"branch,omitempty"`
	ToolCount    int       `json:"tool_count"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *Scheduler) writeQueryFile() {
	if s.cfg.QueryFilePath == "" {
		return
	}

	state := QueryState{SavedAt: time.Now().UTC()}
	for _, w := range s.reg.Workspaces() {
		qw := QueryWorkspace{
			ID:              w.ID(),
			ActiveSessionID: w.ActiveSessionID(),
		}
		qw.Project, _ = w.Project()
		for _, sess := range w.Sessions() {
			qw.Sessions = append(qw.Sessions, QuerySession{
				ID:           sess.ID(),
				Name:         sess.Name(),
				Persona:      sess.Persona(),
				IssueKey:     sess.IssueKey(),
				Branch:       sess.Branch(),
				ToolCount:    sess.EffectiveToolCount(),
				LastActivity: sess.LastActivity(),
			})
			if p, _ := sess.Project(); p != "" {
				qw.Sessions[len(qw.Sessions)-1].Project = p
			}
		}
		state.Workspaces = append(state.Workspaces, qw)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Query state marshal failed")
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.QueryFilePath), 0755); err != nil {
		log.Warn().Err(err).Msg("Query state directory create failed")
		return
	}
	// Best effort, same atomic dance as the registry snapshot.
	tmp := s.cfg.QueryFilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Warn().Err(err).Msg("Query state write failed")
		return
	}
	if err := os.Rename(tmp, s.cfg.QueryFilePath); err != nil {
		log.Warn().Err(err).Msg("Query state replace failed")
	}
}
