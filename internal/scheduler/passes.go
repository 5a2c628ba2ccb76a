package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/adapters/chatstore"
	"github.com/brianly1003/aidesk/internal/domain/events"
	"github.com/brianly1003/aidesk/internal/registry"
)

// syncAll is the startup pass: shallow reconcile for every known
// workspace, no content scanning, so state populates quickly before the
// loops refine it.
func (s *Scheduler) syncAll(ctx context.Context) {
	start := time.Now()
	for _, wsID := range s.reg.WorkspaceIDs() {
		if ctx.Err() != nil {
			return
		}
		s.reconcileWorkspace(ctx, wsID)
	}
	log.Info().
		Int("workspaces", len(s.reg.WorkspaceIDs())).
		Dur("elapsed", time.Since(start)).
		Msg("Startup sync complete")
}

// fastPass checks every workspace's store fingerprint and reacts to focus
// and count changes.
func (s *Scheduler) fastPass(ctx context.Context) {
	for _, wsID := range s.reg.WorkspaceIDs() {
		if ctx.Err() != nil {
			return
		}
		s.fastPassOne(ctx, wsID)
	}

	s.mu.Lock()
	s.stats.FastTicks++
	s.stats.LastFastPass = time.Now()
	s.mu.Unlock()
}

// fastPassOne runs the fast-tier check for one workspace.
func (s *Scheduler) fastPassOne(ctx context.Context, wsID string) {
	listCtx, cancel := context.WithTimeout(ctx, s.source.Timeout())
	listing, err := s.source.ListSessions(listCtx, wsID)
	cancel()
	if err != nil {
		// No answer is not an answer: skip this tick, keep local state.
		log.Warn().Err(err).Str("workspace", wsID).Msg("Store listing failed, skipping tick")
		return
	}
	if !listing.FingerprintChanged {
		return
	}

	s.mu.Lock()
	focusChanged := listing.FocusedID != "" && listing.FocusedID != s.lastFocus[wsID]
	countChanged := len(listing.Sessions) != s.lastCount[wsID]
	s.mu.Unlock()

	if countChanged {
		s.reconcileWorkspace(ctx, wsID)
	}
	if focusChanged {
		if !countChanged {
			// The focus step of reconciliation also records the switch.
			s.reconcileWorkspace(ctx, wsID)
		}
		// Awaited, not fired-and-forgotten: reconciliation for a workspace
		// must not run concurrently with itself.
		s.recentPass(ctx)
	}
}

// reconcileWorkspace runs the shallow reconcile (add/remove/rename/focus)
// for one workspace, guarded against re-entry.
func (s *Scheduler) reconcileWorkspace(ctx context.Context, wsID string) registry.Result {
	if err := s.reg.BeginReconcile(wsID); err != nil {
		log.Debug().Str("workspace", wsID).Msg("Reconcile already in flight, skipping")
		return registry.Result{}
	}
	defer s.reg.EndReconcile(wsID)

	listCtx, cancel := context.WithTimeout(ctx, s.source.Timeout())
	listing, err := s.source.ListSessions(listCtx, wsID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("workspace", wsID).Msg("Store listing failed, skipping reconcile")
		return registry.Result{}
	}

	w, err := s.reg.Resolve(wsID, false)
	if err != nil {
		log.Warn().Err(err).Str("workspace", wsID).Msg("Resolve failed")
		return registry.Result{}
	}

	prevFocus := w.ActiveSessionID()
	res := w.Reconcile(toExternal(listing.Sessions), listing.FocusedID, s.reg.DefaultPersona())

	s.mu.Lock()
	s.lastCount[wsID] = len(listing.Sessions)
	if listing.FocusedID != "" {
		s.lastFocus[wsID] = listing.FocusedID
	}
	s.mu.Unlock()

	if focused := w.ActiveSessionID(); focused != "" {
		s.NoteFocus(wsID, focused)
		if s.hub != nil && focused != prevFocus {
			s.hub.Publish(events.NewFocusChangedEvent(wsID, focused, prevFocus))
		}
	}

	if res.Dirty() {
		log.Debug().
			Str("workspace", wsID).
			Int("added", res.Added).
			Int("removed", res.Removed).
			Int("renamed", res.Renamed).
			Int("updated", res.Updated).
			Msg("Reconciled workspace")
		if s.hub != nil {
			for _, c := range res.AddedSessions {
				s.hub.Publish(events.NewSessionAddedEvent(wsID, c.ID, c.Name))
			}
			for _, c := range res.RemovedSessions {
				s.hub.Publish(events.NewSessionRemovedEvent(wsID, c.ID))
			}
			for _, c := range res.RenamedSessions {
				s.hub.Publish(events.NewSessionRenamedEvent(wsID, c.ID, c.OldName, c.Name))
			}
			s.hub.Publish(events.NewReconcileCompleteEvent(wsID, res.Added, res.Removed, res.Renamed, res.Updated, false))
		}
	}
	return res
}

// ReconcileNow forces an immediate shallow reconcile across all
// workspaces; the refresh RPC calls this.
func (s *Scheduler) ReconcileNow(ctx context.Context) registry.Result {
	var total registry.Result
	for _, wsID := range s.reg.WorkspaceIDs() {
		if ctx.Err() != nil {
			break
		}
		total.Merge(s.reconcileWorkspace(ctx, wsID))
	}
	return total
}

// recentPass deep-scans the most-recently-focused sessions, then writes
// the query file. Serialized so the fast loop's inline trigger cannot
// overlap a ticked pass.
func (s *Scheduler) recentPass(ctx context.Context) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	index := s.meetingIndex(ctx)
	for _, e := range s.recentList() {
		if ctx.Err() != nil {
			return
		}
		s.deepScan(ctx, e.workspaceID, e.sessionID, index)
	}

	s.writeQueryFile()

	s.mu.Lock()
	s.stats.RecentTicks++
	s.stats.LastRecentPass = time.Now()
	s.mu.Unlock()
}

// backgroundPass deep-scans sessions outside the recent list, one
// fixed-size batch per tick with a rotating offset so a large backlog is
// worked through incrementally.
func (s *Scheduler) backgroundPass(ctx context.Context) {
	defer s.cleanupStale(ctx)

	recent := make(map[focusEntry]struct{})
	for _, e := range s.recentList() {
		recent[e] = struct{}{}
	}

	var backlog []focusEntry
	for _, w := range s.reg.Workspaces() {
		for _, sess := range w.Sessions() {
			e := focusEntry{workspaceID: w.ID(), sessionID: sess.ID()}
			if _, hot := recent[e]; !hot {
				backlog = append(backlog, e)
			}
		}
	}
	if len(backlog) == 0 {
		return
	}

	batch := s.cfg.BackgroundBatch
	if batch <= 0 || batch > len(backlog) {
		batch = len(backlog)
	}

	s.mu.Lock()
	offset := s.bgOffset % len(backlog)
	s.bgOffset = (offset + batch) % len(backlog)
	s.mu.Unlock()

	index := s.meetingIndex(ctx)
	for i := 0; i < batch; i++ {
		if ctx.Err() != nil {
			return
		}
		e := backlog[(offset+i)%len(backlog)]
		s.deepScan(ctx, e.workspaceID, e.sessionID, index)
	}

	s.mu.Lock()
	s.stats.BackgroundTicks++
	s.mu.Unlock()
}

// cleanupStale removes sessions that are both stale and gone from the
// external store, then drops workspaces left empty long enough. A failed
// listing leaves that workspace's external set nil, which skips its
// session phase entirely.
func (s *Scheduler) cleanupStale(ctx context.Context) {
	if s.cfg.StaleSessionAge <= 0 || s.cfg.StaleWorkspaceAge <= 0 {
		return
	}

	before := s.reg.WorkspaceIDs()
	external := make(map[string]map[string]struct{}, len(before))
	for _, wsID := range before {
		listCtx, cancel := context.WithTimeout(ctx, s.source.Timeout())
		listing, err := s.source.ListSessions(listCtx, wsID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("workspace", wsID).Msg("listing failed, skipping cleanup for workspace")
			continue
		}
		ids := make(map[string]struct{}, len(listing.Sessions))
		for _, meta := range listing.Sessions {
			ids[meta.ID] = struct{}{}
		}
		external[wsID] = ids
	}

	res := s.reg.CleanupStale(s.cfg.StaleSessionAge, s.cfg.StaleWorkspaceAge, external)
	if res.SessionsRemoved == 0 && res.WorkspacesRemoved == 0 {
		return
	}
	log.Info().
		Int("sessions", res.SessionsRemoved).
		Int("workspaces", res.WorkspacesRemoved).
		Msg("stale cleanup")

	if res.WorkspacesRemoved > 0 {
		survivors := make(map[string]struct{})
		for _, wsID := range s.reg.WorkspaceIDs() {
			survivors[wsID] = struct{}{}
		}
		for _, wsID := range before {
			if _, ok := survivors[wsID]; ok {
				continue
			}
			if s.scans != nil {
				if err := s.scans.PruneWorkspace(wsID); err != nil {
					log.Warn().Err(err).Str("workspace", wsID).Msg("scan cache prune failed")
				}
			}
			if s.hub != nil {
				s.hub.Publish(events.NewWorkspaceRemovedEvent(wsID))
			}
		}
	}
}

// deepScan extracts hints and meeting references for one session, serving
// unchanged files from the scan cache.
func (s *Scheduler) deepScan(ctx context.Context, wsID, sessionID string, meetings map[string][]chatstore.MeetingEntry) {
	w, ok := s.reg.Workspace(wsID)
	if !ok {
		return
	}
	sess, ok := w.Session(sessionID)
	if !ok {
		return
	}

	hints, ok := s.extractHints(ctx, wsID, sessionID)
	if !ok {
		return
	}

	if w.ApplyHints(sessionID, hints) > 0 && hints.Persona != "" {
		s.reg.BackfillToolCount(sess)
	}
	if len(meetings) > 0 {
		w.ApplyMeetings(sessionID, toMeetingEntries(meetings))
	}

	s.mu.Lock()
	s.stats.DeepScans++
	s.mu.Unlock()
}

// extractHints reads the scan cache first; on a miss it fetches and parses
// the session content.
func (s *Scheduler) extractHints(ctx context.Context, wsID, sessionID string) (registry.Hints, bool) {
	mtime, size, err := s.source.FileStat(wsID, sessionID)
	if err != nil {
		return registry.Hints{}, false
	}

	if s.scans != nil {
		if cached, hit := s.scans.Get(sessionID, mtime.UnixNano(), size); hit {
			s.mu.Lock()
			s.stats.CacheHits++
			s.mu.Unlock()
			return registry.Hints{
				Persona:   cached.Persona,
				Project:   cached.Project,
				IssueKeys: cached.IssueKeys,
				UpdatedAt: mtime,
			}, true
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.source.Timeout())
	content, err := s.source.FetchContent(fetchCtx, wsID, sessionID)
	cancel()
	if err != nil {
		log.Debug().Err(err).Str("session", sessionID).Msg("Content fetch failed, skipping deep scan")
		return registry.Hints{}, false
	}

	extracted := chatstore.ExtractHints(content.Meta.Name, content.Messages)
	if s.scans != nil {
		if err := s.scans.Put(Entry{
			SessionID:   sessionID,
			WorkspaceID: wsID,
			Persona:     extracted.Persona,
			Project:     extracted.Project,
			IssueKeys:   extracted.IssueKeys,
			Mtime:       mtime.UnixNano(),
			Size:        size,
		}); err != nil {
			log.Debug().Err(err).Str("session", sessionID).Msg("Scan cache write failed")
		}
	}

	updatedAt := content.Meta.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = mtime
	}
	return registry.Hints{
		Persona:   extracted.Persona,
		Project:   extracted.Project,
		IssueKeys: extracted.IssueKeys,
		UpdatedAt: updatedAt,
	}, true
}

// meetingIndex fetches the store's meeting index; failures degrade to no
// meeting updates this pass.
func (s *Scheduler) meetingIndex(ctx context.Context) map[string][]chatstore.MeetingEntry {
	idxCtx, cancel := context.WithTimeout(ctx, s.source.Timeout())
	defer cancel()

	index, err := s.source.MeetingIndex(idxCtx)
	if err != nil {
		log.Debug().Err(err).Msg("Meeting index unavailable this pass")
		return nil
	}
	return index
}

func toExternal(metas []chatstore.SessionMeta) []registry.ExternalSession {
	out := make([]registry.ExternalSession, 0, len(metas))
	for _, m := range metas {
		out = append(out, registry.ExternalSession{
			ID:        m.ID,
			Name:      m.Name,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		})
	}
	return out
}

func toMeetingEntries(index map[string][]chatstore.MeetingEntry) map[string][]registry.MeetingEntry {
	out := make(map[string][]registry.MeetingEntry, len(index))
	for key, entries := range index {
		converted := make([]registry.MeetingEntry, 0, len(entries))
		for _, e := range entries {
			converted = append(converted, registry.MeetingEntry{
				MeetingID:  e.ID,
				Title:      e.Title,
				Date:       e.Date,
				MatchCount: e.MatchCount,
			})
		}
		out[key] = converted
	}
	return out
}
