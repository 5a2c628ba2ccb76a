package registry

import (
	"sort"
	"time"
)

// ExternalSession is one session as reported by the host editor's store.
// The external store is authoritative for existence and naming but carries
// none of the enrichment this package maintains.
type ExternalSession struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Hints carries the signals a deep scan extracted from a session's content.
type Hints struct {
	Persona   string
	Project   string
	IssueKeys []string
	UpdatedAt time.Time
}

// MeetingEntry is one meeting-index record matched against an issue key.
type MeetingEntry struct {
	MeetingID  string
	Title      string
	Date       string
	MatchCount int
}

// SessionChange identifies one session touched by a reconciliation pass.
type SessionChange struct {
	ID      string
	Name    string
	OldName string
}

// Result counts what a reconciliation pass changed and lists the sessions
// behind the add/remove/rename counters so callers can emit per-session
// events. A second pass over the same snapshot reports all zeros.
type Result struct {
	Added   int
	Removed int
	Renamed int
	Updated int

	AddedSessions   []SessionChange
	RemovedSessions []SessionChange
	RenamedSessions []SessionChange
}

// Dirty reports whether the pass changed anything worth persisting.
func (r Result) Dirty() bool {
	return r.Added > 0 || r.Removed > 0 || r.Renamed > 0 || r.Updated > 0
}

// Merge adds the counters and change lists of another result into this one.
func (r *Result) Merge(other Result) {
	r.Added += other.Added
	r.Removed += other.Removed
	r.Renamed += other.Renamed
	r.Updated += other.Updated
	r.AddedSessions = append(r.AddedSessions, other.AddedSessions...)
	r.RemovedSessions = append(r.RemovedSessions, other.RemovedSessions...)
	r.RenamedSessions = append(r.RenamedSessions, other.RenamedSessions...)
}

// Reconcile aligns the workspace's session set with an external snapshot:
// sessions present externally but not locally are added, local sessions
// absent from the snapshot are removed, names follow the external store,
// and the active pointer follows the external focus when it names a known
// session. Enriched local state on surviving sessions is preserved.
func (w *Workspace) Reconcile(snapshot []ExternalSession, focusedID string, defaultPersona string) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	var res Result

	external := make(map[string]ExternalSession, len(snapshot))
	for _, ext := range snapshot {
		external[ext.ID] = ext
	}

	// Additions.
	for _, ext := range snapshot {
		if _, ok := w.sessions[ext.ID]; ok {
			continue
		}
		s := NewSession(ext.ID, w.id)
		s.SetPersona(defaultPersona)
		s.SetName(ext.Name)
		if !ext.CreatedAt.IsZero() {
			s.setCreatedAt(ext.CreatedAt)
		}
		if !ext.UpdatedAt.IsZero() {
			s.setLastActivity(ext.UpdatedAt)
		}
		if w.project != "" {
			s.SetProject(w.project, w.projectAutoDetected)
		}
		w.sessions[ext.ID] = s
		res.Added++
		res.AddedSessions = append(res.AddedSessions, SessionChange{ID: ext.ID, Name: s.Name()})
	}

	// Removals.
	for id, s := range w.sessions {
		if _, ok := external[id]; ok {
			continue
		}
		name := s.Name()
		delete(w.sessions, id)
		if w.activeSessionID == id {
			w.activeSessionID = ""
		}
		res.Removed++
		res.RemovedSessions = append(res.RemovedSessions, SessionChange{ID: id, Name: name})
	}

	// Renames. The placeholder name normalizes to empty, so a snapshot that
	// flips between "unnamed" and "" does not churn.
	for id, ext := range external {
		s := w.sessions[id]
		oldName := s.Name()
		if s.SetName(ext.Name) {
			res.Renamed++
			res.RenamedSessions = append(res.RenamedSessions, SessionChange{ID: id, OldName: oldName, Name: s.Name()})
		}
		if !ext.UpdatedAt.IsZero() && s.TouchAt(ext.UpdatedAt) {
			res.Updated++
		}
	}

	// Focus. The external focus wins when it names a known session; an
	// unknown or empty focus keeps the current active session, falling back
	// to the most-recently-active one when that pointer dangles.
	target := w.activeSessionID
	if _, ok := w.sessions[focusedID]; ok {
		target = focusedID
	} else if _, ok := w.sessions[target]; !ok {
		target = w.mostRecentlyActiveLocked()
	}
	if target != w.activeSessionID {
		w.activeSessionID = target
		res.Updated++
	}

	if res.Dirty() {
		w.lastActivity = time.Now().UTC()
	}
	return res
}

// ApplyHints folds deep-scan signals into a session. A project hint only
// overrides an auto-detected project, never an explicit one. Returns how
// many fields changed.
func (w *Workspace) ApplyHints(sessionID string, h Hints) int {
	w.mu.RLock()
	s, ok := w.sessions[sessionID]
	w.mu.RUnlock()
	if !ok {
		return 0
	}

	changed := 0
	if h.Persona != "" && s.Persona() != h.Persona {
		s.SetPersona(h.Persona)
		changed++
	}
	if h.Project != "" {
		if cur, auto := s.Project(); cur == "" || (auto && cur != h.Project) {
			s.SetProject(h.Project, false)
			changed++
		}
	}
	if len(h.IssueKeys) > 0 && s.MergeIssueKeys(h.IssueKeys) {
		changed++
	}
	if !h.UpdatedAt.IsZero() && s.TouchAt(h.UpdatedAt) {
		changed++
	}
	return changed
}

// ApplyMeetings rebuilds a session's meeting references from the meeting
// index, keyed by the session's issue keys. Entries for the same meeting id
// reached through different keys collapse into one reference with their
// match counts added. Returns whether the reference list changed.
func (w *Workspace) ApplyMeetings(sessionID string, index map[string][]MeetingEntry) bool {
	w.mu.RLock()
	s, ok := w.sessions[sessionID]
	w.mu.RUnlock()
	if !ok {
		return false
	}

	keys := s.IssueKeys()
	if len(keys) == 0 {
		return false
	}

	byID := make(map[string]*MeetingRef)
	for _, key := range keys {
		for _, e := range index[key] {
			if ref, ok := byID[e.MeetingID]; ok {
				ref.MatchCount += e.MatchCount
				continue
			}
			byID[e.MeetingID] = &MeetingRef{
				MeetingID:  e.MeetingID,
				Title:      e.Title,
				Date:       e.Date,
				MatchCount: e.MatchCount,
			}
		}
	}

	refs := make([]MeetingRef, 0, len(byID))
	for _, ref := range byID {
		refs = append(refs, *ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Date != refs[j].Date {
			return refs[i].Date > refs[j].Date
		}
		return refs[i].MeetingID < refs[j].MeetingID
	})

	return s.SetMeetingRefs(refs)
}
