// Package registry implements the workspace/session registry: the in-memory
// mirror of the host editor's chat sessions, enriched with persona, project,
// issue and tool-usage context the editor does not track.
package registry

import (
	"sync"
	"time"
)

// PlaceholderName is the display name the host editor assigns to sessions
// that have not been named yet. It is normalized to an empty local name
// during synchronization.
const PlaceholderName = "unnamed"

// Bounded cache capacities.
const (
	filterCacheCap = 50
	intentCacheCap = 30
	memoryCacheCap = 20
)

// MeetingRef is a cross-reference from a session's issue keys into the
// external meeting index, aggregated during deep reconciliation.
type MeetingRef struct {
	MeetingID  string `json:"meeting_id"`
	Title      string `json:"title"`
	Date       string `json:"date"` // ISO date as carried by the meeting index
	MatchCount int    `json:"match_count"`
}

// Session is one tracked chat context within a workspace. The host editor is
// authoritative for its existence and display name; everything else here is
// locally owned and must survive synchronization.
type Session struct {
	id          string
	workspaceID string // informational back-reference, never ownership

	persona             string
	project             string
	projectAutoDetected bool
	issueKeys           []string
	branch              string
	name                string

	createdAt    time.Time
	lastActivity time.Time

	staticToolCount  int
	dynamicToolCount int
	lastTool         string
	lastToolTime     time.Time
	toolCallCount    int

	filterCache *boundedCache
	intentCache *boundedCache
	memoryCache *boundedCache

	meetingRefs []MeetingRef

	mu sync.RWMutex
}

// NewSession creates a new session for a workspace.
func NewSession(id, workspaceID string) *Session {
	now := time.Now().UTC()
	return &Session{
		id:           id,
		workspaceID:  workspaceID,
		createdAt:    now,
		lastActivity: now,
		filterCache:  newBoundedCache(filterCacheCap),
		intentCache:  newBoundedCache(intentCacheCap),
		memoryCache:  newBoundedCache(memoryCacheCap),
	}
}

// ID returns the stable session identity.
func (s *Session) ID() string { return s.id }

// WorkspaceID returns the owning workspace's identifier.
func (s *Session) WorkspaceID() string { return s.workspaceID }

// Touch advances the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now().UTC()
}

// TouchAt advances last-activity to t if t is newer.
func (s *Session) TouchAt(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastActivity) {
		s.lastActivity = t
		return true
	}
	return false
}

// LastActivity returns the last-activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// IsStale reports whether the session has seen no activity for maxAge.
func (s *Session) IsStale(maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActivity) > maxAge
}

// Name returns the display name (empty when unnamed).
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// SetName sets the display name and reports whether it changed. The host
// editor's "unnamed" placeholder is normalized to empty.
func (s *Session) SetName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := NormalizeName(name)
	if s.name == normalized {
		return false
	}
	s.name = normalized
	return true
}

func (s *Session) setCreatedAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createdAt = t
}

func (s *Session) setLastActivity(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = t
}

// NormalizeName maps the host editor's placeholder display name to empty.
func NormalizeName(name string) string {
	if name == PlaceholderName {
		return ""
	}
	return name
}

// Persona returns the session's persona (empty when unset).
func (s *Session) Persona() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

// SetPersona sets the session's persona.
func (s *Session) SetPersona(persona string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = persona
	s.lastActivity = time.Now().UTC()
}

// Project returns the session's project and whether it was auto-detected.
func (s *Session) Project() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project, s.projectAutoDetected
}

// SetProject sets the session's project. autoDetected records whether the
// value came from path matching rather than an explicit caller choice.
func (s *Session) SetProject(project string, autoDetected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = project
	s.projectAutoDetected = autoDetected
}

// Branch returns the session's branch (empty when unset).
func (s *Session) Branch() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.branch
}

// SetBranch sets the session's branch.
func (s *Session) SetBranch(branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branch = branch
}

// IssueKey returns the primary (first) issue key, or empty.
func (s *Session) IssueKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.issueKeys) == 0 {
		return ""
	}
	return s.issueKeys[0]
}

// IssueKeys returns a copy of all issue keys.
func (s *Session) IssueKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.issueKeys))
	copy(out, s.issueKeys)
	return out
}

// MergeIssueKeys unions keys into the session's issue-key list, preserving
// existing order and deduplicating. Returns true when anything was added.
func (s *Session) MergeIssueKeys(keys []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.issueKeys))
	for _, k := range s.issueKeys {
		seen[k] = struct{}{}
	}

	added := false
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		s.issueKeys = append(s.issueKeys, k)
		added = true
	}
	return added
}

// EffectiveToolCount is the dynamic count when positive (ephemeral
// context-based filtering in effect), else the persona's static baseline.
func (s *Session) EffectiveToolCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dynamicToolCount > 0 {
		return s.dynamicToolCount
	}
	return s.staticToolCount
}

// ToolCounts returns the static and dynamic tool counts.
func (s *Session) ToolCounts() (static, dynamic int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staticToolCount, s.dynamicToolCount
}

// SetStaticToolCount sets the persona's baseline tool count.
func (s *Session) SetStaticToolCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticToolCount = n
}

// SetDynamicToolCount sets the context-filtered tool count.
func (s *Session) SetDynamicToolCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dynamicToolCount = n
}

// RecordToolCall notes a domain tool invocation: updates the last-tool
// fields, bumps the monotically increasing call counter and touches the
// session.
func (s *Session) RecordToolCall(tool string) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTool = tool
	s.lastToolTime = now
	s.toolCallCount++
	s.lastActivity = now
}

// LastTool returns the last invoked tool, its time, and the call counter.
func (s *Session) LastTool() (tool string, at time.Time, count int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTool, s.lastToolTime, s.toolCallCount
}

// FilterCachePut caches a tool-filter result.
func (s *Session) FilterCachePut(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterCache.put(key, value)
}

// FilterCacheGet returns a cached tool-filter result.
func (s *Session) FilterCacheGet(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterCache.get(key)
}

// FilterCacheLen returns the number of cached filter results.
func (s *Session) FilterCacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterCache.len()
}

// IntentCachePut caches an intent-classification result.
func (s *Session) IntentCachePut(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intentCache.put(key, value)
}

// IntentCacheGet returns a cached intent-classification result.
func (s *Session) IntentCacheGet(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intentCache.get(key)
}

// MemoryCachePut caches a memory-query result.
func (s *Session) MemoryCachePut(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memoryCache.put(key, value)
}

// MemoryCacheGet returns a cached memory-query result.
func (s *Session) MemoryCacheGet(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memoryCache.get(key)
}

// MeetingRefs returns a copy of the session's meeting cross-references.
func (s *Session) MeetingRefs() []MeetingRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MeetingRef, len(s.meetingRefs))
	copy(out, s.meetingRefs)
	return out
}

// SetMeetingRefs replaces the session's meeting cross-references. Returns
// true when the new set differs from the current one.
func (s *Session) SetMeetingRefs(refs []MeetingRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meetingRefsEqual(s.meetingRefs, refs) {
		return false
	}
	s.meetingRefs = make([]MeetingRef, len(refs))
	copy(s.meetingRefs, refs)
	return true
}

func meetingRefsEqual(a, b []MeetingRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SessionState is the serializable snapshot of a session.
type SessionState struct {
	ID                  string       `json:"id"`
	WorkspaceID         string       `json:"workspace_id"`
	Persona             string       `json:"persona,omitempty"`
	Project             string       `json:"project,omitempty"`
	ProjectAutoDetected bool         `json:"is_auto_detected,omitempty"`
	IssueKey            string       `json:"issue_key,omitempty"`
	IssueKeys           []string     `json:"issue_keys,omitempty"`
	Branch              string       `json:"branch,omitempty"`
	Name                string       `json:"name,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	LastActivity        time.Time    `json:"last_activity"`
	StaticToolCount     int          `json:"static_tool_count,omitempty"`
	DynamicToolCount    int          `json:"dynamic_tool_count,omitempty"`
	LastTool            string       `json:"last_tool,omitempty"`
	LastToolTime        time.Time    `json:"last_tool_time,omitempty"`
	ToolCallCount       int          `json:"tool_call_count,omitempty"`
	MeetingRefs         []MeetingRef `json:"meeting_references,omitempty"`
}

// State returns a serializable snapshot of the session. The bounded caches
// are deliberately excluded: they are ephemeral and rebuilt after restart.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SessionState{
		ID:                  s.id,
		WorkspaceID:         s.workspaceID,
		Persona:             s.persona,
		Project:             s.project,
		ProjectAutoDetected: s.projectAutoDetected,
		Branch:              s.branch,
		Name:                s.name,
		CreatedAt:           s.createdAt,
		LastActivity:        s.lastActivity,
		StaticToolCount:     s.staticToolCount,
		DynamicToolCount:    s.dynamicToolCount,
		LastTool:            s.lastTool,
		LastToolTime:        s.lastToolTime,
		ToolCallCount:       s.toolCallCount,
	}
	if len(s.issueKeys) > 0 {
		st.IssueKey = s.issueKeys[0]
		st.IssueKeys = append([]string(nil), s.issueKeys...)
	}
	if len(s.meetingRefs) > 0 {
		st.MeetingRefs = append([]MeetingRef(nil), s.meetingRefs...)
	}
	return st
}

// NewSessionFromState reconstructs a session from a persisted snapshot.
// Absent optional fields keep their zero values (forward compatibility).
func NewSessionFromState(st SessionState) *Session {
	s := NewSession(st.ID, st.WorkspaceID)
	s.persona = st.Persona
	s.project = st.Project
	s.projectAutoDetected = st.ProjectAutoDetected
	s.branch = st.Branch
	s.name = NormalizeName(st.Name)
	if !st.CreatedAt.IsZero() {
		s.createdAt = st.CreatedAt
	}
	if !st.LastActivity.IsZero() {
		s.lastActivity = st.LastActivity
	}
	s.staticToolCount = st.StaticToolCount
	s.dynamicToolCount = st.DynamicToolCount
	s.lastTool = st.LastTool
	s.lastToolTime = st.LastToolTime
	s.toolCallCount = st.ToolCallCount

	// Older snapshots carry only the primary key.
	switch {
	case len(st.IssueKeys) > 0:
		s.issueKeys = append([]string(nil), st.IssueKeys...)
	case st.IssueKey != "":
		s.issueKeys = []string{st.IssueKey}
	}
	if len(st.MeetingRefs) > 0 {
		s.meetingRefs = append([]MeetingRef(nil), st.MeetingRefs...)
	}
	return s
}
