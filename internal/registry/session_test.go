package registry

import (
	"testing"
	"time"
)

func TestEffectiveToolCount(t *testing.T) {
	tests := []struct {
		name          string
		static        int
		dynamic       int
		wantEffective int
	}{
		{"both zero", 0, 0, 0},
		{"static only", 12, 0, 12},
		{"dynamic wins when positive", 12, 5, 5},
		{"dynamic only", 0, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("s1", "ws1")
			s.SetStaticToolCount(tt.static)
			s.SetDynamicToolCount(tt.dynamic)
			if got := s.EffectiveToolCount(); got != tt.wantEffective {
				t.Errorf("EffectiveToolCount() = %d, want %d", got, tt.wantEffective)
			}
		})
	}
}

func TestMergeIssueKeys(t *testing.T) {
	s := NewSession("s1", "ws1")

	if !s.MergeIssueKeys([]string{"OPS-12", "DEV-3"}) {
		t.Fatal("first merge should report a change")
	}
	if s.MergeIssueKeys([]string{"DEV-3", "OPS-12"}) {
		t.Error("merging already-known keys should report no change")
	}
	if !s.MergeIssueKeys([]string{"OPS-99"}) {
		t.Error("merging a new key should report a change")
	}

	keys := s.IssueKeys()
	if len(keys) != 3 {
		t.Fatalf("IssueKeys() = %v, want 3 entries", keys)
	}
	if s.IssueKey() != "OPS-12" {
		t.Errorf("IssueKey() = %q, want first-seen key OPS-12", s.IssueKey())
	}
}

func TestSetNamePlaceholderNormalization(t *testing.T) {
	s := NewSession("s1", "ws1")

	if s.SetName(PlaceholderName) {
		t.Error("placeholder name on a fresh session should be a no-op")
	}
	if !s.SetName("Fix login bug") {
		t.Error("real name should report a change")
	}
	if s.SetName("Fix login bug") {
		t.Error("same name again should report no change")
	}
	if got := s.Name(); got != "Fix login bug" {
		t.Errorf("Name() = %q", got)
	}
}

func TestTouchAtOnlyAdvances(t *testing.T) {
	s := NewSession("s1", "ws1")
	past := time.Now().Add(-time.Hour)

	if s.TouchAt(past) {
		t.Error("TouchAt with an older timestamp should not change last-activity")
	}
	future := time.Now().Add(time.Hour)
	if !s.TouchAt(future) {
		t.Error("TouchAt with a newer timestamp should advance last-activity")
	}
	if !s.LastActivity().Equal(future) {
		t.Errorf("LastActivity() = %v, want %v", s.LastActivity(), future)
	}
}

func TestRecordToolCall(t *testing.T) {
	s := NewSession("s1", "ws1")

	s.RecordToolCall("jira_search")
	s.RecordToolCall("git_log")

	tool, at, count := s.LastTool()
	if tool != "git_log" {
		t.Errorf("last tool = %q, want git_log", tool)
	}
	if count != 2 {
		t.Errorf("tool call count = %d, want 2", count)
	}
	if at.IsZero() {
		t.Error("last tool time should be set")
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	s := NewSession("s1", "ws1")
	s.SetPersona("sre")
	s.SetName("Incident review")
	s.SetProject("billing", true)
	s.SetBranch("hotfix/OPS-41")
	s.MergeIssueKeys([]string{"OPS-41", "OPS-42"})
	s.SetStaticToolCount(9)
	s.SetMeetingRefs([]MeetingRef{{MeetingID: "m1", Title: "Postmortem", Date: "2026-08-30", MatchCount: 3}})
	s.FilterCachePut("k", "v") // caches are ephemeral, must not survive

	restored := NewSessionFromState(s.State())

	if restored.ID() != "s1" || restored.WorkspaceID() != "ws1" {
		t.Fatalf("identity lost: %q/%q", restored.ID(), restored.WorkspaceID())
	}
	if restored.Persona() != "sre" || restored.Name() != "Incident review" {
		t.Errorf("persona/name lost: %q/%q", restored.Persona(), restored.Name())
	}
	if p, auto := restored.Project(); p != "billing" || !auto {
		t.Errorf("Project() = %q, %v", p, auto)
	}
	if got := restored.IssueKeys(); len(got) != 2 || got[0] != "OPS-41" {
		t.Errorf("IssueKeys() = %v", got)
	}
	if restored.EffectiveToolCount() != 9 {
		t.Errorf("EffectiveToolCount() = %d, want 9", restored.EffectiveToolCount())
	}
	if refs := restored.MeetingRefs(); len(refs) != 1 || refs[0].MatchCount != 3 || refs[0].Date != "2026-08-30" {
		t.Errorf("MeetingRefs() = %v", refs)
	}
	if _, ok := restored.FilterCacheGet("k"); ok {
		t.Error("filter cache contents must not survive a snapshot round trip")
	}
}

func TestSessionFromStateLegacySingleKey(t *testing.T) {
	st := SessionState{ID: "s1", WorkspaceID: "ws1", IssueKey: "OPS-7"}
	s := NewSessionFromState(st)

	if s.IssueKey() != "OPS-7" {
		t.Errorf("IssueKey() = %q, want OPS-7", s.IssueKey())
	}
	if got := s.IssueKeys(); len(got) != 1 {
		t.Errorf("IssueKeys() = %v, want single entry", got)
	}
}
