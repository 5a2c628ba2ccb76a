package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/brianly1003/aidesk/internal/domain"
)

func TestCreateSessionBecomesActive(t *testing.T) {
	w := NewWorkspace("/home/dev/proj")

	s1, err := w.CreateSession(CreateSessionParams{Persona: "general", Name: "First"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if w.ActiveSessionID() != s1.ID() {
		t.Errorf("active = %q, want %q", w.ActiveSessionID(), s1.ID())
	}

	s2, err := w.CreateSession(CreateSessionParams{Persona: "general", Name: "Second"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if w.ActiveSessionID() != s2.ID() {
		t.Errorf("newest session should be active, got %q", w.ActiveSessionID())
	}
}

func TestCreateSessionIDPreference(t *testing.T) {
	tests := []struct {
		name   string
		params CreateSessionParams
		wantID string
	}{
		{
			"explicit id wins",
			CreateSessionParams{ExplicitID: "explicit", ExternalID: "focused"},
			"explicit",
		},
		{
			"external focus hint used when no explicit id",
			CreateSessionParams{ExternalID: "focused", ExternalName: "From editor"},
			"focused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorkspace("/home/dev/proj")
			s, err := w.CreateSession(tt.params)
			if err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			if s.ID() != tt.wantID {
				t.Errorf("id = %q, want %q", s.ID(), tt.wantID)
			}
		})
	}

	t.Run("generated id when no hints", func(t *testing.T) {
		w := NewWorkspace("/home/dev/proj")
		s, err := w.CreateSession(CreateSessionParams{})
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if s.ID() == "" {
			t.Error("expected a generated id")
		}
	})
}

func TestCreateSessionDuplicate(t *testing.T) {
	w := NewWorkspace("/home/dev/proj")
	if _, err := w.CreateSession(CreateSessionParams{ExplicitID: "s1"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	_, err := w.CreateSession(CreateSessionParams{ExplicitID: "s1"})
	if !errors.Is(err, domain.ErrDuplicateSession) {
		t.Errorf("err = %v, want ErrDuplicateSession", err)
	}
}

func TestCreateSessionInheritsWorkspaceProject(t *testing.T) {
	w := NewWorkspace("/home/dev/proj")
	w.SetProject("billing", true)

	inherited, _ := w.CreateSession(CreateSessionParams{ExplicitID: "a"})
	if p, auto := inherited.Project(); p != "billing" || !auto {
		t.Errorf("Project() = %q, %v; want inherited billing, true", p, auto)
	}

	overridden, _ := w.CreateSession(CreateSessionParams{ExplicitID: "b", Project: "payments"})
	if p, auto := overridden.Project(); p != "payments" || auto {
		t.Errorf("Project() = %q, %v; want explicit payments, false", p, auto)
	}
}

func TestRemoveSessionReassignsActive(t *testing.T) {
	w := NewWorkspace("/home/dev/proj")
	s1, _ := w.CreateSession(CreateSessionParams{ExplicitID: "s1"})
	s2, _ := w.CreateSession(CreateSessionParams{ExplicitID: "s2"})
	s3, _ := w.CreateSession(CreateSessionParams{ExplicitID: "s3"})

	// s2 is most recently active, s3 is the current active session.
	s1.setLastActivity(time.Now().Add(-2 * time.Hour))
	s2.setLastActivity(time.Now().Add(-time.Minute))
	s3.setLastActivity(time.Now().Add(-time.Hour))

	if err := w.RemoveSession("s3"); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if w.ActiveSessionID() != "s2" {
		t.Errorf("active = %q, want most-recently-active s2", w.ActiveSessionID())
	}

	if err := w.RemoveSession("s2"); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if w.ActiveSessionID() != "s1" {
		t.Errorf("active = %q, want s1", w.ActiveSessionID())
	}

	if err := w.RemoveSession("s1"); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if w.ActiveSessionID() != "" {
		t.Errorf("active = %q, want empty after last removal", w.ActiveSessionID())
	}

	if err := w.RemoveSession("s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSetActiveSessionUnknownID(t *testing.T) {
	w := NewWorkspace("/home/dev/proj")
	w.CreateSession(CreateSessionParams{ExplicitID: "s1"})

	if w.SetActiveSession("nope") {
		t.Error("unknown id must not become active")
	}
	if w.ActiveSessionID() != "s1" {
		t.Errorf("active = %q, want s1 untouched", w.ActiveSessionID())
	}
}

func TestReadThroughAccessors(t *testing.T) {
	w := NewWorkspace("/home/dev/proj")
	if w.Persona() != "" || w.IssueKey() != "" || w.Branch() != "" {
		t.Error("empty workspace should read through to empty values")
	}

	s, _ := w.CreateSession(CreateSessionParams{Persona: "sre"})
	s.SetBranch("main")
	s.MergeIssueKeys([]string{"OPS-1"})

	if w.Persona() != "sre" || w.IssueKey() != "OPS-1" || w.Branch() != "main" {
		t.Errorf("read-through = %q/%q/%q", w.Persona(), w.IssueKey(), w.Branch())
	}
}

func TestWorkspaceStateRoundTrip(t *testing.T) {
	w := NewWorkspace("/home/dev/proj/")
	w.SetProject("billing", true)
	w.CreateSession(CreateSessionParams{ExplicitID: "s1", Persona: "general", Name: "One"})
	w.CreateSession(CreateSessionParams{ExplicitID: "s2", Persona: "sre", Name: "Two"})

	restored := NewWorkspaceFromState(w.State())

	if restored.ID() != "/home/dev/proj" {
		t.Errorf("ID() = %q, want trailing slash stripped", restored.ID())
	}
	if restored.SessionCount() != 2 {
		t.Fatalf("SessionCount() = %d, want 2", restored.SessionCount())
	}
	if restored.ActiveSessionID() != "s2" {
		t.Errorf("active = %q, want s2", restored.ActiveSessionID())
	}
	if p, auto := restored.Project(); p != "billing" || !auto {
		t.Errorf("Project() = %q, %v", p, auto)
	}
}

func TestWorkspaceFromStateDanglingActive(t *testing.T) {
	st := WorkspaceState{
		ID:              "/home/dev/proj",
		ActiveSessionID: "ghost",
		Sessions: map[string]SessionState{
			"s1": {ID: "s1"},
		},
	}
	w := NewWorkspaceFromState(st)
	if w.ActiveSessionID() != "" {
		t.Errorf("active = %q, want dangling pointer dropped", w.ActiveSessionID())
	}
}
