package chatstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianly1003/aidesk/internal/pathutil"
)

const testWorkspace = "/home/dev/proj"

func writeSessionFile(t *testing.T, root, workspaceID, id string, lines ...string) string {
	t.Helper()
	dir := filepath.Join(root, pathutil.EncodePath(workspaceID), "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, id+".jsonl")
	var data string
	for _, line := range lines {
		data += line + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func metaLine(id, name string, updated time.Time, archived, draft bool) string {
	return fmt.Sprintf(`{"type":"meta","id":%q,"name":%q,"createdAt":%q,"updatedAt":%q,"archived":%v,"draft":%v}`,
		id, name, updated.Add(-time.Hour).Format(time.RFC3339), updated.Format(time.RFC3339), archived, draft)
}

func messageLine(role, content string) string {
	return fmt.Sprintf(`{"type":"message","role":%q,"content":%q,"timestamp":%q}`,
		role, content, time.Now().Format(time.RFC3339))
}

func writeFocus(t *testing.T, root, workspaceID, sessionID string) {
	t.Helper()
	dir := filepath.Join(root, pathutil.EncodePath(workspaceID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := fmt.Sprintf(`{"session_id":%q}`, sessionID)
	if err := os.WriteFile(filepath.Join(dir, "focus.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

const (
	sessA = "11111111-1111-4111-8111-111111111111"
	sessB = "22222222-2222-4222-8222-222222222222"
	sessC = "33333333-3333-4333-8333-333333333333"
)

func TestListSessions(t *testing.T) {
	root := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)

	writeSessionFile(t, root, testWorkspace, sessA,
		metaLine(sessA, "Older", now.Add(-time.Hour), false, false))
	writeSessionFile(t, root, testWorkspace, sessB,
		metaLine(sessB, "Newer", now, false, false))
	writeSessionFile(t, root, testWorkspace, sessC,
		metaLine(sessC, "Archived", now, true, false))
	writeFocus(t, root, testWorkspace, sessB)

	store := New(root, time.Second)
	listing, err := store.ListSessions(context.Background(), testWorkspace)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}

	if len(listing.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2 (archived skipped)", len(listing.Sessions))
	}
	if listing.Sessions[0].ID != sessB || listing.Sessions[1].ID != sessA {
		t.Errorf("order = %s, %s; want newest first", listing.Sessions[0].ID, listing.Sessions[1].ID)
	}
	if listing.FocusedID != sessB {
		t.Errorf("FocusedID = %q, want %q", listing.FocusedID, sessB)
	}
	if !listing.FingerprintChanged {
		t.Error("first listing should report a fingerprint change")
	}
}

func TestListSessionsFingerprint(t *testing.T) {
	root := t.TempDir()
	now := time.Now().UTC()
	path := writeSessionFile(t, root, testWorkspace, sessA,
		metaLine(sessA, "One", now, false, false))

	store := New(root, time.Second)
	ctx := context.Background()

	if l, _ := store.ListSessions(ctx, testWorkspace); !l.FingerprintChanged {
		t.Fatal("first listing should report a change")
	}
	if l, _ := store.ListSessions(ctx, testWorkspace); l.FingerprintChanged {
		t.Error("unchanged store should report no fingerprint change")
	}

	// Touch the file with a distinct mtime.
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if l, _ := store.ListSessions(ctx, testWorkspace); !l.FingerprintChanged {
		t.Error("mtime change should change the fingerprint")
	}

	// A focus switch alone must also register.
	writeFocus(t, root, testWorkspace, sessA)
	if l, _ := store.ListSessions(ctx, testWorkspace); !l.FingerprintChanged {
		t.Error("focus change should change the fingerprint")
	}
}

func TestListSessionsMissingWorkspaceDir(t *testing.T) {
	store := New(t.TempDir(), time.Second)
	listing, err := store.ListSessions(context.Background(), "/never/opened")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(listing.Sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(listing.Sessions))
	}
}

func TestFetchContent(t *testing.T) {
	root := t.TempDir()
	writeSessionFile(t, root, testWorkspace, sessA,
		metaLine(sessA, "With content", time.Now(), false, false),
		messageLine("user", "please set_persona(\"sre\") and look at OPS-12"),
		messageLine("assistant", "done"),
		`{"type":"junk"}`,
		"not json at all")

	store := New(root, time.Second)
	content, err := store.FetchContent(context.Background(), testWorkspace, sessA)
	if err != nil {
		t.Fatalf("FetchContent: %v", err)
	}
	if content.Meta.Name != "With content" {
		t.Errorf("meta name = %q", content.Meta.Name)
	}
	if len(content.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (junk lines skipped)", len(content.Messages))
	}
	if content.Messages[0].Role != "user" {
		t.Errorf("role = %q", content.Messages[0].Role)
	}
}

func TestFetchContentMissingSession(t *testing.T) {
	store := New(t.TempDir(), time.Second)
	if _, err := store.FetchContent(context.Background(), testWorkspace, sessA); err == nil {
		t.Error("expected an error for a missing session file")
	}
}

func TestFocusedSession(t *testing.T) {
	root := t.TempDir()
	writeSessionFile(t, root, testWorkspace, sessA,
		metaLine(sessA, "Focused one", time.Now(), false, false))
	writeFocus(t, root, testWorkspace, sessA)

	store := New(root, time.Second)
	id, name, ok := store.FocusedSession(context.Background(), testWorkspace)
	if !ok || id != sessA || name != "Focused one" {
		t.Errorf("FocusedSession = %q, %q, %v", id, name, ok)
	}

	if _, _, ok := store.FocusedSession(context.Background(), "/no/focus"); ok {
		t.Error("missing focus file should report ok=false")
	}
}
