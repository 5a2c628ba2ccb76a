package scancache

import (
	"path/filepath"
	"testing"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := openTestCache(t)

	e := Entry{
		SessionID:   "s1",
		WorkspaceID: "/home/dev/proj",
		Persona:     "sre",
		Project:     "billing",
		IssueKeys:   []string{"OPS-1", "OPS-2"},
		Mtime:       1000,
		Size:        2048,
	}
	if err := c.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := c.Get("s1", 1000, 2048)
	if !ok {
		t.Fatal("expected a hit for matching mtime+size")
	}
	if got.Persona != "sre" || got.Project != "billing" {
		t.Errorf("got %+v", got)
	}
	if len(got.IssueKeys) != 2 || got.IssueKeys[0] != "OPS-1" {
		t.Errorf("IssueKeys = %v", got.IssueKeys)
	}
}

func TestGetMissOnChangedFile(t *testing.T) {
	c := openTestCache(t)
	if err := c.Put(Entry{SessionID: "s1", Mtime: 1000, Size: 10}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, ok := c.Get("s1", 2000, 10); ok {
		t.Error("changed mtime must be a miss")
	}
	if _, ok := c.Get("s1", 1000, 20); ok {
		t.Error("changed size must be a miss")
	}
	if _, ok := c.Get("unknown", 1000, 10); ok {
		t.Error("unknown session must be a miss")
	}
}

func TestPutReplaces(t *testing.T) {
	c := openTestCache(t)
	_ = c.Put(Entry{SessionID: "s1", Persona: "general", Mtime: 1, Size: 1})
	_ = c.Put(Entry{SessionID: "s1", Persona: "dba", Mtime: 2, Size: 2})

	got, ok := c.Get("s1", 2, 2)
	if !ok || got.Persona != "dba" {
		t.Errorf("Get = %+v, %v; want replaced entry", got, ok)
	}
}

func TestDeleteAndPrune(t *testing.T) {
	c := openTestCache(t)
	_ = c.Put(Entry{SessionID: "s1", WorkspaceID: "/a", Mtime: 1, Size: 1})
	_ = c.Put(Entry{SessionID: "s2", WorkspaceID: "/a", Mtime: 1, Size: 1})
	_ = c.Put(Entry{SessionID: "s3", WorkspaceID: "/b", Mtime: 1, Size: 1})

	if err := c.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get("s1", 1, 1); ok {
		t.Error("deleted entry still present")
	}

	if err := c.PruneWorkspace("/a"); err != nil {
		t.Fatalf("PruneWorkspace: %v", err)
	}
	if _, ok := c.Get("s2", 1, 1); ok {
		t.Error("pruned workspace entry still present")
	}
	if _, ok := c.Get("s3", 1, 1); !ok {
		t.Error("other workspace entry should survive")
	}
}
