package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/brianly1003/aidesk/internal/adapters/scancache"
	"github.com/brianly1003/aidesk/internal/config"
	"github.com/brianly1003/aidesk/internal/scheduler"
)

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Store: config.StoreConfig{
			Dir:            filepath.Join(dir, "chats"),
			QueryTimeoutMS: 1000,
		},
		Registry: config.RegistryConfig{
			SnapshotPath:       filepath.Join(dir, "state", "registry.json"),
			QueryFilePath:      filepath.Join(dir, "state", "state.json"),
			StaleSessionHours:  24,
			StaleWorkspaceDays: 7,
			DefaultPersona:     "general",
		},
		Scheduler: config.SchedulerConfig{
			FastIntervalSecs:       3,
			RecentIntervalSecs:     20,
			BackgroundIntervalSecs: 180,
			RecentWindow:           10,
			BackgroundBatch:        25,
			SnapshotIntervalSecs:   120,
		},
	}
}

func TestNewBuildsComponents(t *testing.T) {
	a, err := New(testAppConfig(t), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Registry() == nil {
		t.Fatal("registry not built")
	}
	if a.registry.DefaultPersona() != "general" {
		t.Errorf("default persona = %q", a.registry.DefaultPersona())
	}
}

func TestSchedulerConfigMapping(t *testing.T) {
	a, err := New(testAppConfig(t), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sc := a.schedulerConfig()
	if sc.FastInterval != 3*time.Second {
		t.Errorf("fast interval = %v", sc.FastInterval)
	}
	if sc.StaleSessionAge != 24*time.Hour {
		t.Errorf("stale session age = %v", sc.StaleSessionAge)
	}
	if sc.StaleWorkspaceAge != 7*24*time.Hour {
		t.Errorf("stale workspace age = %v", sc.StaleWorkspaceAge)
	}
	if sc.QueryFilePath == "" {
		t.Error("query file path not mapped")
	}
}

func TestScanCacheAdapterRoundTrip(t *testing.T) {
	c, err := scancache.Open(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	adapter := scanCacheAdapter{c}
	entry := scheduler.Entry{
		SessionID:   "s1",
		WorkspaceID: "/ws",
		Persona:     "developer",
		IssueKeys:   []string{"PROJ-1"},
		Mtime:       100,
		Size:        42,
	}
	if err := adapter.Put(entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := adapter.Get("s1", 100, 42)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Persona != "developer" || len(got.IssueKeys) != 1 {
		t.Errorf("entry = %+v", got)
	}

	if err := adapter.PruneWorkspace("/ws"); err != nil {
		t.Fatalf("PruneWorkspace: %v", err)
	}
	if _, ok := adapter.Get("s1", 100, 42); ok {
		t.Error("entry survived workspace prune")
	}
}
