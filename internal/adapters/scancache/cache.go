// Package scancache is a SQLite-backed cache of deep-scan results. Session
// files that have not changed (mtime+size) since their last scan are served
// from here instead of being re-parsed by the recent/background loops.
package scancache

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// schemaVersion is bumped when the hint extraction logic or schema changes,
// forcing a full rebuild so stale extractions never linger.
const schemaVersion = 2 // v2: issue_keys stored as JSON array

// Entry is one cached deep-scan result.
type Entry struct {
	SessionID   string
	WorkspaceID string
	Persona     string
	Project     string
	IssueKeys   []string
	Mtime       int64
	Size        int64
}

// Cache wraps the SQLite database.
type Cache struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Cache{db: db, path: path}, nil
}

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'")
	if err := row.Scan(&currentVersion); err != nil {
		currentVersion = 0
	}

	if currentVersion < schemaVersion {
		if currentVersion > 0 {
			log.Info().
				Int("old_version", currentVersion).
				Int("new_version", schemaVersion).
				Msg("Scan cache schema changed, rebuilding")
		}
		_, _ = db.Exec("DROP TABLE IF EXISTS scans")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS scans (
			session_id TEXT PRIMARY KEY,
			workspace_id TEXT,
			persona TEXT,
			project TEXT,
			issue_keys TEXT,
			file_mtime INTEGER,
			file_size INTEGER,
			scanned_at TEXT DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_scans_workspace ON scans(workspace_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	_, err := db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

// Get returns the cached scan for a session, but only when the file's
// mtime and size still match; a mismatch is a miss.
func (c *Cache) Get(sessionID string, mtime, size int64) (Entry, bool) {
	var e Entry
	var keysJSON string
	err := c.db.QueryRow(`
		SELECT session_id, workspace_id, persona, project, issue_keys, file_mtime, file_size
		FROM scans WHERE session_id = ?
	`, sessionID).Scan(&e.SessionID, &e.WorkspaceID, &e.Persona, &e.Project, &keysJSON, &e.Mtime, &e.Size)
	if err != nil {
		return Entry{}, false
	}
	if e.Mtime != mtime || e.Size != size {
		return Entry{}, false
	}
	if keysJSON != "" {
		_ = json.Unmarshal([]byte(keysJSON), &e.IssueKeys)
	}
	return e, true
}

// Put stores a scan result, replacing any previous one for the session.
func (c *Cache) Put(e Entry) error {
	keysJSON, err := json.Marshal(e.IssueKeys)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO scans
		(session_id, workspace_id, persona, project, issue_keys, file_mtime, file_size, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
	`, e.SessionID, e.WorkspaceID, e.Persona, e.Project, string(keysJSON), e.Mtime, e.Size)
	return err
}

// Delete drops a session's cached scan.
func (c *Cache) Delete(sessionID string) error {
	_, err := c.db.Exec("DELETE FROM scans WHERE session_id = ?", sessionID)
	return err
}

// PruneWorkspace drops every cached scan for a workspace.
func (c *Cache) PruneWorkspace(workspaceID string) error {
	_, err := c.db.Exec("DELETE FROM scans WHERE workspace_id = ?", workspaceID)
	return err
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
