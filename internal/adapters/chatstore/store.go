// Package chatstore reads the host editor's on-disk chat session store.
// The store is authoritative for which sessions exist and what they are
// called; everything here is read-only.
package chatstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/domain"
	"github.com/brianly1003/aidesk/internal/pathutil"
)

// SessionMeta is the lightweight per-session metadata carried by the first
// line of each session file.
type SessionMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Archived  bool      `json:"archived"`
	Draft     bool      `json:"draft"`
}

// Listing is the result of a metadata-only scan of one workspace's sessions.
type Listing struct {
	Sessions  []SessionMeta
	FocusedID string
	// FingerprintChanged reports whether the underlying files changed since
	// the previous listing for this workspace (path+mtime+size digest).
	FingerprintChanged bool
}

// Message is one chat message line in a session file.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Content is the full parse of one session file, used only by deep scans.
type Content struct {
	Meta     SessionMeta
	Messages []Message
}

// uuidPattern matches UUID-named session files; anything else in the
// sessions directory is ignored.
var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.jsonl$`)

// Store reads session files under a configurable root directory. Layout per
// workspace: <root>/<encoded-workspace>/sessions/<uuid>.jsonl plus an
// optional <root>/<encoded-workspace>/focus.json.
type Store struct {
	root    string
	timeout time.Duration

	mu           sync.Mutex
	fingerprints map[string]uint64
}

// New creates a store reader rooted at dir. timeout bounds every query so a
// stalled filesystem cannot starve the scheduler loops.
func New(dir string, timeout time.Duration) *Store {
	return &Store{
		root:         dir,
		timeout:      timeout,
		fingerprints: make(map[string]uint64),
	}
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) workspaceDir(workspaceID string) string {
	return filepath.Join(s.root, pathutil.EncodePath(workspaceID))
}

func (s *Store) sessionsDir(workspaceID string) string {
	return filepath.Join(s.workspaceDir(workspaceID), "sessions")
}

// SessionsDir exports the sessions directory for a workspace (used by the
// watcher to register paths).
func (s *Store) SessionsDir(workspaceID string) string {
	return s.sessionsDir(workspaceID)
}

// ListSessions scans a workspace's session files and returns their metadata
// sorted most recently updated first, with archived and draft sessions
// skipped. A failing scan returns an error, never an empty successful
// listing, so callers can tell "no sessions" from "store unreachable".
func (s *Store) ListSessions(ctx context.Context, workspaceID string) (Listing, error) {
	start := time.Now()
	dir := s.sessionsDir(workspaceID)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		// A workspace the editor has never opened has no directory; that is
		// a real (empty) answer.
		return s.finishListing(workspaceID, Listing{}, 0), nil
	}
	if err != nil {
		return Listing{}, &domain.SourceError{Op: "list", WorkspaceID: workspaceID, Err: err}
	}

	digest := xxhash.New()
	var listing Listing
	fileCount := 0

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Listing{}, &domain.SourceError{Op: "list", WorkspaceID: workspaceID, Err: err}
		}
		if entry.IsDir() || !uuidPattern.MatchString(entry.Name()) {
			continue
		}
		fileCount++

		info, err := entry.Info()
		if err != nil {
			continue
		}
		fmt.Fprintf(digest, "%s|%d|%d\n", entry.Name(), info.ModTime().UnixNano(), info.Size())

		path := filepath.Join(dir, entry.Name())
		meta, err := readMeta(path)
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable session file")
			continue
		}
		if meta.ID == "" {
			meta.ID = strings.TrimSuffix(entry.Name(), ".jsonl")
		}
		if meta.UpdatedAt.IsZero() {
			meta.UpdatedAt = info.ModTime()
		}
		if meta.Archived || meta.Draft {
			continue
		}
		listing.Sessions = append(listing.Sessions, meta)
	}

	sort.Slice(listing.Sessions, func(i, j int) bool {
		return listing.Sessions[i].UpdatedAt.After(listing.Sessions[j].UpdatedAt)
	})

	if id, _, ok := s.readFocus(workspaceID, digest); ok {
		listing.FocusedID = id
	}

	listing = s.finishListing(workspaceID, listing, digest.Sum64())

	log.Debug().
		Str("workspace", workspaceID).
		Int("files_scanned", fileCount).
		Int("sessions", len(listing.Sessions)).
		Dur("elapsed", time.Since(start)).
		Msg("Listed store sessions")

	return listing, nil
}

// finishListing compares the digest with the previous one for this
// workspace and records it.
func (s *Store) finishListing(workspaceID string, listing Listing, digest uint64) Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, seen := s.fingerprints[workspaceID]
	s.fingerprints[workspaceID] = digest
	listing.FingerprintChanged = !seen || prev != digest
	return listing
}

// FocusedSession returns the externally focused session id and display name
// for a workspace. ok is false when no focus is recorded or the focus file
// cannot be read.
func (s *Store) FocusedSession(ctx context.Context, workspaceID string) (id, name string, ok bool) {
	if ctx.Err() != nil {
		return "", "", false
	}
	id, name, ok = s.readFocus(workspaceID, nil)
	return id, name, ok
}

// readFocus reads focus.json; when digest is non-nil the file's identity is
// folded into the listing fingerprint so a focus switch counts as a change.
func (s *Store) readFocus(workspaceID string, digest *xxhash.Digest) (string, string, bool) {
	path := filepath.Join(s.workspaceDir(workspaceID), "focus.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", false
	}
	if digest != nil {
		digest.Write(data)
	}

	var focus struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &focus); err != nil || focus.SessionID == "" {
		return "", "", false
	}

	meta, err := readMeta(filepath.Join(s.sessionsDir(workspaceID), focus.SessionID+".jsonl"))
	if err != nil {
		return focus.SessionID, "", true
	}
	return focus.SessionID, meta.Name, true
}

// FetchContent parses a full session file. This is the expensive path; only
// the deep-scan passes call it.
func (s *Store) FetchContent(ctx context.Context, workspaceID, sessionID string) (Content, error) {
	path := filepath.Join(s.sessionsDir(workspaceID), sessionID+".jsonl")

	file, err := os.Open(path)
	if err != nil {
		return Content{}, &domain.SourceError{Op: "fetch", WorkspaceID: workspaceID, Err: err}
	}
	defer func() { _ = file.Close() }()

	var content Content
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	first := true
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Content{}, &domain.SourceError{Op: "fetch", WorkspaceID: workspaceID, Err: err}
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if first {
			first = false
			var rec struct {
				Type string `json:"type"`
				SessionMeta
			}
			if err := json.Unmarshal(line, &rec); err == nil && rec.Type == "meta" {
				content.Meta = rec.SessionMeta
				if content.Meta.ID == "" {
					content.Meta.ID = sessionID
				}
				continue
			}
		}

		var rec struct {
			Type string `json:"type"`
			Message
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != "message" {
			continue
		}
		content.Messages = append(content.Messages, rec.Message)
	}
	if err := scanner.Err(); err != nil {
		return Content{}, &domain.SourceError{Op: "fetch", WorkspaceID: workspaceID, Err: err}
	}

	if content.Meta.ID == "" {
		content.Meta.ID = sessionID
	}
	return content, nil
}

// FileStat returns the session file's mtime and size, used by the scan
// cache to decide whether a re-scan is needed.
func (s *Store) FileStat(workspaceID, sessionID string) (mtime time.Time, size int64, err error) {
	info, err := os.Stat(filepath.Join(s.sessionsDir(workspaceID), sessionID+".jsonl"))
	if err != nil {
		return time.Time{}, 0, err
	}
	return info.ModTime(), info.Size(), nil
}

// Timeout returns the configured per-query timeout.
func (s *Store) Timeout() time.Duration { return s.timeout }

// readMeta parses only the first line of a session file.
func readMeta(path string) (SessionMeta, error) {
	file, err := os.Open(path)
	if err != nil {
		return SessionMeta{}, err
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	if !scanner.Scan() {
		return SessionMeta{}, fmt.Errorf("empty session file: %s", filepath.Base(path))
	}

	var rec struct {
		Type string `json:"type"`
		SessionMeta
	}
	if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
		return SessionMeta{}, err
	}
	if rec.Type != "meta" {
		return SessionMeta{}, fmt.Errorf("first line is not a meta record: %s", filepath.Base(path))
	}
	return rec.SessionMeta, nil
}
