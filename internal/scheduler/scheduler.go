// Package scheduler drives reconciliation on three tiers: a fast
// metadata-only loop, a recent loop deep-scanning the most recently
// focused sessions, and a background loop working through everything else
// in rotating batches.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/adapters/chatstore"
	"github.com/brianly1003/aidesk/internal/domain/events"
	"github.com/brianly1003/aidesk/internal/hub"
	"github.com/brianly1003/aidesk/internal/registry"
)

// Source is the slice of the external store the scheduler needs.
// *chatstore.Store satisfies it; tests substitute a fake.
type Source interface {
	ListSessions(ctx context.Context, workspaceID string) (chatstore.Listing, error)
	FetchContent(ctx context.Context, workspaceID, sessionID string) (chatstore.Content, error)
	FileStat(workspaceID, sessionID string) (time.Time, int64, error)
	MeetingIndex(ctx context.Context) (map[string][]chatstore.MeetingEntry, error)
	Timeout() time.Duration
}

// ScanCache caches deep-scan extraction keyed by file identity.
type ScanCache interface {
	Get(sessionID string, mtime, size int64) (Entry, bool)
	Put(e Entry) error
	PruneWorkspace(workspaceID string) error
}

// Entry mirrors scancache.Entry; declared here so the scancache package
// stays decoupled from the scheduler.
type Entry struct {
	SessionID   string
	WorkspaceID string
	Persona     string
	Project     string
	IssueKeys   []string
	Mtime       int64
	Size        int64
}

// Saver persists the registry; *persist.Store satisfies it.
type Saver interface {
	Save(reg *registry.Registry) error
	Path() string
}

// Config carries the loop intervals and batch sizes.
type Config struct {
	FastInterval       time.Duration
	RecentInterval     time.Duration
	BackgroundInterval time.Duration
	RecentWindow       int
	BackgroundBatch    int
	SnapshotInterval   time.Duration
	QueryFilePath      string

	// StaleSessionAge and StaleWorkspaceAge bound the two-phase cleanup
	// run by the background loop. Zero disables cleanup.
	StaleSessionAge   time.Duration
	StaleWorkspaceAge time.Duration
}

// Stats is a point-in-time view of scheduler activity, served by the
// status RPC.
type Stats struct {
	FastTicks       uint64    `json:"fast_ticks"`
	RecentTicks     uint64    `json:"recent_ticks"`
	BackgroundTicks uint64    `json:"background_ticks"`
	DeepScans       uint64    `json:"deep_scans"`
	CacheHits       uint64    `json:"cache_hits"`
	LastFastPass    time.Time `json:"last_fast_pass,omitempty"`
	LastRecentPass  time.Time `json:"last_recent_pass,omitempty"`
	LastSnapshot    time.Time `json:"last_snapshot,omitempty"`
}

type focusEntry struct {
	workspaceID string
	sessionID   string
}

// Scheduler owns the three loops plus the periodic snapshot writer.
type Scheduler struct {
	cfg    Config
	reg    *registry.Registry
	source Source
	scans  ScanCache // optional
	saver  Saver     // optional
	hub    *hub.Hub  // optional

	watcher *chatstore.Watcher // optional

	mu        sync.Mutex
	mru       []focusEntry
	lastFocus map[string]string
	lastCount map[string]int
	bgOffset  int
	stats     Stats

	recentMu sync.Mutex // serializes recent passes (fast loop triggers them inline)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. scans, saver, eventHub and watcher may be nil.
func New(cfg Config, reg *registry.Registry, source Source, scans ScanCache, saver Saver, eventHub *hub.Hub) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		reg:       reg,
		source:    source,
		scans:     scans,
		saver:     saver,
		hub:       eventHub,
		lastFocus: make(map[string]string),
		lastCount: make(map[string]int),
	}
}

// SetWatcher attaches a store watcher whose nudges trigger out-of-band
// fast passes for single workspaces.
func (s *Scheduler) SetWatcher(w *chatstore.Watcher) {
	s.watcher = w
}

// Start runs the startup full sync (metadata only, so state populates
// fast) and launches the loops.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.syncAll(ctx)

	s.wg.Add(3)
	go s.fastLoop(ctx)
	go s.recentLoop(ctx)
	go s.backgroundLoop(ctx)

	if s.saver != nil && s.cfg.SnapshotInterval > 0 {
		s.wg.Add(1)
		go s.snapshotLoop(ctx)
	}

	log.Info().
		Dur("fast", s.cfg.FastInterval).
		Dur("recent", s.cfg.RecentInterval).
		Dur("background", s.cfg.BackgroundInterval).
		Msg("Scheduler started")
}

// Stop cancels every loop and waits for them to drain.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

// Stats returns a copy of the activity counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// NoteFocus pushes a session to the front of the most-recently-focused
// list, which the recent loop deep-scans. The list is trimmed to the
// configured window.
func (s *Scheduler) NoteFocus(workspaceID, sessionID string) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := focusEntry{workspaceID: workspaceID, sessionID: sessionID}
	filtered := s.mru[:0]
	for _, e := range s.mru {
		if e != entry {
			filtered = append(filtered, e)
		}
	}
	s.mru = append([]focusEntry{entry}, filtered...)
	if s.cfg.RecentWindow > 0 && len(s.mru) > s.cfg.RecentWindow {
		s.mru = s.mru[:s.cfg.RecentWindow]
	}
}

func (s *Scheduler) recentList() []focusEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]focusEntry, len(s.mru))
	copy(out, s.mru)
	return out
}

func (s *Scheduler) fastLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FastInterval)
	defer ticker.Stop()

	var nudges <-chan string
	if s.watcher != nil {
		nudges = s.watcher.Nudges()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runGuarded("fast", func() { s.fastPass(ctx) })
		case wsID, ok := <-nudges:
			if !ok {
				nudges = nil
				continue
			}
			s.runGuarded("fast", func() { s.fastPassOne(ctx, wsID) })
		}
	}
}

func (s *Scheduler) recentLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.RecentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runGuarded("recent", func() { s.recentPass(ctx) })
		}
	}
}

func (s *Scheduler) backgroundLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.BackgroundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runGuarded("background", func() { s.backgroundPass(ctx) })
		}
	}
}

func (s *Scheduler) snapshotLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Best effort: a failed periodic save is logged, never retried
			// inline; the next tick tries again.
			if err := s.saver.Save(s.reg); err != nil {
				log.Warn().Err(err).Msg("Periodic snapshot failed")
				continue
			}
			s.mu.Lock()
			s.stats.LastSnapshot = time.Now()
			s.mu.Unlock()
			if s.hub != nil {
				workspaces, sessions := 0, 0
				for _, w := range s.reg.Workspaces() {
					workspaces++
					sessions += w.SessionCount()
				}
				s.hub.Publish(events.NewSnapshotSavedEvent(s.saver.Path(), workspaces, sessions))
			}
		}
	}
}

// runGuarded keeps a panicking pass from taking the loop down with it.
func (s *Scheduler) runGuarded(loop string, pass func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("loop", loop).Msg("Scheduler pass panicked")
		}
	}()
	pass()
}
