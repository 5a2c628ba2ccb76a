// Package app orchestrates all components of aidesk.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/adapters/chatstore"
	"github.com/brianly1003/aidesk/internal/adapters/scancache"
	"github.com/brianly1003/aidesk/internal/config"
	"github.com/brianly1003/aidesk/internal/domain/events"
	"github.com/brianly1003/aidesk/internal/hub"
	"github.com/brianly1003/aidesk/internal/persist"
	"github.com/brianly1003/aidesk/internal/registry"
	"github.com/brianly1003/aidesk/internal/rpc"
	"github.com/brianly1003/aidesk/internal/rpc/handler"
	"github.com/brianly1003/aidesk/internal/rpc/handler/methods"
	"github.com/brianly1003/aidesk/internal/scheduler"
)

// App wires the registry, external store adapter, scheduler, persistence
// and RPC server together.
type App struct {
	cfg     *config.Config
	version string

	hub       *hub.Hub
	registry  *registry.Registry
	projects  *config.ProjectsConfig
	store     *chatstore.Store
	watcher   *chatstore.Watcher
	scans     *scancache.Cache
	snapshots *persist.Store
	scheduler *scheduler.Scheduler
	rpcServer *rpc.Server

	mu      sync.Mutex
	running bool
}

// New creates an App from configuration. Nothing is started yet.
func New(cfg *config.Config, version string) (*App, error) {
	projects, err := config.LoadProjects("")
	if err != nil {
		return nil, fmt.Errorf("failed to load project roots: %w", err)
	}

	reg := registry.New(projects, cfg.Registry.DefaultPersona)

	snapshots := persist.NewStore(cfg.Registry.SnapshotPath, projects)
	reg.SetRestorer(snapshots.RestoreOne)

	store := chatstore.New(cfg.Store.Dir, time.Duration(cfg.Store.QueryTimeoutMS)*time.Millisecond)

	return &App{
		cfg:       cfg,
		version:   version,
		hub:       hub.New(),
		registry:  reg,
		projects:  projects,
		store:     store,
		snapshots: snapshots,
	}, nil
}

// Registry exposes the registry for tests and embedders.
func (a *App) Registry() *registry.Registry { return a.registry }

// Start brings every component up and blocks until ctx is cancelled or
// the RPC listener fails.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.mu.Unlock()

	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}
	a.hub.Subscribe(hub.NewFuncSubscriber("internal-logger", func(event events.Event) {
		log.Trace().
			Str("event_type", string(event.Type())).
			Str("workspace_id", event.GetWorkspaceID()).
			Msg("event broadcast")
	}))

	// Restore before any loop runs so the first fast pass sees the last
	// known state rather than an empty registry.
	restored, err := a.snapshots.RestoreAll(a.registry)
	if err != nil {
		log.Warn().Err(err).Msg("snapshot restore failed, starting from empty registry")
	} else if restored > 0 {
		log.Info().Int("workspaces", restored).Msg("registry restored from snapshot")
	}

	scans, err := scancache.Open(filepath.Join(filepath.Dir(a.cfg.Registry.SnapshotPath), "scans.db"))
	if err != nil {
		return fmt.Errorf("failed to open scan cache: %w", err)
	}
	a.scans = scans

	if a.cfg.Store.WatchEnabled {
		w, err := chatstore.NewWatcher(a.store)
		if err != nil {
			log.Warn().Err(err).Msg("filesystem watcher unavailable, fast loop runs on ticks only")
		} else {
			a.watcher = w
			for _, wsID := range a.registry.WorkspaceIDs() {
				if err := w.Watch(wsID); err != nil {
					log.Warn().Err(err).Str("workspace", wsID).Msg("failed to watch workspace")
				}
			}
			w.Start()
		}
	}

	a.scheduler = scheduler.New(a.schedulerConfig(), a.registry, a.store, scanCacheAdapter{scans}, a.snapshots, a.hub)
	if a.watcher != nil {
		a.scheduler.SetWatcher(a.watcher)
	}
	a.scheduler.Start(ctx)

	reg := handler.NewRegistry()
	reg.RegisterService(methods.NewCoreService(a.registry, a.scheduler, a.store, a.snapshots, a.hub, a.version))
	dispatcher := handler.NewDispatcher(reg)

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	a.rpcServer = rpc.NewServer(addr, dispatcher, a.hub)

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.rpcServer.Start() }()

	log.Info().
		Str("version", a.version).
		Str("addr", addr).
		Str("store", a.store.Root()).
		Msg("aidesk started")

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-serverErr:
		a.shutdown()
		if err != nil {
			return fmt.Errorf("rpc server failed: %w", err)
		}
		return nil
	}
}

// shutdown tears components down in dependency order: stop producing
// changes first, then flush state, then close the rest.
func (a *App) shutdown() {
	log.Info().Msg("shutting down")

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}

	if err := a.snapshots.Save(a.registry); err != nil {
		log.Error().Err(err).Msg("final snapshot save failed")
	}

	if a.rpcServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.rpcServer.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("rpc server shutdown error")
		}
		cancel()
	}

	if err := a.hub.Stop(); err != nil {
		log.Warn().Err(err).Msg("event hub shutdown error")
	}
	if a.scans != nil {
		if err := a.scans.Close(); err != nil {
			log.Warn().Err(err).Msg("scan cache close error")
		}
	}
	a.registry.Shutdown()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func (a *App) schedulerConfig() scheduler.Config {
	sc := a.cfg.Scheduler
	return scheduler.Config{
		FastInterval:       time.Duration(sc.FastIntervalSecs) * time.Second,
		RecentInterval:     time.Duration(sc.RecentIntervalSecs) * time.Second,
		BackgroundInterval: time.Duration(sc.BackgroundIntervalSecs) * time.Second,
		RecentWindow:       sc.RecentWindow,
		BackgroundBatch:    sc.BackgroundBatch,
		SnapshotInterval:   time.Duration(sc.SnapshotIntervalSecs) * time.Second,
		QueryFilePath:      a.cfg.Registry.QueryFilePath,
		StaleSessionAge:    time.Duration(a.cfg.Registry.StaleSessionHours) * time.Hour,
		StaleWorkspaceAge:  time.Duration(a.cfg.Registry.StaleWorkspaceDays) * 24 * time.Hour,
	}
}

// scanCacheAdapter converts between the scheduler's cache entry type and
// the scancache row type. The structs are field-for-field identical.
type scanCacheAdapter struct {
	c *scancache.Cache
}

func (a scanCacheAdapter) Get(sessionID string, mtime, size int64) (scheduler.Entry, bool) {
	e, ok := a.c.Get(sessionID, mtime, size)
	return scheduler.Entry(e), ok
}

func (a scanCacheAdapter) Put(e scheduler.Entry) error {
	return a.c.Put(scancache.Entry(e))
}

func (a scanCacheAdapter) PruneWorkspace(workspaceID string) error {
	return a.c.PruneWorkspace(workspaceID)
}
