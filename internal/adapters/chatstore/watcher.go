package chatstore

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const debounceWindow = 200 * time.Millisecond

// Watcher accelerates change detection: it nudges the scheduler's fast loop
// when a watched workspace's store files change, instead of waiting for the
// next tick. Detection itself stays fingerprint-based, so a lost event only
// delays a pass, never loses one.
type Watcher struct {
	store *Store
	fw    *fsnotify.Watcher
	nudge chan string

	mu      sync.Mutex
	dirs    map[string]string // watched dir -> workspace id
	pending map[string]time.Time
	running bool
	done    chan struct{}
}

// NewWatcher creates a watcher over the store's directories.
func NewWatcher(store *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:   store,
		fw:      fw,
		nudge:   make(chan string, 16),
		dirs:    make(map[string]string),
		pending: make(map[string]time.Time),
	}, nil
}

// Nudges delivers workspace ids whose store files recently changed.
func (w *Watcher) Nudges() <-chan string { return w.nudge }

// Watch registers a workspace's store directories. Missing directories are
// created so they can be watched before the editor first writes to them.
func (w *Watcher) Watch(workspaceID string) error {
	dir := w.store.SessionsDir(workspaceID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		_ = os.MkdirAll(dir, 0755)
	}
	if err := w.fw.Add(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	_ = w.fw.Add(parent) // focus.json lives here

	w.mu.Lock()
	w.dirs[dir] = workspaceID
	w.dirs[parent] = workspaceID
	w.mu.Unlock()

	log.Debug().Str("dir", dir).Str("workspace", workspaceID).Msg("Watching store directory")
	return nil
}

// Start begins delivering nudges.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.watchLoop()
	go w.debounceLoop()
}

// Stop stops the watcher and closes the nudge channel.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.done)
	w.mu.Unlock()

	_ = w.fw.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if !uuidPattern.MatchString(name) && name != "focus.json" {
				continue
			}

			w.mu.Lock()
			wsID, known := w.dirs[filepath.Dir(event.Name)]
			if known {
				w.pending[wsID] = time.Now()
			}
			w.mu.Unlock()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Store watcher error")
		}
	}
}

func (w *Watcher) debounceLoop() {
	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case <-ticker.C:
			now := time.Now()
			var ready []string

			w.mu.Lock()
			for wsID, queuedAt := range w.pending {
				if now.Sub(queuedAt) >= debounceWindow {
					ready = append(ready, wsID)
					delete(w.pending, wsID)
				}
			}
			w.mu.Unlock()

			for _, wsID := range ready {
				select {
				case w.nudge <- wsID:
				default:
					// Fast loop is behind; the next tick covers it.
				}
			}
		}
	}
}
