// Package hub implements the central event hub for aidesk.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/domain/events"
	"github.com/brianly1003/aidesk/internal/domain/ports"
)

// Hub is the central event dispatcher that fans out events to all subscribers.
// Publishing never blocks: events are dropped when the broadcast buffer is
// full, and subscribers that fail a send are unregistered.
type Hub struct {
	subscribers map[string]ports.Subscriber
	broadcast   chan events.Event

	mu      sync.RWMutex
	done    chan struct{}
	running bool
}

// New creates a new Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		broadcast:   make(chan events.Event, 256),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's main loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	go h.run()

	log.Debug().Msg("event hub started")
	return nil
}

// Stop gracefully stops the hub and closes all subscribers.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	close(h.done)

	for _, sub := range h.subscribers {
		_ = sub.Close()
	}
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	log.Debug().Msg("event hub stopped")
	return nil
}

// run fans out broadcast events until the hub is stopped.
func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case event := <-h.broadcast:
			var failed []string

			h.mu.RLock()
			for id, sub := range h.subscribers {
				if err := sub.Send(event); err != nil {
					log.Warn().
						Str("subscriber_id", id).
						Str("event_type", string(event.Type())).
						Err(err).
						Msg("failed to send event to subscriber")
					failed = append(failed, id)
				}
			}
			h.mu.RUnlock()

			for _, id := range failed {
				h.Unsubscribe(id)
			}
		}
	}
}

// Publish sends an event to all subscribers. Never blocks.
func (h *Hub) Publish(event events.Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Warn().
			Str("event_type", string(event.Type())).
			Msg("event dropped: broadcast channel full")
	}
}

// Subscribe adds a new subscriber.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID()] = sub
}

// Unsubscribe removes and closes a subscriber by ID.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		_ = sub.Close()
		delete(h.subscribers, id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsRunning returns true if the hub is running.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
