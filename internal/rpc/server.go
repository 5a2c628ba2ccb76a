// Package rpc implements the JSON-RPC 2.0 server for aidesk.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/brianly1003/aidesk/internal/domain/events"
	"github.com/brianly1003/aidesk/internal/domain/ports"
	"github.com/brianly1003/aidesk/internal/rpc/handler"
	"github.com/brianly1003/aidesk/internal/rpc/message"
	"github.com/brianly1003/aidesk/internal/rpc/transport"
)

const clientSendBuffer = 256

// Server hosts the WebSocket JSON-RPC endpoint and fans hub events out to
// connected clients as notifications.
type Server struct {
	addr       string
	dispatcher *handler.Dispatcher
	hub        ports.EventHub
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewServer creates a server listening on addr.
func NewServer(addr string, dispatcher *handler.Dispatcher, hub ports.EventHub) *Server {
	return &Server{
		addr:       addr,
		dispatcher: dispatcher,
		hub:        hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local daemon; clients connect from the same machine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
	}
}

// Start begins serving. It blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	router := mux.NewRouter()
	router.HandleFunc("/rpc", s.handleWebSocket)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/methods", s.handleMethods).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("rpc server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down and closes all clients.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for id, c := range s.clients {
		c.Close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","clients":%d}`, s.ClientCount())
}

func (s *Server) handleMethods(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	names := s.dispatcher.Registry().Methods()
	w.Write([]byte(`{"methods":[`))
	for i, name := range names {
		if i > 0 {
			w.Write([]byte(","))
		}
		fmt.Fprintf(w, "%q", name)
	}
	w.Write([]byte(`]}`))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	t := transport.NewWebSocketTransport(conn)
	s.ServeTransport(t)
}

// ServeTransport runs the read/write loops for one client connection and
// subscribes it to hub events. It returns when the client disconnects.
func (s *Server) ServeTransport(t transport.Transport) {
	client := newClient(t, s.dispatcher)

	s.mu.Lock()
	s.clients[client.ID()] = client
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Subscribe(&EventAdapter{client: client})
	}
	log.Info().Str("client_id", client.ID()).Msg("client connected")

	client.run()

	if s.hub != nil {
		s.hub.Unsubscribe(client.ID())
	}
	s.mu.Lock()
	delete(s.clients, client.ID())
	s.mu.Unlock()
	log.Info().Str("client_id", client.ID()).Msg("client disconnected")
}

// Client is one connected RPC client.
type Client struct {
	transport  transport.Transport
	dispatcher *handler.Dispatcher
	send       chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(t transport.Transport, d *handler.Dispatcher) *Client {
	return &Client{
		transport:  t,
		dispatcher: d,
		send:       make(chan []byte, clientSendBuffer),
		done:       make(chan struct{}),
	}
}

// ID returns the transport's connection ID.
func (c *Client) ID() string { return c.transport.ID() }

// Close tears the client connection down.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.transport.Close()
	})
}

// Done reports when the client has disconnected.
func (c *Client) Done() <-chan struct{} { return c.done }

// Enqueue queues an outbound frame without blocking. Slow clients lose
// frames rather than stalling the hub.
func (c *Client) Enqueue(data []byte) error {
	select {
	case <-c.done:
		return transport.ErrTransportClosed
	case c.send <- data:
		return nil
	default:
		log.Warn().Str("client_id", c.ID()).Msg("client send buffer full, dropping frame")
		return nil
	}
}

// run drives both loops and returns when either side closes.
func (c *Client) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop()
	}()
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	wg.Wait()
}

func (c *Client) readLoop() {
	defer c.Close()
	ctx := context.Background()
	for {
		data, err := c.transport.Read(ctx)
		if err != nil {
			return
		}
		resp, err := c.dispatcher.HandleMessage(ctx, data)
		if err != nil {
			log.Warn().Err(err).Str("client_id", c.ID()).Msg("dispatch failed")
			continue
		}
		if resp != nil {
			_ = c.Enqueue(resp)
		}
	}
}

func (c *Client) writeLoop() {
	defer c.Close()
	ctx := context.Background()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.transport.Write(ctx, data); err != nil {
				return
			}
		}
	}
}

// EventAdapter bridges the event hub to one RPC client: every published
// event becomes an "event/<type>" notification on that client's connection.
type EventAdapter struct {
	client *Client
}

// ID returns the underlying client's ID.
func (a *EventAdapter) ID() string { return a.client.ID() }

// Send converts the event into a JSON-RPC notification and queues it.
func (a *EventAdapter) Send(event events.Event) error {
	notif, err := message.NewNotification("event/"+string(event.Type()), event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	return a.client.Enqueue(data)
}

// Close closes the underlying client.
func (a *EventAdapter) Close() error {
	a.client.Close()
	return nil
}

// Done reports when the underlying client has disconnected.
func (a *EventAdapter) Done() <-chan struct{} { return a.client.Done() }
