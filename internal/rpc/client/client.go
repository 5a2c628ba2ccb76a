// Package client is a small JSON-RPC client for talking to a running
// aidesk daemon over WebSocket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/brianly1003/aidesk/internal/rpc/message"
)

// Client is a connected RPC client. Safe for concurrent Calls.
type Client struct {
	conn   *websocket.Conn
	nextID int64

	mu      sync.Mutex
	pending map[string]chan *message.Response

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the daemon's /rpc endpoint, e.g. ws://127.0.0.1:8090/rpc.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan *message.Response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the connection. Pending calls fail.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Call invokes a method and decodes its result into out (out may be nil).
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := message.NumberID(atomic.AddInt64(&c.nextID, 1))
	req, err := message.NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan *message.Response, 1)
	c.mu.Lock()
	c.pending[id.String()] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id.String())
		c.mu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("connection closed during %s", method)
	case resp := <-ch:
		if resp.IsError() {
			return fmt.Errorf("%s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		if out != nil && resp.Result != nil {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	}
}

// readLoop routes responses to pending calls. Notifications are dropped;
// this client only does request/response.
func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		resp, err := message.ParseResponse(data)
		if err != nil || resp.ID == nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID.String()]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}
