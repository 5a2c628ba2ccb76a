// Package transport provides transport layer abstractions for RPC
// communication.
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common transport errors.
var (
	ErrTransportClosed = errors.New("transport is closed")
)

// Transport represents a bidirectional communication channel carrying
// JSON-RPC messages.
type Transport interface {
	// ID returns a unique identifier for this transport instance.
	ID() string

	// Read reads the next message. It blocks until a message is available
	// or the context is cancelled. Returns io.EOF on clean close.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a message.
	Write(ctx context.Context, data []byte) error

	// Close closes the transport. Safe to call multiple times.
	Close() error

	// Done returns a channel that's closed when the transport is closed.
	Done() <-chan struct{}
}

// GenerateID generates a unique transport/client ID.
func GenerateID() string {
	return uuid.New().String()
}
