// Package transport frames packets over byte streams and defines the Link
// abstraction the relay engine drives for every connection epoch.
package transport

import (
	"context"

	"github.com/1ureka/ntusb/internal/protocol"
)

// Link is one established connection (one epoch) to either the serial device
// or the WebSocket peer.
//
// Receive and Send are each called from a single goroutine, but concurrently
// with one another. Close must unblock any pending Receive or Send and may be
// called more than once.
type Link interface {
	// Receive blocks until the next packet arrives from the transport.
	Receive(ctx context.Context) (protocol.Packet, error)

	// Send writes one packet to the transport. When it gives up before
	// writing anything it returns the context error unwrapped; once bytes
	// may have reached the transport failures match fault.ErrIO.
	Send(ctx context.Context, pkt protocol.Packet) error

	// Close releases the underlying handles.
	Close() error
}
