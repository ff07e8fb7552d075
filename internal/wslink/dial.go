// Package wslink adapts a NetworkTables WebSocket connection to the relay's
// transport.Link.
package wslink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/transport"
	"github.com/1ureka/ntusb/internal/util"
)

// Subprotocol is the only sub-protocol offered during the handshake.
const Subprotocol = "networktables.first.wpi.edu"

// DefaultURL is the NetworkTables USB proxy endpoint on the local machine.
const DefaultURL = "ws://127.0.0.1:5810/nt/usb-proxy"

// ErrSubprotocol is returned when the server accepts the upgrade without
// selecting Subprotocol.
var ErrSubprotocol = errors.New("server did not select the networktables sub-protocol")

// Dialer opens WebSocket links for a relay engine.
type Dialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64 // largest accepted message; <= 0 means unlimited
	Logger           util.Logger
}

// Dial performs the handshake with url. Failures match fault.ErrConnect.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Link, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Subprotocols:     []string{Subprotocol},
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, fault.Connect("ws handshake", url, err)
	}

	if got := conn.Subprotocol(); got != Subprotocol {
		conn.Close()
		return nil, fault.Connect("ws handshake", url, fmt.Errorf("%w: got %q", ErrSubprotocol, got))
	}

	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	log := d.Logger
	if log == nil {
		log = util.Discard()
	}
	return NewLink(conn, url, log), nil
}
