package wslink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/protocol"
	"github.com/1ureka/ntusb/internal/util"
)

// ErrPeerClosed ends the epoch on the receive that follows a delivered
// close packet.
var ErrPeerClosed = errors.New("websocket closed by peer")

const controlTimeout = time.Second

// Link is one WebSocket epoch. Receive is owned by one goroutine; Send may be
// called from several, writes are serialized.
type Link struct {
	conn   *websocket.Conn
	target string
	log    util.Logger

	wmu sync.Mutex

	peerClosed bool

	closeOnce sync.Once
	closeErr  error
}

// NewLink wraps an established connection.
func NewLink(conn *websocket.Conn, target string, log util.Logger) *Link {
	l := &Link{conn: conn, target: target, log: log}

	conn.SetPingHandler(func(data string) error {
		log.Debug("ws ping dropped", "target", target, "size", len(data))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(data string) error {
		log.Debug("ws pong dropped", "target", target, "size", len(data))
		return nil
	})

	return l
}

// Receive returns the next text, binary or close message as a packet.
// Blocking reads are unblocked by Close.
func (l *Link) Receive(ctx context.Context) (protocol.Packet, error) {
	if l.peerClosed {
		return protocol.Packet{}, fault.IO("ws read", l.target, ErrPeerClosed)
	}

	for {
		if err := ctx.Err(); err != nil {
			return protocol.Packet{}, err
		}

		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				l.log.Debug("ws close received", "target", l.target, "code", ce.Code, "reason", ce.Text)
				l.peerClosed = true
				return protocol.ClosePacket(), nil
			}
			return protocol.Packet{}, fault.IO("ws read", l.target, err)
		}

		switch mt {
		case websocket.TextMessage:
			if !utf8.Valid(data) {
				return protocol.Packet{}, fmt.Errorf("ws %s: %w: %w", l.target, fault.ErrDecode, protocol.ErrInvalidUTF8)
			}
			return protocol.TextPacket(string(data)), nil
		case websocket.BinaryMessage:
			return protocol.BinaryPacket(data), nil
		default:
			l.log.Warn("unsupported ws message dropped", "target", l.target, "type", mt)
		}
	}
}

// Send writes pkt as the matching WebSocket message. A close packet becomes
// a close frame without status or reason.
func (l *Link) Send(ctx context.Context, pkt protocol.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var mt int
	switch pkt.Kind {
	case protocol.KindText:
		mt = websocket.TextMessage
	case protocol.KindBinary:
		mt = websocket.BinaryMessage
	case protocol.KindClose:
		mt = websocket.CloseMessage
	default:
		l.log.Warn("unknown packet kind dropped", "target", l.target, "kind", pkt.Kind)
		return nil
	}

	l.wmu.Lock()
	defer l.wmu.Unlock()

	var payload []byte
	if mt != websocket.CloseMessage {
		payload = pkt.Payload
	}
	if err := l.conn.WriteMessage(mt, payload); err != nil {
		return fault.IO("ws write", l.target, err)
	}
	return nil
}

// Close closes the underlying connection without a closing handshake.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}
