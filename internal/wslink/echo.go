package wslink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/ntusb/internal/util"
)

// DefaultEchoAddr is where `ntusb echo` listens by default.
const DefaultEchoAddr = "127.0.0.1:3012"

// EchoServer is a debug WebSocket peer. It logs every handshake and echoes
// text and binary messages back to the sender.
type EchoServer struct {
	log      util.Logger
	upgrader websocket.Upgrader
}

// NewEchoServer creates an echo handler that accepts Subprotocol.
func NewEchoServer(log util.Logger) *EchoServer {
	return &EchoServer{
		log: log,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{Subprotocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler.
func (s *EchoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logHandshake(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseGoingAway) {
				s.log.Info("ws client closed", "remote", r.RemoteAddr)
			} else {
				s.log.Warn("ws read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		s.log.Info("ws message", "remote", r.RemoteAddr, "type", messageType(mt), "size", len(data))

		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			s.log.Warn("ws echo failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (s *EchoServer) logHandshake(r *http.Request) {
	s.log.Info("ws handshake", "remote", r.RemoteAddr, "path", r.URL.Path)

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.log.Debug("ws header", "name", name, "value", r.Header[name])
	}
}

// ListenAndServe serves the echo handler on addr until ctx is cancelled.
func (s *EchoServer) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("echo server listening", "addr", listener.Addr().String(), "subprotocol", Subprotocol)
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func messageType(mt int) string {
	switch mt {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	case websocket.CloseMessage:
		return "close"
	case websocket.PingMessage:
		return "ping"
	case websocket.PongMessage:
		return "pong"
	default:
		return fmt.Sprintf("type(%d)", mt)
	}
}
