package serial

import (
	"errors"
	"net"
	"os"
	"strings"
	"time"
)

// tcpPrefix marks a device name that is a TCP serial bridge (ser2net,
// socat) instead of a local port.
const tcpPrefix = "tcp://"

const dialTimeout = 5 * time.Second

// connDevice adapts a net.Conn to the Device contract: reads honour the read
// timeout and report an expired deadline as (0, nil).
type connDevice struct {
	net.Conn
	timeout time.Duration
}

// NewConnDevice wraps conn as a Device.
func NewConnDevice(conn net.Conn) Device {
	return &connDevice{Conn: conn}
}

func (c *connDevice) SetReadTimeout(t time.Duration) error {
	c.timeout = t
	return nil
}

func (c *connDevice) Read(p []byte) (int, error) {
	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.Conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	n, err := c.Conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

func dialBridge(name string) (Device, error) {
	conn, err := net.DialTimeout("tcp", strings.TrimPrefix(name, tcpPrefix), dialTimeout)
	if err != nil {
		return nil, err
	}
	return NewConnDevice(conn), nil
}

// IsBridge reports whether name refers to a TCP serial bridge, which is never
// listed by port enumeration.
func IsBridge(name string) bool {
	return strings.HasPrefix(name, tcpPrefix)
}
