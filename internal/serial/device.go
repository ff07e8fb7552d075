package serial

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/1ureka/ntusb/internal/fault"
)

// Default timing for an opened device.
const (
	DefaultReadTimeout  = time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// ErrReadTimeout is returned by ReadHandle.Read when no byte arrived within
// the read timeout.
var ErrReadTimeout = errors.New("serial read timed out")

// Device is an opened serial device. A read that times out returns (0, nil),
// matching go.bug.st/serial. Read and Write may run concurrently.
type Device interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a device by name.
type Opener interface {
	Open(name string, baud int) (Device, error)
}

// SystemOpener opens real devices through go.bug.st/serial.
type SystemOpener struct{}

// Open implements Opener. Names starting with tcp:// are dialed as a TCP
// serial bridge.
func (SystemOpener) Open(name string, baud int) (Device, error) {
	if strings.HasPrefix(name, tcpPrefix) {
		return dialBridge(name)
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Settings configures how a device is opened and polled.
type Settings struct {
	Baud         int
	ReadTimeout  time.Duration // bound on a single frame read
	PollInterval time.Duration // bound on one BytesAvailable poll
}

func (s Settings) withDefaults() Settings {
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	return s
}

// Handles holds the two halves of one opened device.
type Handles struct {
	Name   string
	Reader *ReadHandle
	Writer *WriteHandle

	dev       Device
	closeOnce sync.Once
	closeErr  error
}

// Open opens name and splits it into independent read and write handles that
// share the device. Failures match fault.ErrConnect.
func Open(opener Opener, name string, s Settings) (*Handles, error) {
	s = s.withDefaults()

	dev, err := opener.Open(name, s.Baud)
	if err != nil {
		return nil, fault.Connect("serial open", name, err)
	}

	return &Handles{
		Name: name,
		Reader: &ReadHandle{
			dev:          dev,
			readTimeout:  s.ReadTimeout,
			pollInterval: s.PollInterval,
			current:      -1,
			scratch:      make([]byte, 4096),
		},
		Writer: &WriteHandle{dev: dev},
		dev:    dev,
	}, nil
}

// Close closes the device once; later calls return the first result.
func (h *Handles) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.dev.Close()
	})
	return h.closeErr
}

// ReadHandle is the reading half of a device. It is owned by one goroutine.
type ReadHandle struct {
	dev          Device
	readTimeout  time.Duration
	pollInterval time.Duration
	current      time.Duration

	pending []byte // bytes picked up by BytesAvailable, served first by Read
	scratch []byte
}

// BytesAvailable waits at most one poll interval for input and returns how
// many bytes are buffered. Zero means nothing arrived.
func (r *ReadHandle) BytesAvailable() (int, error) {
	if len(r.pending) > 0 {
		return len(r.pending), nil
	}
	if err := r.setTimeout(r.pollInterval); err != nil {
		return 0, err
	}

	n, err := r.dev.Read(r.scratch)
	if n > 0 {
		r.pending = append(r.pending, r.scratch[:n]...)
	}
	if err != nil {
		return 0, err
	}
	return len(r.pending), nil
}

// Read serves buffered bytes first, then reads from the device with the read
// timeout applied. A timed out read returns ErrReadTimeout.
func (r *ReadHandle) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}
	if err := r.setTimeout(r.readTimeout); err != nil {
		return 0, err
	}

	n, err := r.dev.Read(p)
	if n == 0 && err == nil {
		return 0, ErrReadTimeout
	}
	return n, err
}

func (r *ReadHandle) setTimeout(d time.Duration) error {
	if r.current == d {
		return nil
	}
	if err := r.dev.SetReadTimeout(d); err != nil {
		return err
	}
	r.current = d
	return nil
}

// WriteHandle is the writing half of a device.
type WriteHandle struct {
	dev Device
}

// Write implements io.Writer.
func (w *WriteHandle) Write(p []byte) (int, error) {
	return w.dev.Write(p)
}
