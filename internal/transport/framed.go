package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/protocol"
)

const (
	// LengthSize is the size of the little-endian length prefix.
	LengthSize = 4

	// DefaultMaxFrameSize bounds the length prefix accepted by ReadPacket.
	DefaultMaxFrameSize = 16 * 1024 * 1024
)

// ErrFrameTooLarge is returned when a length prefix exceeds the configured
// maximum. It also matches fault.ErrDecode.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// WritePacket encodes pkt and writes `u32_le length | tag | payload` to w as
// one buffer. Short writes are retried until the whole frame is out.
func WritePacket(w io.Writer, pkt protocol.Packet) error {
	if !pkt.Kind.Valid() {
		return fmt.Errorf("%w: %w: %d", fault.ErrDecode, protocol.ErrInvalidTag, uint8(pkt.Kind))
	}

	body := protocol.Encode(pkt)
	buf := make([]byte, LengthSize+len(body))
	binary.LittleEndian.PutUint32(buf[:LengthSize], uint32(len(body)))
	copy(buf[LengthSize:], body)

	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return fault.IO("write frame", "", err)
		}
		if n == 0 {
			return fault.IO("write frame", "", io.ErrShortWrite)
		}
		buf = buf[n:]
	}
	return nil
}

// ReadPacket reads exactly one frame from r. A stream that ends before the
// declared length has been read fails with fault.ErrIO; maxFrame <= 0 means
// DefaultMaxFrameSize.
func ReadPacket(r io.Reader, maxFrame int) (protocol.Packet, error) {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}

	var hdr [LengthSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return protocol.Packet{}, fault.IO("read frame length", "", err)
	}

	n := binary.LittleEndian.Uint32(hdr[:])
	if n == 0 {
		return protocol.Packet{}, fmt.Errorf("%w: %w: zero-length frame", fault.ErrDecode, protocol.ErrTruncated)
	}
	if uint64(n) > uint64(maxFrame) {
		return protocol.Packet{}, fmt.Errorf("%w: %w: %d > %d", fault.ErrDecode, ErrFrameTooLarge, n, maxFrame)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return protocol.Packet{}, fault.IO("read frame body", "", err)
	}

	return protocol.Decode(body)
}

// Framed pairs a reader and a writer into a packet-level duplex stream.
// After the first write failure every later WritePacket returns that error.
type Framed struct {
	r        io.Reader
	w        io.Writer
	maxFrame int

	mu   sync.Mutex
	werr error
}

// NewFramed wraps r and w. Either may be nil when only one direction is used.
func NewFramed(r io.Reader, w io.Writer, maxFrame int) *Framed {
	return &Framed{r: r, w: w, maxFrame: maxFrame}
}

// ReadPacket reads the next frame.
func (f *Framed) ReadPacket() (protocol.Packet, error) {
	return ReadPacket(f.r, f.maxFrame)
}

// WritePacket writes one frame, serialized against concurrent writers.
func (f *Framed) WritePacket(pkt protocol.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.werr != nil {
		return f.werr
	}
	if err := WritePacket(f.w, pkt); err != nil {
		if errors.Is(err, fault.ErrIO) {
			f.werr = err
		}
		return err
	}
	return nil
}
