package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/protocol"
)

// TestWritePacketWireFormat checks the exact bytes produced for known packets.
func TestWritePacketWireFormat(t *testing.T) {
	testCases := []struct {
		name string
		pkt  protocol.Packet
		want []byte
	}{
		{"text hi", protocol.TextPacket("hi"), []byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x68, 0x69}},
		{"binary HELL", protocol.BinaryPacket([]byte("HELL")), []byte{0x05, 0x00, 0x00, 0x00, 0x01, 0x48, 0x45, 0x4C, 0x4C}},
		{"close", protocol.ClosePacket(), []byte{0x01, 0x00, 0x00, 0x00, 0x02}},
		{"empty text", protocol.TextPacket(""), []byte{0x01, 0x00, 0x00, 0x00, 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WritePacket(&buf, tc.pkt); err != nil {
				t.Fatalf("WritePacket failed: %v", err)
			}
			if !bytes.Equal(buf.Bytes(), tc.want) {
				t.Errorf("wire bytes: got % x, want % x", buf.Bytes(), tc.want)
			}
		})
	}
}

// TestReadPacketConsumesExactlyOneFrame verifies that ReadPacket neither
// under- nor over-reads: the bytes of the following frame stay untouched.
func TestReadPacketConsumesExactlyOneFrame(t *testing.T) {
	packets := []protocol.Packet{
		protocol.TextPacket("héllo"),
		protocol.BinaryPacket([]byte{0, 1, 2, 3, 4, 5}),
		protocol.ClosePacket(),
		protocol.BinaryPacket(nil),
		protocol.TextPacket(""),
	}

	var stream bytes.Buffer
	for _, p := range packets {
		if err := WritePacket(&stream, p); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}

	for i, want := range packets {
		before := stream.Len()

		got, err := ReadPacket(&stream, 0)
		if err != nil {
			t.Fatalf("[%d] ReadPacket failed: %v", i, err)
		}
		if !got.Equal(want) {
			t.Errorf("[%d] got %v, want %v", i, got, want)
		}

		consumed := before - stream.Len()
		if wantN := LengthSize + len(protocol.Encode(want)); consumed != wantN {
			t.Errorf("[%d] consumed %d bytes, want %d", i, consumed, wantN)
		}
	}

	if stream.Len() != 0 {
		t.Errorf("%d bytes left over", stream.Len())
	}
}

// TestReadPacketTruncated verifies that a stream ending mid-frame fails with
// an I/O error instead of hanging or returning a partial packet.
func TestReadPacketTruncated(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty stream", nil},
		{"partial length", []byte{0x05, 0x00}},
		{"partial body", []byte{0x05, 0x00, 0x00, 0x00, 0x01, 0x48, 0x45}},
		{"length only", []byte{0x0A, 0x00, 0x00, 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadPacket(bytes.NewReader(tc.data), 0)
			if !errors.Is(err, fault.ErrIO) {
				t.Fatalf("expected fault.ErrIO, got %v", err)
			}
		})
	}
}

// TestReadPacketTruncatedOverPipe exercises the truncated case on a live
// stream: the writer closes after half a frame and the reader must return.
func TestReadPacketTruncatedOverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	go func() {
		a.Write([]byte{0x10, 0x00, 0x00, 0x00, 0x01, 0xAA})
		a.Close()
	}()

	errCh := make(chan error, 1)
	go func() {
		_, err := ReadPacket(b, 0)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, fault.ErrIO) {
			t.Fatalf("expected fault.ErrIO, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadPacket did not return after the stream closed")
	}
}

// TestReadPacketDecodeErrors verifies that malformed frame bodies surface as
// decode errors.
func TestReadPacketDecodeErrors(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"invalid tag", []byte{0x02, 0x00, 0x00, 0x00, 0x07, 0x00}, protocol.ErrInvalidTag},
		{"invalid utf-8", []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0xFF}, protocol.ErrInvalidUTF8},
		{"zero length", []byte{0x00, 0x00, 0x00, 0x00}, protocol.ErrTruncated},
		{"too large", []byte{0xFF, 0xFF, 0xFF, 0x7F}, ErrFrameTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadPacket(bytes.NewReader(tc.data), 1024)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, fault.ErrDecode) {
				t.Errorf("expected fault.ErrDecode, got %v", err)
			}
		})
	}
}

// TestWritePacketDrainsShortWrites verifies that a writer accepting a few
// bytes at a time still receives the whole frame, in order.
func TestWritePacketDrainsShortWrites(t *testing.T) {
	w := &chunkWriter{max: 3}
	pkt := protocol.BinaryPacket(bytes.Repeat([]byte{0xAB}, 100))

	if err := WritePacket(w, pkt); err != nil {
		t.Fatalf("WritePacket failed: %v", err)
	}

	got, err := ReadPacket(bytes.NewReader(w.buf.Bytes()), 0)
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if !got.Equal(pkt) {
		t.Errorf("frame corrupted by short writes")
	}
}

// TestFramedLatchesWriteError verifies that a Framed writer is unusable after
// its first failure.
func TestFramedLatchesWriteError(t *testing.T) {
	w := &failWriter{failAfter: 1}
	f := NewFramed(nil, w, 0)

	if err := f.WritePacket(protocol.TextPacket("ok")); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	err := f.WritePacket(protocol.TextPacket("boom"))
	if !errors.Is(err, fault.ErrIO) {
		t.Fatalf("expected fault.ErrIO, got %v", err)
	}

	w.failAfter = 100
	if err2 := f.WritePacket(protocol.TextPacket("again")); err2 != err {
		t.Fatalf("expected latched error %v, got %v", err, err2)
	}
	if w.calls != 2 {
		t.Errorf("writer should not be touched after failure, calls=%d", w.calls)
	}
}

func TestWritePacketRejectsUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	err := WritePacket(&buf, protocol.Packet{Kind: 7})
	if !errors.Is(err, protocol.ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written, got % x", buf.Bytes())
	}
}

func TestFramedRoundTripOverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	left := NewFramed(a, a, 0)
	right := NewFramed(b, b, 0)

	want := protocol.TextPacket("networktables")
	go left.WritePacket(want)

	got, err := right.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type chunkWriter struct {
	buf bytes.Buffer
	max int
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.buf.Write(p)
}

type failWriter struct {
	failAfter int
	calls     int
}

func (w *failWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls > w.failAfter {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}
