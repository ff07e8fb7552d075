package protocol

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/1ureka/ntusb/internal/fault"
)

// Decode errors. Each one also matches fault.ErrDecode.
var (
	ErrInvalidTag  = errors.New("invalid packet tag")
	ErrInvalidUTF8 = errors.New("text payload is not valid utf-8")
	ErrTruncated   = errors.New("packet truncated")
)

// TagSize is the size of the tag that precedes every payload.
const TagSize = 1

// Encode serializes a Packet into its tag byte followed by the payload.
// The length prefix is added by the transport, not here.
func Encode(pkt Packet) []byte {
	n := pkt.Len()
	buf := make([]byte, TagSize+n)
	buf[0] = byte(pkt.Kind)
	if n > 0 {
		copy(buf[TagSize:], pkt.Payload)
	}
	return buf
}

// Decode deserializes a tag-prefixed buffer into a Packet. The returned
// payload never aliases data.
func Decode(data []byte) (Packet, error) {
	if len(data) < TagSize {
		return Packet{}, fmt.Errorf("%w: %w: %d bytes", fault.ErrDecode, ErrTruncated, len(data))
	}

	kind := Kind(data[0])
	body := data[TagSize:]

	switch kind {
	case KindText:
		if !utf8.Valid(body) {
			return Packet{}, fmt.Errorf("%w: %w", fault.ErrDecode, ErrInvalidUTF8)
		}
		return Packet{Kind: KindText, Payload: clone(body)}, nil

	case KindBinary:
		return Packet{Kind: KindBinary, Payload: clone(body)}, nil

	case KindClose:
		return ClosePacket(), nil

	default:
		return Packet{}, fmt.Errorf("%w: %w: %d", fault.ErrDecode, ErrInvalidTag, data[0])
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
