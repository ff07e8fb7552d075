// Package protocol defines the packet model relayed between the serial link
// and the WebSocket link, and its tag-prefixed byte encoding.
package protocol

import (
	"bytes"
	"fmt"
)

// Kind is the packet tag written as the first byte of every encoded packet.
type Kind uint8

// Packet tags. The values are fixed on the wire.
const (
	KindText   Kind = 0 // UTF-8 text payload
	KindBinary Kind = 1 // arbitrary byte payload
	KindClose  Kind = 2 // peer-initiated close, no payload
)

// Valid reports whether k is one of the three known tags.
func (k Kind) Valid() bool {
	return k <= KindClose
}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindClose:
		return "close"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Packet is one relayed application message. It is passed by value along the
// pipeline and never mutated after construction.
type Packet struct {
	Kind    Kind
	Payload []byte // UTF-8 for KindText, raw for KindBinary, empty for KindClose
}

// TextPacket builds a text packet.
func TextPacket(s string) Packet {
	return Packet{Kind: KindText, Payload: []byte(s)}
}

// BinaryPacket builds a binary packet. The payload is not copied.
func BinaryPacket(b []byte) Packet {
	return Packet{Kind: KindBinary, Payload: b}
}

// ClosePacket builds a close marker.
func ClosePacket() Packet {
	return Packet{Kind: KindClose}
}

// Text returns the payload as a string.
func (p Packet) Text() string {
	return string(p.Payload)
}

// Len returns the payload length in bytes.
func (p Packet) Len() int {
	if p.Kind == KindClose {
		return 0
	}
	return len(p.Payload)
}

// Equal reports whether two packets carry the same kind and payload.
// Nil and empty payloads compare equal.
func (p Packet) Equal(o Packet) bool {
	if p.Kind != o.Kind {
		return false
	}
	if p.Kind == KindClose {
		return true
	}
	return bytes.Equal(p.Payload, o.Payload)
}

func (p Packet) String() string {
	return fmt.Sprintf("%s(%d bytes)", p.Kind, p.Len())
}
