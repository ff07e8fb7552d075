package serial

import (
	"context"
	"fmt"

	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/protocol"
	"github.com/1ureka/ntusb/internal/transport"
)

// Link is one serial epoch: framed packets over a split device.
type Link struct {
	h      *Handles
	framed *transport.Framed
}

// NewLink frames the handles of an opened device.
func NewLink(h *Handles, maxFrame int) *Link {
	return &Link{
		h:      h,
		framed: transport.NewFramed(h.Reader, h.Writer, maxFrame),
	}
}

// Receive polls the device until a frame starts, then reads it whole. It
// returns once ctx is cancelled or the device fails.
func (l *Link) Receive(ctx context.Context) (protocol.Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.Packet{}, err
		}

		n, err := l.h.Reader.BytesAvailable()
		if err != nil {
			return protocol.Packet{}, fault.IO("serial poll", l.h.Name, err)
		}
		if n == 0 {
			continue
		}

		pkt, err := l.framed.ReadPacket()
		if err != nil {
			return protocol.Packet{}, fmt.Errorf("serial %s: %w", l.h.Name, err)
		}
		return pkt, nil
	}
}

// Send writes one frame to the device.
func (l *Link) Send(ctx context.Context, pkt protocol.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.framed.WritePacket(pkt); err != nil {
		return fmt.Errorf("serial %s: %w", l.h.Name, err)
	}
	return nil
}

// Close closes the device.
func (l *Link) Close() error {
	return l.h.Close()
}

// Dialer opens the serial device for a relay engine epoch.
type Dialer struct {
	Opener       Opener
	Settings     Settings
	MaxFrameSize int
}

// Dial opens target and returns it as a framed link.
func (d *Dialer) Dial(ctx context.Context, target string) (transport.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opener := d.Opener
	if opener == nil {
		opener = SystemOpener{}
	}

	h, err := Open(opener, target, d.Settings)
	if err != nil {
		return nil, err
	}
	return NewLink(h, d.MaxFrameSize), nil
}

// PortResolver finds the configured USB port among the enumerated ones.
type PortResolver struct {
	Lister Lister
	Name   string
}

// Resolve returns the device path of the configured port. Failures match
// fault.ErrDiscovery.
func (r *PortResolver) Resolve(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	lister := r.Lister
	if lister == nil {
		lister = SystemLister{}
	}

	ports, err := lister.ListPorts()
	if err != nil {
		return "", fault.Discovery("list ports", r.Name, err)
	}

	p, err := Resolve(r.Name, ports)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}
