package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/protocol"
	"github.com/1ureka/ntusb/internal/transport"
)

var errLinkClosed = errors.New("link closed")

// memLink is an in-memory transport.Link driven by the test.
type memLink struct {
	recv    chan protocol.Packet // packets the link will deliver
	recvErr chan error           // failure to inject into Receive
	sent    chan protocol.Packet // packets written to the link

	sendGate chan struct{} // when non-nil, Send waits for a token

	// holdGate makes Send wait for the gate even after Close and then
	// deliver. With ctxAfterGate it instead gives up with the context error
	// once the gate opens, like a real link that has not written yet.
	holdGate     bool
	ctxAfterGate bool
	inflight     chan protocol.Packet // when non-nil, Send reports each packet it starts

	closed    chan struct{}
	closeOnce sync.Once
}

func newMemLink() *memLink {
	return &memLink{
		recv:    make(chan protocol.Packet, 64),
		recvErr: make(chan error, 1),
		sent:    make(chan protocol.Packet, 64),
		closed:  make(chan struct{}),
	}
}

func (l *memLink) Receive(ctx context.Context) (protocol.Packet, error) {
	select {
	case <-l.closed:
		return protocol.Packet{}, fault.IO("mem read", "", errLinkClosed)
	case err := <-l.recvErr:
		return protocol.Packet{}, err
	case pkt := <-l.recv:
		return pkt, nil
	}
}

func (l *memLink) Send(ctx context.Context, pkt protocol.Packet) error {
	if l.inflight != nil {
		l.inflight <- pkt
	}
	if l.holdGate {
		<-l.sendGate
		if l.ctxAfterGate {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		l.sent <- pkt
		return nil
	}
	if l.sendGate != nil {
		select {
		case <-l.closed:
			return fault.IO("mem write", "", errLinkClosed)
		case <-l.sendGate:
		}
	}
	select {
	case <-l.closed:
		return fault.IO("mem write", "", errLinkClosed)
	case l.sent <- pkt:
		return nil
	}
}

func (l *memLink) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *memLink) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// scriptDialer fails while errs lasts, then hands out links in order.
type scriptDialer struct {
	mu      sync.Mutex
	errs    []error
	links   []*memLink
	targets []string
	dialed  chan *memLink
}

func newScriptDialer(errs []error, links ...*memLink) *scriptDialer {
	return &scriptDialer{errs: errs, links: links, dialed: make(chan *memLink, 16)}
}

func (d *scriptDialer) Dial(ctx context.Context, target string) (transport.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, target)

	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	if len(d.links) == 0 {
		return nil, fault.Connect("mem dial", target, errors.New("no more links"))
	}
	l := d.links[0]
	d.links = d.links[1:]
	d.dialed <- l
	return l, nil
}

func (d *scriptDialer) attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

type scriptResolver struct {
	mu    sync.Mutex
	errs  []error
	name  string
	calls int
}

func (r *scriptResolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return "", err
	}
	return r.name, nil
}

// recorder is an Observer that keeps every notification.
type recorder struct {
	mu       sync.Mutex
	states   []string
	in, out  int
	failures []string
}

func (r *recorder) StateChanged(link, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) PacketIn(link string, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.in++
}

func (r *recorder) PacketOut(link string, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out++
}

func (r *recorder) EpochFailed(link, class string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, class)
}

func (r *recorder) snapshot() (states, failures []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...), append([]string(nil), r.failures...)
}
