// Package bus is the in-process channel bus connecting the serial engine and
// the network engine. Each direction is a FIFO Queue with one producer and
// one consumer.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/protocol"
)

// Policy decides what a bounded queue does with a packet pushed while full.
type Policy uint8

const (
	DropOldest Policy = iota // evict the head to make room
	DropNewest               // discard the pushed packet
	Block                    // wait until the consumer makes room
)

func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy parses the configuration spelling of a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "drop-oldest":
		return DropOldest, nil
	case "drop-newest":
		return DropNewest, nil
	case "block":
		return Block, nil
	default:
		return 0, fmt.Errorf("unknown queue policy %q", s)
	}
}

// Options configures a Queue. Size <= 0 means unbounded.
type Options struct {
	Size   int
	Policy Policy
	OnDrop func(name string, pkt protocol.Packet)
}

// Queue is a FIFO of packets. Push and Pop are safe for concurrent use.
type Queue struct {
	name string
	opts Options

	mu      sync.Mutex
	items   []protocol.Packet
	closed  bool
	changed chan struct{} // closed and replaced on every state change

	dropped atomic.Uint64
}

// NewQueue creates an empty queue.
func NewQueue(name string, opts Options) *Queue {
	return &Queue{
		name:    name,
		opts:    opts,
		changed: make(chan struct{}),
	}
}

// Name returns the queue's name, used in logs and metrics.
func (q *Queue) Name() string { return q.name }

// Push appends pkt. On a full bounded queue the configured policy applies;
// only Block waits, and then only until ctx is done.
func (q *Queue) Push(ctx context.Context, pkt protocol.Packet) error {
	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return fault.ErrBusClosed
		}
		if q.opts.Size <= 0 || len(q.items) < q.opts.Size {
			break
		}

		switch q.opts.Policy {
		case DropNewest:
			q.mu.Unlock()
			q.drop(pkt)
			return nil
		case Block:
			wait := q.changed
			q.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
			q.mu.Lock()
			continue
		default:
			head := q.items[0]
			q.items[0] = protocol.Packet{}
			q.items = q.items[1:]
			q.mu.Unlock()
			q.drop(head)
			q.mu.Lock()
			continue
		}
	}

	q.items = append(q.items, pkt)
	q.notify()
	q.mu.Unlock()
	return nil
}

// Pop removes and returns the head, waiting until a packet is queued or ctx
// is done. A done ctx leaves the queue untouched. Packets left in a closed
// queue are still returned; after that Pop fails with fault.ErrBusClosed.
func (q *Queue) Pop(ctx context.Context) (protocol.Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.Packet{}, err
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			pkt := q.items[0]
			q.items[0] = protocol.Packet{}
			q.items = q.items[1:]
			q.notify()
			q.mu.Unlock()
			return pkt, nil
		}
		if q.closed {
			q.mu.Unlock()
			return protocol.Packet{}, fault.ErrBusClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return protocol.Packet{}, ctx.Err()
		case <-wait:
		}
	}
}

// Requeue puts back a packet that was popped but never delivered, ahead of
// everything else. It ignores the size bound and works on a closed queue so
// the packet is not lost.
func (q *Queue) Requeue(pkt protocol.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, protocol.Packet{})
	copy(q.items[1:], q.items)
	q.items[0] = pkt
	q.notify()
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many packets the overflow policy has discarded.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close wakes every waiter. Later pushes fail with fault.ErrBusClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notify()
}

// notify must be called with mu held.
func (q *Queue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *Queue) drop(pkt protocol.Packet) {
	q.dropped.Add(1)
	if q.opts.OnDrop != nil {
		q.opts.OnDrop(q.name, pkt)
	}
}
