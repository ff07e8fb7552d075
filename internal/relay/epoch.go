package relay

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/transport"
	"github.com/1ureka/ntusb/internal/util"
)

// relay runs one epoch over link: an inbound goroutine (link to bus) and an
// outbound goroutine (bus to link). The first failure cancels the epoch, the
// link is closed to unblock a pending read, and both goroutines are joined
// before relay returns that failure.
func (e *Engine) relay(ctx context.Context, link transport.Link, log util.Logger) error {
	defer link.Close()

	g, gctx := errgroup.WithContext(ctx)

	// link → bus
	g.Go(func() error {
		for {
			pkt, err := link.Receive(gctx)
			if err != nil {
				return err
			}
			e.obs.PacketIn(e.cfg.Name, pkt.Len())
			log.Debug("packet received", "kind", pkt.Kind.String(), "size", pkt.Len())

			if err := e.cfg.Out.Push(gctx, pkt); err != nil {
				return err
			}
		}
	})

	// bus → link
	g.Go(func() error {
		for {
			pkt, err := e.cfg.In.Pop(gctx)
			if err != nil {
				return err
			}
			if err := gctx.Err(); err != nil {
				e.cfg.In.Requeue(pkt)
				return err
			}

			if err := link.Send(gctx, pkt); err != nil {
				if unsent(err) {
					e.cfg.In.Requeue(pkt)
				}
				return err
			}
			e.obs.PacketOut(e.cfg.Name, pkt.Len())
			log.Debug("packet sent", "kind", pkt.Kind.String(), "size", pkt.Len())
		}
	})

	// teardown
	g.Go(func() error {
		<-gctx.Done()
		if err := link.Close(); err != nil {
			log.Debug("link close failed", "error", err)
		}
		return nil
	})

	err := g.Wait()
	log.Info("link closed", "error", err)
	return err
}

// unsent reports whether a failed Send gave up before writing any bytes, so
// the packet can go to the next epoch.
func unsent(err error) bool {
	if errors.Is(err, fault.ErrIO) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
