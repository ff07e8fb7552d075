// Package relay runs one side of the proxy: it keeps a transport.Link alive
// across failures and moves packets between the link and the channel bus.
package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/ntusb/internal/bus"
	"github.com/1ureka/ntusb/internal/fault"
	"github.com/1ureka/ntusb/internal/transport"
	"github.com/1ureka/ntusb/internal/util"
)

// DefaultBackoff is the fixed delay between a failure and the next attempt.
const DefaultBackoff = 5 * time.Second

// Dialer opens a new link to target for each epoch.
type Dialer interface {
	Dial(ctx context.Context, target string) (transport.Link, error)
}

// Resolver locates the dial target before each attempt.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Config wires an engine to its transport and to the bus.
type Config struct {
	Name     string   // "serial" or "network", used in logs and metrics
	Target   string   // dial target when Resolver is nil
	Resolver Resolver // optional; enables the Discovering state
	Dialer   Dialer

	In  *bus.Queue // packets to send on the link
	Out *bus.Queue // packets received from the link

	Backoff  time.Duration
	Logger   util.Logger
	Observer Observer
}

// Engine is the reconnecting relay for one transport.
type Engine struct {
	cfg   Config
	log   util.Logger
	obs   Observer
	state atomic.Int32
}

// New creates an engine. Run starts it.
func New(cfg Config) *Engine {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}

	log := cfg.Logger
	if log == nil {
		log = util.Discard()
	}

	obs := cfg.Observer
	if obs == nil {
		obs = Observers(nil)
	}

	e := &Engine{
		cfg: cfg,
		log: log.With("link", cfg.Name),
		obs: obs,
	}
	e.state.Store(int32(e.firstState()))
	return e
}

// Name returns the engine's link name.
func (e *Engine) Name() string { return e.cfg.Name }

// State returns the current state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	if State(e.state.Swap(int32(s))) == s {
		return
	}
	e.log.Debug("state changed", "state", s.String())
	e.obs.StateChanged(e.cfg.Name, s.String())
}

func (e *Engine) firstState() State {
	if e.cfg.Resolver != nil {
		return Discovering
	}
	return Connecting
}

// Run cycles through discovery, connection, relaying and backoff until ctx is
// cancelled, then returns nil. Failures of a link are logged and retried. A
// closed bus is not recoverable and is returned as fault.ErrBusClosed.
func (e *Engine) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	e.obs.StateChanged(e.cfg.Name, e.State().String())

	for {
		err := e.attempt(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, fault.ErrBusClosed) {
			e.log.Error("bus closed, stopping", "error", err)
			return err
		}

		class := fault.Class(err)
		e.log.Warn("link failed", "class", class, "error", err, "retry_in", e.cfg.Backoff.String())
		e.obs.EpochFailed(e.cfg.Name, class)
		e.setState(Backoff)

		timer.Reset(e.cfg.Backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// attempt performs one discover/connect/relay pass and returns why it ended.
func (e *Engine) attempt(ctx context.Context) error {
	target := e.cfg.Target
	if e.cfg.Resolver != nil {
		e.setState(Discovering)
		resolved, err := e.cfg.Resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		target = resolved
	}

	e.setState(Connecting)
	link, err := e.cfg.Dialer.Dial(ctx, target)
	if err != nil {
		return err
	}

	log := e.log.With("epoch", uuid.NewString())
	log.Info("link established", "target", target)
	e.setState(Relaying)

	return e.relay(ctx, link, log)
}
