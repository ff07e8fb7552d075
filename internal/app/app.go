// Package app wires the channel bus, the two relay engines and the status
// server for one role.
package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/ntusb/internal/bus"
	"github.com/1ureka/ntusb/internal/config"
	"github.com/1ureka/ntusb/internal/metrics"
	"github.com/1ureka/ntusb/internal/protocol"
	"github.com/1ureka/ntusb/internal/relay"
	"github.com/1ureka/ntusb/internal/serial"
	"github.com/1ureka/ntusb/internal/status"
	"github.com/1ureka/ntusb/internal/util"
	"github.com/1ureka/ntusb/internal/wslink"
)

// Engine names, used as the link label in logs and metrics.
const (
	SerialLink  = "serial"
	NetworkLink = "network"
)

// Options carries the configuration and the replaceable collaborators.
// Nil collaborators fall back to the system implementations.
type Options struct {
	Config *config.Config
	Logger util.Logger
	Lister serial.Lister
	Opener serial.Opener
}

// App is a configured proxy for one role.
type App struct {
	cfg     *config.Config
	log     util.Logger
	bus     *bus.Bus
	metrics *metrics.Metrics
	stats   *util.Stats

	Serial  *relay.Engine
	Network *relay.Engine
}

// New builds the bus and both engines. Nothing runs until Run.
func New(opts Options) *App {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = util.Discard()
	}

	busOpts := cfg.BusOptions()
	busOpts.OnDrop = func(queue string, pkt protocol.Packet) {
		log.Warn("queue full, packet dropped", "queue", queue, "kind", pkt.Kind.String(), "size", pkt.Len())
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		bus:     bus.New(busOpts),
		metrics: metrics.New("ntusb"),
		stats:   util.NewStats(),
	}
	a.metrics.ObserveQueue(a.bus.ToNetwork)
	a.metrics.ObserveQueue(a.bus.ToSerial)

	observer := relay.Observers{a.metrics, a.stats}

	a.Serial = relay.New(relay.Config{
		Name:     SerialLink,
		Target:   cfg.SerialPort,
		Resolver: serialResolver(cfg, opts.Lister),
		Dialer: &serial.Dialer{
			Opener: opts.Opener,
			Settings: serial.Settings{
				Baud:         cfg.SerialBaud,
				ReadTimeout:  cfg.SerialTimeout,
				PollInterval: cfg.PollInterval,
			},
			MaxFrameSize: cfg.MaxFrameSize,
		},
		In:       a.bus.ToSerial,
		Out:      a.bus.ToNetwork,
		Backoff:  cfg.Backoff,
		Logger:   log,
		Observer: observer,
	})

	a.Network = relay.New(relay.Config{
		Name:   NetworkLink,
		Target: cfg.URL,
		Dialer: &wslink.Dialer{
			ReadLimit: int64(cfg.MaxFrameSize - protocol.TagSize),
			Logger:    log,
		},
		In:       a.bus.ToNetwork,
		Out:      a.bus.ToSerial,
		Backoff:  cfg.Backoff,
		Logger:   log,
		Observer: observer,
	})

	return a
}

// Metrics returns the collectors fed by both engines.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Stats returns the traffic counters fed by both engines.
func (a *App) Stats() *util.Stats { return a.stats }

// Run relays until ctx is cancelled. It returns early only when an engine
// reports a closed bus.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("relay starting",
		"role", string(a.cfg.Role),
		"serial", a.cfg.SerialPort,
		"baud", a.cfg.SerialBaud,
		"url", a.cfg.URL,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Serial.Run(gctx) })
	g.Go(func() error { return a.Network.Run(gctx) })

	if a.cfg.StatusAddr != "" {
		checker := status.NewChecker(time.Second)
		checker.Register("link:"+SerialLink, status.LinkCheck(a.Serial))
		checker.Register("link:"+NetworkLink, status.LinkCheck(a.Network))
		mux := status.NewMux(a.metrics.Handler(), checker)

		g.Go(func() error {
			if err := status.Serve(gctx, a.cfg.StatusAddr, mux, a.log); err != nil {
				a.log.Error("status server stopped", "error", err)
			}
			return nil
		})
	}

	if a.cfg.StatsInterval > 0 {
		util.StartStatsReporter(gctx, a.stats, a.log, a.cfg.StatsInterval)
	}

	err := g.Wait()
	a.bus.Close()
	a.log.Info("relay stopped")
	return err
}

// serialResolver returns the port discovery step of the role. The slave
// role and TCP bridges dial the configured name directly.
func serialResolver(cfg *config.Config, lister serial.Lister) relay.Resolver {
	if cfg.Role != config.RoleMaster || serial.IsBridge(cfg.SerialPort) {
		return nil
	}
	return &serial.PortResolver{Lister: lister, Name: cfg.SerialPort}
}
