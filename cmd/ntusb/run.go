package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/ntusb/internal/app"
	"github.com/1ureka/ntusb/internal/config"
)

// runFlags override the loaded configuration when set on the command line.
type runFlags struct {
	url        string
	port       string
	baud       int
	statusAddr string
	backoff    time.Duration
}

func newRunCmd(g *globalFlags, role config.Role) *cobra.Command {
	f := &runFlags{}

	short := "Run next to the NetworkTables server, resolving the USB serial port"
	if role == config.RoleSlave {
		short = "Run on the USB device, using the fixed gadget serial port"
	}

	cmd := &cobra.Command{
		Use:   string(role),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, f, role)
			if err != nil {
				return err
			}

			log := g.logger(cfg.Debug)
			pterm.Info.Println(fmt.Sprintf("ntusb %s v%s", role, version))

			return app.New(app.Options{Config: cfg, Logger: log}).Run(cmd.Context())
		},
	}

	f.bind(cmd)
	return cmd
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "NetworkTables WebSocket URL (default "+config.DefaultURL+")")
	cmd.Flags().StringVar(&f.port, "port", "", "serial device name, or tcp://host:port for a serial bridge")
	cmd.Flags().IntVar(&f.baud, "baud", 0, "serial baud rate (default 115200)")
	cmd.Flags().StringVar(&f.statusAddr, "status-addr", "", "serve /metrics, /healthz and /readyz on this address")
	cmd.Flags().DurationVar(&f.backoff, "backoff", 0, "delay before reconnecting (default 5s)")
}

// loadConfig layers flags that were explicitly set over the file and
// environment configuration.
func loadConfig(cmd *cobra.Command, g *globalFlags, f *runFlags, role config.Role) (*config.Config, error) {
	flags := cmd.Flags()

	cfg, err := config.Load(config.LoadOptions{
		Role:    role,
		Path:    g.configFile,
		EnvFile: g.envFile,
		Apply: func(c *config.Config) {
			if flags.Changed("url") {
				c.URL = f.url
			}
			if flags.Changed("port") {
				c.SerialPort = f.port
			}
			if flags.Changed("baud") {
				c.SerialBaud = f.baud
			}
			if flags.Changed("status-addr") {
				c.StatusAddr = f.statusAddr
			}
			if flags.Changed("backoff") {
				c.Backoff = f.backoff
			}
			if g.debug {
				c.Debug = true
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
