// Package config holds the relay configuration and its loading rules.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/1ureka/ntusb/internal/bus"
)

// Role selects how the serial side is found.
type Role string

const (
	RoleMaster Role = "master" // desktop: enumerate ports, resolve a USB device
	RoleSlave  Role = "slave"  // embedded: fixed gadget device
)

// Defaults shared by both roles.
const (
	DefaultURL           = "ws://127.0.0.1:5810/nt/usb-proxy"
	DefaultBaud          = 115200
	DefaultSerialTimeout = time.Second
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultBackoff       = 5 * time.Second
	DefaultMaxFrameSize  = 16 * 1024 * 1024
	MinFrameSize         = 2 // tag plus one payload byte
	DefaultQueuePolicy   = "drop-oldest"
	DefaultStatsInterval = 10 * time.Second

	SlaveSerialPort = "/dev/ttyGS0"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "NTUSB_"

// Config stores all relay parameters.
type Config struct {
	Role Role `yaml:"-"`

	URL           string        `yaml:"url" env:"URL"`
	SerialPort    string        `yaml:"serial_port" env:"SERIAL_PORT"`
	SerialBaud    int           `yaml:"serial_baud" env:"SERIAL_BAUD"`
	SerialTimeout time.Duration `yaml:"serial_timeout" env:"SERIAL_TIMEOUT"`
	PollInterval  time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	Backoff       time.Duration `yaml:"backoff" env:"BACKOFF"`
	MaxFrameSize  int           `yaml:"max_frame_size" env:"MAX_FRAME_SIZE"`
	QueueSize     int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	QueuePolicy   string        `yaml:"queue_policy" env:"QUEUE_POLICY"`
	StatusAddr    string        `yaml:"status_addr" env:"STATUS_ADDR"`
	StatsInterval time.Duration `yaml:"stats_interval" env:"STATS_INTERVAL"`
	Debug         bool          `yaml:"debug" env:"DEBUG"`
}

// Default returns the configuration of role before any file, environment or
// flag is applied.
func Default(role Role) *Config {
	port := DefaultSerialPort(runtime.GOOS)
	if role == RoleSlave {
		port = SlaveSerialPort
	}

	return &Config{
		Role:          role,
		URL:           DefaultURL,
		SerialPort:    port,
		SerialBaud:    DefaultBaud,
		SerialTimeout: DefaultSerialTimeout,
		PollInterval:  DefaultPollInterval,
		Backoff:       DefaultBackoff,
		MaxFrameSize:  DefaultMaxFrameSize,
		QueuePolicy:   DefaultQueuePolicy,
		StatsInterval: DefaultStatsInterval,
	}
}

// DefaultSerialPort returns the usual USB serial device name on goos.
func DefaultSerialPort(goos string) string {
	switch goos {
	case "windows":
		return "COM3"
	case "darwin":
		return "/dev/cu.usbserial"
	default:
		return "/dev/ttyUSB0"
	}
}

// DefaultPath returns the default config file path: ~/.ntusb/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ntusb", "config.yaml")
	}
	return filepath.Join(home, ".ntusb", "config.yaml")
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	Role Role

	// Path is the YAML file. Empty means DefaultPath, which may be absent;
	// an explicit path must exist.
	Path string

	// EnvFile is an optional dotenv file. Its variables never override the
	// process environment.
	EnvFile string

	// Environ replaces os.Environ when non-nil.
	Environ []string

	// Apply runs after the environment, before validation. The CLI uses it
	// for flags.
	Apply func(*Config)
}

// Load builds the configuration: defaults, then the YAML file, then the
// dotenv file and environment, then Apply, then Validate.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default(opts.Role)

	if err := loadFile(cfg, opts.Path); err != nil {
		return nil, err
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	vars := env.ToMap(environ)

	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", opts.EnvFile, err)
		}
		for k, v := range dotenv {
			if _, set := vars[k]; !set {
				vars[k] = v
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if opts.Apply != nil {
		opts.Apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Role != RoleMaster && c.Role != RoleSlave {
		return fmt.Errorf("invalid role %q", c.Role)
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid url %q: scheme must be ws or wss", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", c.URL)
	}

	switch {
	case c.SerialPort == "":
		return errors.New("serial_port must not be empty")
	case c.SerialBaud <= 0:
		return fmt.Errorf("serial_baud must be positive, got %d", c.SerialBaud)
	case c.SerialTimeout <= 0:
		return fmt.Errorf("serial_timeout must be positive, got %s", c.SerialTimeout)
	case c.PollInterval <= 0:
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	case c.Backoff <= 0:
		return fmt.Errorf("backoff must be positive, got %s", c.Backoff)
	case c.MaxFrameSize < MinFrameSize:
		return fmt.Errorf("max_frame_size must be at least %d, got %d", MinFrameSize, c.MaxFrameSize)
	case c.QueueSize < 0:
		return fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize)
	case c.StatsInterval < 0:
		return fmt.Errorf("stats_interval must not be negative, got %s", c.StatsInterval)
	}

	if _, err := bus.ParsePolicy(c.QueuePolicy); err != nil {
		return err
	}
	return nil
}

// BusOptions returns the queue settings for the channel bus.
func (c *Config) BusOptions() bus.Options {
	policy, _ := bus.ParsePolicy(c.QueuePolicy)
	return bus.Options{Size: c.QueueSize, Policy: policy}
}
