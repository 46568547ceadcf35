package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"opinionnet/net/tcp"

	log "github.com/sirupsen/logrus"
)

const (
	StoreMemory  = "memory"
	StoreLevelDB = "leveldb"

	DefaultRegistryPort = 12345
)

// Duration is a time.Duration written as a string ("3s", "250ms") in the config file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the configuration shared by every opinionnet tool
type Config struct {
	// Config file location, empty when running on defaults
	configFile string

	// Where the registry listens, and where users find it
	Registry struct {
		Host           string `toml:"host"`
		Port           int    `toml:"port"`
		Store          string `toml:"store"`
		MaxConnections int64  `toml:"max_connections"`
	} `toml:"registry"`

	Network struct {
		DialTimeout          Duration `toml:"dial_timeout"`
		ReadTimeout          Duration `toml:"read_timeout"`
		WriteTimeout         Duration `toml:"write_timeout"`
		MaxInbound           int64    `toml:"max_inbound"`
		BroadcastParallelism int      `toml:"broadcast_parallelism"`
	} `toml:"network"`

	// Admin HTTP listener, empty disables it
	Admin struct {
		Listen string `toml:"listen"`
	} `toml:"admin"`

	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`

	Polarimeter struct {
		Jitter Duration `toml:"jitter"`
	} `toml:"polarimeter"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Registry.Host = "127.0.0.1"
	cfg.Registry.Port = DefaultRegistryPort
	cfg.Registry.Store = StoreMemory
	cfg.Registry.MaxConnections = 256

	t := tcp.DefaultTimeouts()
	cfg.Network.DialTimeout = Duration{t.Dial}
	cfg.Network.ReadTimeout = Duration{t.Read}
	cfg.Network.WriteTimeout = Duration{t.Write}
	cfg.Network.MaxInbound = 64
	cfg.Network.BroadcastParallelism = 16

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// NewConfigFromFile loads configFile over the defaults. An empty path returns the defaults.
func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if configFile == "" {
		return cfg, nil
	}
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	if c.configFile == "" {
		return errors.New("config: no file to save to")
	}
	log.Infof("Saving config to %s", c.configFile)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}
	return os.WriteFile(c.configFile, buf.Bytes(), 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)

	md, err := toml.DecodeFile(c.configFile, c)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", c.configFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warnf("Unknown config keys in %s: %v", c.configFile, undecoded)
	}

	return c.Validate()
}

func (c *Config) Validate() error {
	if c.Registry.Port < 1 || c.Registry.Port > 65535 {
		return fmt.Errorf("config: registry.port %d out of range", c.Registry.Port)
	}
	switch c.Registry.Store {
	case StoreMemory, StoreLevelDB:
	default:
		return fmt.Errorf("config: unknown registry.store %q", c.Registry.Store)
	}
	if c.Registry.MaxConnections < 0 || c.Network.MaxInbound < 0 {
		return errors.New("config: connection limits must not be negative")
	}
	if c.Network.BroadcastParallelism < 1 {
		return errors.New("config: network.broadcast_parallelism must be at least 1")
	}
	if c.Network.DialTimeout.Duration <= 0 || c.Network.ReadTimeout.Duration <= 0 || c.Network.WriteTimeout.Duration <= 0 {
		return errors.New("config: network timeouts must be positive")
	}
	if c.Polarimeter.Jitter.Duration < 0 {
		return errors.New("config: polarimeter.jitter must not be negative")
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) Timeouts() tcp.Timeouts {
	return tcp.Timeouts{
		Dial:  c.Network.DialTimeout.Duration,
		Read:  c.Network.ReadTimeout.Duration,
		Write: c.Network.WriteTimeout.Duration,
	}
}

// RegistryAddress is the host:port users dial to reach the registry.
func (c *Config) RegistryAddress() string {
	return net.JoinHostPort(c.Registry.Host, strconv.Itoa(c.Registry.Port))
}
