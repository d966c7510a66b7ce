// Package config loads zhal-bridge settings from defaults, an optional YAML
// file and ZHAL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhal-ipc/zhal-go/pkg/bridge"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

// ErrInvalid indicates a configuration value that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete zhal-bridge configuration.
type Config struct {
	RadioCore RadioCoreConfig `yaml:"radioCore"`
	Events    EventsConfig    `yaml:"events"`
	Requests  RequestsConfig  `yaml:"requests"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RadioCoreConfig locates the radio core's stream endpoint.
type RadioCoreConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Codec          string        `yaml:"codec"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	SendTimeout    time.Duration `yaml:"sendTimeout"`
	ReceiveTimeout time.Duration `yaml:"receiveTimeout"`
}

// EventsConfig holds the datagram socket settings.
type EventsConfig struct {
	Port int `yaml:"port"`
}

// RequestsConfig holds request defaults.
type RequestsConfig struct {
	DefaultTimeout time.Duration `yaml:"defaultTimeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	ProtocolLog string `yaml:"protocolLog"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RadioCore: RadioCoreConfig{
			Host:           bridge.DefaultRadioCoreHost,
			Port:           bridge.DefaultRadioCorePort,
			Codec:          wire.CodecJSON,
			ConnectTimeout: bridge.DefaultStreamTimeout,
			SendTimeout:    bridge.DefaultStreamTimeout,
			ReceiveTimeout: bridge.DefaultStreamTimeout,
		},
		Events: EventsConfig{
			Port: bridge.DefaultEventPort,
		},
		Requests: RequestsConfig{
			DefaultTimeout: bridge.DefaultRequestTimeout,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies ZHAL_* variables. Malformed values are errors.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalid, name, v))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalid, name, v))
				return
			}
			*dst = d
		}
	}

	str("ZHAL_RADIO_CORE_HOST", &cfg.RadioCore.Host)
	num("ZHAL_RADIO_CORE_PORT", &cfg.RadioCore.Port)
	str("ZHAL_CODEC", &cfg.RadioCore.Codec)
	num("ZHAL_EVENT_PORT", &cfg.Events.Port)
	dur("ZHAL_REQUEST_TIMEOUT", &cfg.Requests.DefaultTimeout)
	str("ZHAL_LOG_LEVEL", &cfg.Logging.Level)
	str("ZHAL_PROTOCOL_LOG", &cfg.Logging.ProtocolLog)

	return errors.Join(errs...)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := wire.CodecByName(c.RadioCore.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	cfg, err := c.bridgeConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ToBridgeConfig converts the file settings into a bridge.Config. Handler,
// observer and loggers are left for the caller.
func (c *Config) ToBridgeConfig() (bridge.Config, error) {
	if err := c.Validate(); err != nil {
		return bridge.Config{}, err
	}
	return c.bridgeConfig()
}

func (c *Config) bridgeConfig() (bridge.Config, error) {
	codec, err := wire.CodecByName(c.RadioCore.Codec)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg := bridge.DefaultConfig()
	cfg.RadioCoreHost = c.RadioCore.Host
	cfg.RadioCorePort = c.RadioCore.Port
	cfg.EventPort = c.Events.Port
	cfg.ConnectTimeout = c.RadioCore.ConnectTimeout
	cfg.SendTimeout = c.RadioCore.SendTimeout
	cfg.ReceiveTimeout = c.RadioCore.ReceiveTimeout
	cfg.DefaultRequestTimeout = c.Requests.DefaultTimeout
	cfg.Codec = codec
	return cfg, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, level)
	}
}
