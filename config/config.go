// Package config loads the defender agent configuration from TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/vinayprograms/defender/defender"
	"github.com/vinayprograms/defender/errors"
	"github.com/vinayprograms/defender/logging"
	"github.com/vinayprograms/defender/metrics"
)

// FileName is the configuration file looked up in the standard locations.
const FileName = "defender.toml"

// Config is the agent configuration.
type Config struct {
	DeviceID      string          `toml:"device_id"`
	PeriodSeconds uint32          `toml:"period_seconds"`
	NATS          NATSConfig      `toml:"nats"`
	Metrics       MetricsConfig   `toml:"metrics"`
	Ledger        LedgerConfig    `toml:"ledger"`
	Telemetry     TelemetryConfig `toml:"telemetry"`
	Log           LogConfig       `toml:"log"`
}

// NATSConfig describes the broker connection.
type NATSConfig struct {
	URL   string `toml:"url"`
	Name  string `toml:"name"`
	Token string `toml:"token"`
}

// MetricsConfig lists the metric names enabled at start.
type MetricsConfig struct {
	// TCPConnections accepts "total", "connections", "remote_addr",
	// "established" and "all".
	TCPConnections []string `toml:"tcp_connections"`
}

// LedgerConfig controls the JetStream outcome ledger.
type LedgerConfig struct {
	Enabled bool   `toml:"enabled"`
	Bucket  string `toml:"bucket"`
}

// TelemetryConfig configures OTLP trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint string `toml:"endpoint"`
	Protocol string `toml:"protocol"`
	Insecure bool   `toml:"insecure"`
}

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a configuration with every optional field filled in.
// DeviceID is left empty and must come from the file.
func Default() *Config {
	return &Config{
		PeriodSeconds: defender.DefaultPeriodSeconds,
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Ledger: LedgerConfig{
			Bucket: "defender-ledger",
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "defender", FileName))
	}
	return paths
}

// Load reads path, or the first standard location that exists when path is
// empty. Returns the path that was used.
func Load(path string) (*Config, string, error) {
	if path != "" {
		cfg, err := LoadFile(path)
		return cfg, path, err
	}
	for _, p := range StandardPaths() {
		if _, err := os.Stat(p); err == nil {
			cfg, err := LoadFile(p)
			return cfg, p, err
		}
	}
	return nil, "", errors.InvalidInput("no configuration file found",
		errors.WithMetadata("searched", strings.Join(StandardPaths(), ",")))
}

// LoadFile loads and validates a configuration file.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(content))
}

// Parse decodes TOML content over the defaults and validates the result.
func Parse(content string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(content, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.InvalidInput("unknown config keys: " + strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills fields an explicit empty value left blank.
func (c *Config) applyDefaults() {
	def := Default()
	if c.NATS.URL == "" {
		c.NATS.URL = def.NATS.URL
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "defender-" + uuid.New().String()
	}
	if c.Ledger.Bucket == "" {
		c.Ledger.Bucket = def.Ledger.Bucket
	}
	if c.Telemetry.Protocol == "" {
		c.Telemetry.Protocol = def.Telemetry.Protocol
	}
	c.Telemetry.Protocol = strings.ToLower(c.Telemetry.Protocol)
}

// Validate checks the configuration for values the agent would reject.
func (c *Config) Validate() error {
	if _, err := defender.NewTopicSet(c.DeviceID); err != nil {
		return err
	}
	if c.PeriodSeconds < defender.MinPeriodSeconds {
		return errors.PeriodTooShort(c.PeriodSeconds, defender.MinPeriodSeconds)
	}
	if _, err := c.TCPFlags(); err != nil {
		return errors.InvalidInput(err.Error())
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return errors.InvalidInput(fmt.Sprintf("telemetry protocol %q must be grpc or http", c.Telemetry.Protocol))
	}
	lvl := strings.ToUpper(strings.TrimSpace(c.Log.Level))
	if lvl != "" && logging.ParseLevel(lvl) != logging.Level(lvl) && lvl != "WARNING" {
		return errors.InvalidInput(fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	return nil
}

// TCPFlags returns the TCP connection flags named in the metrics section.
func (c *Config) TCPFlags() (uint32, error) {
	return metrics.ParseTCPFlags(c.Metrics.TCPConnections)
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Log.Level)
}
