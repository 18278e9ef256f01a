package exporter

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the exporter configuration.
type Config struct {
	Global   GlobalConfig   `toml:"global" yaml:"global"`
	Listen   ListenConfig   `toml:"listen" yaml:"listen"`
	Command  CommandConfig  `toml:"command" yaml:"command"`
	InfluxDB InfluxDBConfig `toml:"influxdb" yaml:"influxdb"`
	Sinks    SinksConfig    `toml:"sinks" yaml:"sinks"`
}

// GlobalConfig contains polling and logging settings.
type GlobalConfig struct {
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`
	LogLevel     string   `toml:"log_level" yaml:"log_level"`
	LogFormat    string   `toml:"log_format" yaml:"log_format"`
}

// ListenConfig contains the HTTP listener settings.
type ListenConfig struct {
	Address     string `toml:"address" yaml:"address"`
	Port        int    `toml:"port" yaml:"port"`
	MetricsPath string `toml:"metrics_path" yaml:"metrics_path"`
}

// Addr returns the host:port the HTTP server binds to. An empty address
// binds all interfaces.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Address, strconv.Itoa(l.Port))
}

// CommandConfig describes the dry-run invocation. Args are passed to the
// binary as-is; no shell is involved.
type CommandConfig struct {
	Binary          string   `toml:"binary" yaml:"binary"`
	Args            []string `toml:"args" yaml:"args"`
	Timeout         Duration `toml:"timeout" yaml:"timeout"`
	RequireZeroExit bool     `toml:"require_zero_exit" yaml:"require_zero_exit"`
}

// InfluxDBConfig contains InfluxDB connection settings for the mirror sink.
type InfluxDBConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	URL         string `toml:"url" yaml:"url"`
	Token       string `toml:"token" yaml:"token"`
	Org         string `toml:"org" yaml:"org"`
	Bucket      string `toml:"bucket" yaml:"bucket"`
	Measurement string `toml:"measurement" yaml:"measurement"`
}

// SinksConfig controls delivery of snapshots to secondary sinks.
type SinksConfig struct {
	Echo          bool     `toml:"echo" yaml:"echo"`
	RetryAttempts int      `toml:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    Duration `toml:"retry_delay" yaml:"retry_delay"`
}

// Duration is a wrapper around time.Duration that decodes from strings such
// as "5m" in both TOML and YAML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			PollInterval: Duration{300 * time.Second},
			LogLevel:     "warn",
			LogFormat:    "text",
		},
		Listen: ListenConfig{
			Address:     "",
			Port:        9175,
			MetricsPath: "/metrics",
		},
		Command: CommandConfig{
			Binary:  "salt-call",
			Args:    []string{"state.highstate", "test=true"},
			Timeout: Duration{5 * time.Minute},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:     false,
			Measurement: "saltstack_highstate",
		},
		Sinks: SinksConfig{
			RetryAttempts: 3,
			RetryDelay:    Duration{1 * time.Second},
		},
	}
}

// LoadConfig reads and parses a configuration file. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadConfigFromYAML(string(data))
	default:
		return LoadConfigFromString(string(data))
	}
}

// LoadConfigFromString parses configuration from a TOML string.
func LoadConfigFromString(data string) (*Config, error) {
	cfg := DefaultConfig()

	if err := toml.Unmarshal([]byte(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromYAML parses configuration from a YAML string.
func LoadConfigFromYAML(data string) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
