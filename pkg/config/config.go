package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML strings like "30s" or "5m" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the engine server configuration.
type Config struct {
	// DataDir is the root directory for the bolt store and raft state.
	DataDir string `yaml:"data_dir"`

	// Redis connection for distributed locks and the task queue.
	Redis RedisConfig `yaml:"redis"`

	// Election configures the raft-based primary election.
	Election ElectionConfig `yaml:"election"`

	// Orchestrate configures cycle scheduling and execution.
	Orchestrate OrchestrateConfig `yaml:"orchestrate"`

	// Platform is the base URL of the provisioning platform API.
	Platform PlatformConfig `yaml:"platform"`

	// API configures the HTTP admin API.
	API APIConfig `yaml:"api"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Log configures the global logger.
	Log LogConfig `yaml:"log"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ElectionConfig struct {
	// BindAddr is the raft transport bind address.
	BindAddr string `yaml:"bind_addr"`

	// Bootstrap starts a fresh single-node cluster when true.
	Bootstrap bool `yaml:"bootstrap"`

	// JoinAddr is the address of an existing primary to join.
	JoinAddr string `yaml:"join_addr"`
}

type OrchestrateConfig struct {
	// Interval between periodic scheduling rounds on the primary.
	Interval Duration `yaml:"interval"`

	// Workers is the number of concurrent cycle executors.
	Workers int `yaml:"workers"`

	// LockTTL is the per-cluster lock expiry.
	LockTTL Duration `yaml:"lock_ttl"`
}

type PlatformConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir: "/var/lib/keel",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Election: ElectionConfig{
			BindAddr:  "127.0.0.1:7000",
			Bootstrap: true,
		},
		Orchestrate: OrchestrateConfig{
			Interval: Duration(30 * time.Second),
			Workers:  4,
			LockTTL:  Duration(5 * time.Minute),
		},
		Platform: PlatformConfig{
			Timeout: Duration(30 * time.Second),
		},
		API: APIConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Orchestrate.Interval <= 0 {
		return fmt.Errorf("orchestrate.interval must be positive")
	}
	if c.Orchestrate.Workers < 1 {
		return fmt.Errorf("orchestrate.workers must be at least 1")
	}
	if !c.Election.Bootstrap && c.Election.JoinAddr == "" {
		return fmt.Errorf("election.join_addr is required when bootstrap is false")
	}
	return nil
}
