// Package config loads the run configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/core"
)

// Config holds all configuration for a driver or responder run.
type Config struct {
	Transport       string          `yaml:"transport"` // amqp, nats, kafka, redis
	Broker          string          `yaml:"broker"`
	Addresses       []string        `yaml:"addresses"`
	DialTimeout     time.Duration   `yaml:"dial_timeout"`
	CredentialsFile string          `yaml:"credentials_file"`
	RequestQueue    string          `yaml:"request_queue"`
	ReplyQueue      string          `yaml:"reply_queue"`
	Loop            LoopConfig      `yaml:"loop"`
	Responder       ResponderConfig `yaml:"responder"`
	MetricsAddr     string          `yaml:"metrics_addr"`
	Log             LogConfig       `yaml:"log"`
	Extra           map[string]any  `yaml:"extra"`
}

// LoopConfig holds the request/reply loop parameters.
type LoopConfig struct {
	BlockSize       int           `yaml:"block_size"` // 32-bit words per payload
	Iterations      int           `yaml:"iterations"`
	Wait            time.Duration `yaml:"wait"`
	ProgressEvery   int           `yaml:"progress_every"`
	ValueModulus    uint32        `yaml:"value_modulus"`
	Seed            uint32        `yaml:"seed"`
	SubmitPolicy    string        `yaml:"submit_policy"` // abort, continue, retry
	SubmitRetries   int           `yaml:"submit_retries"`
	SubmitBackoff   time.Duration `yaml:"submit_backoff"`
	MatchCorrelID   bool          `yaml:"match_correl_id"`
	ExitOnLoopError bool          `yaml:"exit_on_loop_error"`
}

// ResponderConfig holds settings for the reply side.
type ResponderConfig struct {
	Poll time.Duration `yaml:"poll"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the stock configuration.
func Default() *Config {
	ec := core.DefaultEngineConfig()
	return &Config{
		Transport:       "amqp",
		Broker:          "QM_S1558",
		Addresses:       []string{"localhost:5672"},
		DialTimeout:     10 * time.Second,
		CredentialsFile: "mqusers",
		RequestQueue:    "DEV.Q1",
		ReplyQueue:      "DEV.Q2",
		Loop: LoopConfig{
			BlockSize:     ec.BlockSize,
			Iterations:    ec.Iterations,
			Wait:          ec.Wait,
			ProgressEvery: ec.ProgressEvery,
			ValueModulus:  100000,
			Seed:          ec.StartSeed,
			SubmitPolicy:  ec.SubmitPolicy.String(),
			SubmitRetries: ec.SubmitRetries,
			SubmitBackoff: ec.SubmitBackoff,
		},
		Responder: ResponderConfig{
			Poll: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Transport == "" {
		return fmt.Errorf("transport cannot be empty")
	}
	if c.Broker == "" {
		return fmt.Errorf("broker cannot be empty")
	}
	if len(c.Addresses) == 0 {
		return fmt.Errorf("addresses must list at least one broker address")
	}
	if c.RequestQueue == "" || c.ReplyQueue == "" {
		return fmt.Errorf("request_queue and reply_queue cannot be empty")
	}
	if c.RequestQueue == c.ReplyQueue {
		return fmt.Errorf("request_queue and reply_queue must differ")
	}
	if _, err := core.ParseSubmitPolicy(c.Loop.SubmitPolicy); err != nil {
		return fmt.Errorf("loop.submit_policy must be one of: abort, continue, retry")
	}
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	if c.Responder.Poll <= 0 {
		return fmt.Errorf("responder.poll must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be one of: text, json")
	}
	return nil
}

// EngineConfig converts the loop section for core.NewEngine.
// An unknown submit policy falls back to abort; Validate reports it.
func (c *Config) EngineConfig() core.EngineConfig {
	policy, _ := core.ParseSubmitPolicy(c.Loop.SubmitPolicy)
	return core.EngineConfig{
		BlockSize:     c.Loop.BlockSize,
		Iterations:    c.Loop.Iterations,
		Wait:          c.Loop.Wait,
		ProgressEvery: c.Loop.ProgressEvery,
		StartSeed:     c.Loop.Seed,
		SubmitPolicy:  policy,
		SubmitRetries: c.Loop.SubmitRetries,
		SubmitBackoff: c.Loop.SubmitBackoff,
		MatchCorrelID: c.Loop.MatchCorrelID,
	}
}

// BrokerConfig converts the connection settings for broker.Create.
func (c *Config) BrokerConfig() broker.Config {
	return broker.Config{
		Addresses:   c.Addresses,
		DialTimeout: c.DialTimeout,
		Extra:       c.Extra,
	}
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
