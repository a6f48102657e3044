package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqrequest/core"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "QM_S1558", cfg.Broker)
	assert.Equal(t, "DEV.Q1", cfg.RequestQueue)
	assert.Equal(t, "DEV.Q2", cfg.ReplyQueue)
	assert.Equal(t, 16384, cfg.Loop.BlockSize)
	assert.Equal(t, 50000, cfg.Loop.Iterations)
	assert.Equal(t, 10*time.Second, cfg.Loop.Wait)
	assert.Equal(t, 25, cfg.Loop.ProgressEvery)
	assert.Equal(t, uint32(100000), cfg.Loop.ValueModulus)
	assert.Equal(t, uint32(1), cfg.Loop.Seed)
	assert.Equal(t, "abort", cfg.Loop.SubmitPolicy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "default config is valid", modify: func(c *Config) {}},
		{name: "no transport", modify: func(c *Config) { c.Transport = "" }, wantErr: true},
		{name: "no broker", modify: func(c *Config) { c.Broker = "" }, wantErr: true},
		{name: "no addresses", modify: func(c *Config) { c.Addresses = nil }, wantErr: true},
		{name: "same queues", modify: func(c *Config) { c.ReplyQueue = c.RequestQueue }, wantErr: true},
		{name: "zero block", modify: func(c *Config) { c.Loop.BlockSize = 0 }, wantErr: true},
		{name: "zero wait", modify: func(c *Config) { c.Loop.Wait = 0 }, wantErr: true},
		{name: "zero iterations", modify: func(c *Config) { c.Loop.Iterations = 0 }},
		{name: "bad submit policy", modify: func(c *Config) { c.Loop.SubmitPolicy = "later" }, wantErr: true},
		{name: "retry without retries", modify: func(c *Config) {
			c.Loop.SubmitPolicy = "retry"
			c.Loop.SubmitRetries = 0
		}, wantErr: true},
		{name: "bad log level", modify: func(c *Config) { c.Log.Level = "trace" }, wantErr: true},
		{name: "bad log format", modify: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "no poll", modify: func(c *Config) { c.Responder.Poll = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mqrequest.yaml")
	data := `
transport: kafka
broker: QM_TEST
addresses: [localhost:9092]
request_queue: REQ
reply_queue: RPY
loop:
  iterations: 10
  wait: 250ms
  submit_policy: retry
extra:
  partition: 1
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kafka", cfg.Transport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Addresses)
	assert.Equal(t, 10, cfg.Loop.Iterations)
	assert.Equal(t, 250*time.Millisecond, cfg.Loop.Wait)
	assert.Equal(t, 16384, cfg.Loop.BlockSize, "unset keys keep defaults")

	ec := cfg.EngineConfig()
	assert.Equal(t, core.SubmitRetry, ec.SubmitPolicy)
	assert.Equal(t, 250*time.Millisecond, ec.Wait)

	bc := cfg.BrokerConfig()
	assert.Equal(t, 1, bc.Int("partition", 0))
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loop:\n  block_size: -1\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("loop: [unterminated\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Transport = "nats"
	cfg.Loop.Wait = 3 * time.Second
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats", got.Transport)
	assert.Equal(t, 3*time.Second, got.Loop.Wait)
}
