package broker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/core"
	"github.com/miladsoleymani/mqrequest/internal/mock"
)

func TestRegistry(t *testing.T) {
	var got broker.Config
	broker.Register("test-mock", func(cfg broker.Config) (core.Transport, error) {
		got = cfg
		return mock.NewTransport(), nil
	})

	cfg := broker.Config{Addresses: []string{"a:1"}, Extra: map[string]any{"vhost": "/x", "tries": 3}}
	tr, err := broker.Create("test-mock", cfg)
	require.NoError(t, err)
	assert.NotNil(t, tr)
	assert.Equal(t, []string{"a:1"}, got.Addresses)
	assert.Contains(t, broker.Names(), "test-mock")

	_, err = broker.Create("carrier-pigeon", cfg)
	assert.ErrorIs(t, err, broker.ErrUnknownTransport)
}

func TestConfigExtra(t *testing.T) {
	cfg := broker.Config{Extra: map[string]any{"s": "v", "i": 4, "b": true}}

	assert.Equal(t, "v", cfg.String("s", "d"))
	assert.Equal(t, "d", cfg.String("missing", "d"))
	assert.Equal(t, "d", cfg.String("i", "d"))
	assert.Equal(t, 4, cfg.Int("i", 1))
	assert.Equal(t, 1, cfg.Int("s", 1))
	assert.True(t, cfg.Bool("b", false))
	assert.False(t, broker.Config{}.Bool("b", false))
}

func TestConfigDuration(t *testing.T) {
	cfg := broker.Config{Extra: map[string]any{"s": "5s", "d": 2 * time.Second, "bad": "soon", "i": 3}}

	assert.Equal(t, 5*time.Second, cfg.Duration("s", time.Minute))
	assert.Equal(t, 2*time.Second, cfg.Duration("d", time.Minute))
	assert.Equal(t, time.Minute, cfg.Duration("bad", time.Minute))
	assert.Equal(t, time.Minute, cfg.Duration("i", time.Minute))
	assert.Equal(t, time.Minute, cfg.Duration("missing", time.Minute))
}
