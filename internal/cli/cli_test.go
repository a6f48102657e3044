package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqrequest/config"
)

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	return fs
}

func TestResolve_Defaults(t *testing.T) {
	fs := newFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Resolve(fs)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestResolve_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: nats\nbroker: FILE\nloop:\n  iterations: 7\n"), 0o600))

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{
		"--config", path,
		"--broker", "FLAG",
		"--address", "a:1", "--address", "b:2",
		"--wait", "2s",
		"--seed", "9",
		"--exit-on-loop-error",
	}))

	cfg, err := Resolve(fs)
	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.Transport, "unset flag keeps the file value")
	assert.Equal(t, "FLAG", cfg.Broker)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Addresses)
	assert.Equal(t, 7, cfg.Loop.Iterations)
	assert.Equal(t, 2*time.Second, cfg.Loop.Wait)
	assert.Equal(t, uint32(9), cfg.Loop.Seed)
	assert.True(t, cfg.Loop.ExitOnLoopError)
}

func TestResolve_Invalid(t *testing.T) {
	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--submit-policy", "sometimes"}))
	_, err := Resolve(fs)
	assert.Error(t, err)
}

func TestWriteConfig(t *testing.T) {
	fs := newFlags()
	require.NoError(t, fs.Parse(nil))
	cfg, err := Resolve(fs)
	require.NoError(t, err)
	wrote, err := WriteConfig(fs, cfg)
	require.NoError(t, err)
	assert.False(t, wrote)

	path := filepath.Join(t.TempDir(), "resolved.yaml")
	fs = newFlags()
	require.NoError(t, fs.Parse([]string{"--transport", "kafka", "--iterations", "12", "--write-config", path}))
	cfg, err = Resolve(fs)
	require.NoError(t, err)
	wrote, err = WriteConfig(fs, cfg)
	require.NoError(t, err)
	assert.True(t, wrote)

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kafka", got.Transport)
	assert.Equal(t, 12, got.Loop.Iterations)
}

func TestSetupLogging(t *testing.T) {
	defer func() {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	}()

	require.NoError(t, SetupLogging(config.LogConfig{Level: "debug", Format: "json"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	assert.Error(t, SetupLogging(config.LogConfig{Level: "loud", Format: "text"}))
}

func TestServeMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "mqrequest_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	logger, _ := test.NewNullLogger()
	done := make(chan struct{})
	go func() {
		ServeMetrics(ctx, addr, reg, logrus.NewEntry(logger))
		close(done)
	}()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(body), "mqrequest_test_total 1")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
