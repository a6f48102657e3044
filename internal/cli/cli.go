// Package cli holds the flag, logging and metrics plumbing shared by the
// command binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/miladsoleymani/mqrequest/config"
)

// ExitUsage is returned for invalid flags or configuration.
const ExitUsage = 64

// AddFlags registers the configuration path and per-key overrides on fs.
// Overrides only apply when set on the command line.
func AddFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("config", "", "YAML configuration file")
	fs.String("transport", d.Transport, "Transport: amqp, nats, kafka or redis")
	fs.String("broker", d.Broker, "Broker name")
	fs.StringSlice("address", d.Addresses, "Broker address (repeatable, tried in order)")
	fs.String("credentials-file", d.CredentialsFile, "File holding user and secret")
	fs.String("request-queue", d.RequestQueue, "Queue requests are put on")
	fs.String("reply-queue", d.ReplyQueue, "Queue replies are read from")
	fs.Int("block-size", d.Loop.BlockSize, "32-bit words per payload")
	fs.Int("iterations", d.Loop.Iterations, "Number of round trips")
	fs.Duration("wait", d.Loop.Wait, "Maximum wait for each reply")
	fs.Int("progress-every", d.Loop.ProgressEvery, "Report progress every N replies")
	fs.Uint32("seed", d.Loop.Seed, "Seed of the first payload")
	fs.String("submit-policy", d.Loop.SubmitPolicy, "On put failure: abort, continue or retry")
	fs.Int("submit-retries", d.Loop.SubmitRetries, "Retries for the retry policy")
	fs.Bool("match-correl-id", d.Loop.MatchCorrelID, "Accept only the reply correlated with the request")
	fs.Bool("exit-on-loop-error", d.Loop.ExitOnLoopError, "Exit with the reason code that ended the loop")
	fs.String("metrics-addr", d.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "Log format: text, json")
	fs.String("write-config", "", "Write the resolved configuration to this file and exit")
}

// WriteConfig saves cfg to the file named by --write-config. It reports
// whether a file was written, in which case the command should exit.
func WriteConfig(fs *pflag.FlagSet, cfg *config.Config) (bool, error) {
	path, err := fs.GetString("write-config")
	if err != nil || path == "" {
		return false, err
	}
	if err := cfg.Save(path); err != nil {
		return false, err
	}
	return true, nil
}

// Resolve loads the file named by --config and applies every flag that was
// set explicitly.
func Resolve(fs *pflag.FlagSet) (*config.Config, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	var ferr error
	fs.Visit(func(f *pflag.Flag) {
		if ferr == nil {
			ferr = apply(cfg, fs, f.Name)
		}
	})
	if ferr != nil {
		return nil, ferr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func apply(cfg *config.Config, fs *pflag.FlagSet, name string) error {
	var err error
	switch name {
	case "transport":
		cfg.Transport, err = fs.GetString(name)
	case "broker":
		cfg.Broker, err = fs.GetString(name)
	case "address":
		cfg.Addresses, err = fs.GetStringSlice(name)
	case "credentials-file":
		cfg.CredentialsFile, err = fs.GetString(name)
	case "request-queue":
		cfg.RequestQueue, err = fs.GetString(name)
	case "reply-queue":
		cfg.ReplyQueue, err = fs.GetString(name)
	case "block-size":
		cfg.Loop.BlockSize, err = fs.GetInt(name)
	case "iterations":
		cfg.Loop.Iterations, err = fs.GetInt(name)
	case "wait":
		cfg.Loop.Wait, err = fs.GetDuration(name)
	case "progress-every":
		cfg.Loop.ProgressEvery, err = fs.GetInt(name)
	case "seed":
		cfg.Loop.Seed, err = fs.GetUint32(name)
	case "submit-policy":
		cfg.Loop.SubmitPolicy, err = fs.GetString(name)
	case "submit-retries":
		cfg.Loop.SubmitRetries, err = fs.GetInt(name)
	case "match-correl-id":
		cfg.Loop.MatchCorrelID, err = fs.GetBool(name)
	case "exit-on-loop-error":
		cfg.Loop.ExitOnLoopError, err = fs.GetBool(name)
	case "metrics-addr":
		cfg.MetricsAddr, err = fs.GetString(name)
	case "log-level":
		cfg.Log.Level, err = fs.GetString(name)
	case "log-format":
		cfg.Log.Format, err = fs.GetString(name)
	}
	return err
}

// SetupLogging configures the standard logrus logger.
func SetupLogging(lc config.LogConfig) error {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	if lc.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
		return nil
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.DateTime,
	})
	return nil
}

// ServeMetrics exposes reg on addr at /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server stopped")
	}
}
