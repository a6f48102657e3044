// Command mqrequest drives request/reply round trips against a broker and
// exits with a status describing how the run ended.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/core/middleware"
	"github.com/miladsoleymani/mqrequest/credentials"
	"github.com/miladsoleymani/mqrequest/internal/cli"
	"github.com/miladsoleymani/mqrequest/runner"

	// Import plugins to trigger self-registration via init()
	_ "github.com/miladsoleymani/mqrequest/plugins/amqp"
	_ "github.com/miladsoleymani/mqrequest/plugins/kafka"
	_ "github.com/miladsoleymani/mqrequest/plugins/nats"
	_ "github.com/miladsoleymani/mqrequest/plugins/redis"
)

var exitCode int

var rootCmd = &cobra.Command{
	Use:   "mqrequest",
	Short: "Send requests to a queue and wait for each reply",
	Long: `mqrequest connects to a broker, opens a request queue for output and a
reply queue for exclusive input, then repeatedly puts a payload as a request
and waits a bounded interval for its reply.

The loop ends after --iterations round trips, on the first timeout or
transport error, or on SIGINT/SIGTERM. The exit status is 1 when credentials
cannot be read, the reason code when connect fails, and the completion code
when a queue cannot be opened.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	cli.AddFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitUsage)
	}
	os.Exit(exitCode)
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := cli.Resolve(cmd.Flags())
	if err != nil {
		return err
	}
	if wrote, err := cli.WriteConfig(cmd.Flags(), cfg); wrote || err != nil {
		return err
	}
	if err := cli.SetupLogging(cfg.Log); err != nil {
		return err
	}
	logger := logrus.WithFields(logrus.Fields{"transport": cfg.Transport, "broker": cfg.Broker})

	transport, err := broker.Create(cfg.Transport, cfg.BrokerConfig())
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []runner.Option{
		runner.WithOutput(os.Stdout),
		runner.WithLogger(logger),
		runner.WithMiddleware(middleware.Recovery(), middleware.Logging(logger.WithField("component", "round-trip"))),
	}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector, err := middleware.NewPrometheusCollector(reg)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, runner.WithMiddleware(middleware.Metrics(collector)))
		go cli.ServeMetrics(ctx, cfg.MetricsAddr, reg, logger)
	}

	res := runner.New(cfg, transport, credentials.NewFile(cfg.CredentialsFile), opts...).Run(ctx)
	exitCode = res.ExitCode
	return nil
}
