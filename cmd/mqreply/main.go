// Command mqreply answers requests from mqrequest: it echoes each request
// body to the request's reply queue, correlated with the request.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/credentials"
	"github.com/miladsoleymani/mqrequest/internal/cli"
	"github.com/miladsoleymani/mqrequest/runner"

	// Import plugins to trigger self-registration via init()
	_ "github.com/miladsoleymani/mqrequest/plugins/amqp"
	_ "github.com/miladsoleymani/mqrequest/plugins/kafka"
	_ "github.com/miladsoleymani/mqrequest/plugins/nats"
	_ "github.com/miladsoleymani/mqrequest/plugins/redis"
)

var rootCmd = &cobra.Command{
	Use:          "mqreply",
	Short:        "Echo every request on the request queue back to its reply queue",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	cli.AddFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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
	logger := logrus.WithFields(logrus.Fields{"component": "responder", "queue": cfg.RequestQueue})

	transport, err := broker.Create(cfg.Transport, cfg.BrokerConfig())
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serving requests")
	n, err := runner.Serve(ctx, cfg, transport, credentials.NewFile(cfg.CredentialsFile), logger)
	logger.WithField("replies", n).Info("stopped")
	return err
}
