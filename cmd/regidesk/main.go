// Command regidesk is the operator CLI: it inspects and drives a running
// RegiDesk server and checks generated documents offline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/RegiDesk/internal/client"
	"github.com/dharsanguruparan/RegiDesk/internal/config"
	"github.com/dharsanguruparan/RegiDesk/internal/logging"
	"github.com/dharsanguruparan/RegiDesk/internal/signing"
)

var (
	serverURL  string
	configPath string
	timeout    time.Duration
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "regidesk: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regidesk",
		Short: "RegiDesk operator CLI",
		Long: `regidesk talks to a running registration server: it shows the staff batch,
forces a flush, downloads the ledger and looks up submissions. The admin secret
and flush schedule are read from the same config the server uses.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://127.0.0.1:5000", "Base URL of the RegiDesk server")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"_CONFIG"), "YAML config file")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every request")
	cmd.AddCommand(
		newStatusCmd(),
		newFlushCmd(),
		newHistoryCmd(),
		newLedgerCmd(),
		newSubmitCmd(),
		newSubmissionCmd(),
		newScheduleCmd(),
		newInspectCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	var signer *signing.Signer
	if cfg.Admin.Secret != "" {
		signer = signing.NewSigner([]byte(cfg.Admin.Secret), cfg.Admin.TokenTTL)
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := logging.New(logging.Options{Level: level, Prefix: "regidesk"})
	return client.New(serverURL, signer, timeout, logger), nil
}
