// Command server runs the RegiDesk registration service: the HTTP intake,
// the batch buffer and the staff flush schedule, all in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/RegiDesk/internal/config"
	"github.com/dharsanguruparan/RegiDesk/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "regidesk-server: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "regidesk-server",
		Short:        "Run the RegiDesk registration service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Prefix: "regidesk"})
			return run(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"_CONFIG"), "YAML config file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := app.start(); err != nil {
		app.close(context.Background())
		return err
	}

	serveErr := app.api.Run(ctx)

	// The HTTP server has drained; stop timers before the final flush so no
	// scheduled drain races it.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	app.close(shutdownCtx)
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}
