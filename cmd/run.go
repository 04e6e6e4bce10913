package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// shutdownGrace bounds how long in-flight HTTP requests may drain.
const shutdownGrace = 15 * time.Second

// newRunCmd creates the 'run' subcommand: the long-lived scheduler plus
// ops server.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the crawl scheduler and ops server",
		Long: `Starts the cron-driven crawl loop and the operational HTTP server
(health, metrics, source administration). Runs until interrupted.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- appInstance.Server.Start()
	}()

	if err := appInstance.Scheduler.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("ops server failed", zap.Error(err))
		}
	}

	appInstance.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := appInstance.Server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}
	return nil
}
