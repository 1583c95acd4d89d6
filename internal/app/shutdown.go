package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"govaffairs-crawler/internal/observability"
)

// GracefulShutdown returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func GracefulShutdown(logger *observability.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received, finishing current work", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}

		sig := <-sigChan
		logger.Warn("Second signal received, exiting", "signal", sig.String())
		_ = logger.Sync()
		os.Exit(1)
	}()

	return ctx, cancel
}
