package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// RunUntilSignal runs a until SIGINT or SIGTERM, then closes it.
func (a *App) RunUntilSignal(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := a.Run(ctx)

	a.logger.Info("Shutting down application")
	if err := a.Close(); err != nil {
		a.logger.Error("Error during shutdown", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	a.logger.Info("Application shut down gracefully")
	return runErr
}
