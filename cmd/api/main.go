package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tally/internal/infrastructure"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.Run(ctx); err != nil {
		return err
	}

	slog.Info("shutdown complete")
	return nil
}
