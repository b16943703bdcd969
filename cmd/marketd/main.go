// Command marketd serves the data marketplace over HTTP and publishes its
// outbox events to the configured sink.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"datamarket/internal/app"
	"datamarket/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	logger = logger.With("service", "marketd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap runtime", "error", err)
		os.Exit(1)
	}
	if err := rt.Run(ctx); err != nil {
		logger.Error("run", "error", err)
		os.Exit(1)
	}
}
