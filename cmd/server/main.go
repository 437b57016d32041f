// Package main provides the API server entry point for the employee backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/emp-backend/internal/app"
	"github.com/emp-backend/internal/config"
	"github.com/emp-backend/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to initialize application")
	}

	logging.GetGlobalLogger().WithFields(map[string]interface{}{
		"profile": string(cfg.Profile),
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
	}).Info("Employee API server starting")

	if err := application.Run(ctx); err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Server stopped with error")
	}

	logging.GetGlobalLogger().Info("Server exited")
}
