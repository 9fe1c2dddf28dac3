package api

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SecureAccess/api/config"
	"SecureAccess/api/controllers"
	"SecureAccess/api/logging"

	"go.uber.org/zap"
)

var server = controllers.Server{}

func init() {
	// Outside production the local .env file fills in anything unset.
	config.LoadEnv()
}

func Run() {
	cfg := config.Load()

	logger, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		Production: cfg.IsProduction(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := logging.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer logging.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Initialize(ctx, cfg, logger); err != nil {
		logger.Fatal("initialize", zap.Error(err))
	}
	if err := server.Run(ctx, cfg.Addr()); err != nil {
		logging.Report(logger, "server stopped", err)
	}
}
