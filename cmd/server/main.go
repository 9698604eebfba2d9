package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orderbridge/rpa-backend/internal/api"
	"github.com/orderbridge/rpa-backend/internal/application/service"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/config"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/logging"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/storage"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/store"
	"github.com/orderbridge/rpa-backend/internal/platforms"
	"github.com/orderbridge/rpa-backend/internal/rpa"
)

func main() {
	configFile := flag.String("config", "", "Configuration file path")
	flag.Parse()

	cfg := loadConfig(*configFile)
	logger := logging.NewLogger(cfg.Observability.Logging)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	remote, err := store.NewClient(cfg.Supabase, logger)
	if err != nil {
		logger.Error("Failed to create store client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	history, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize run history", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer history.Close()

	runner := rpa.NewRunner(cfg, remote, logger)
	flow := platforms.NewFlow(cfg, remote, logger)

	svc := service.NewRunService(runner, flow, history, logger)
	svc.StartBackgroundCleanup(time.Hour)
	defer svc.StopBackgroundCleanup()

	server := api.NewServer(cfg.Server, svc, history, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("Server stopped")
}

func loadConfig(configFile string) *config.Config {
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			slog.Error("Failed to load config file",
				slog.String("file", configFile),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		return cfg
	}
	return config.LoadOrEnv()
}
