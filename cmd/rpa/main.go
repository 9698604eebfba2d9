package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/config"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/logging"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/store"
	"github.com/orderbridge/rpa-backend/internal/platforms"
	"github.com/orderbridge/rpa-backend/internal/rpa"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		loginURL   = flag.String("login-url", "", "Login page URL for a generic run")
		targetURL  = flag.String("target-url", "", "Order page URL for a generic run")
		platform   = flag.String("platform", "", "Run a platform flow instead (base, rakuten, tabechoku)")
		userID     = flag.String("user-id", "", "User ID to attach to saved records")
		headless   = flag.Bool("headless", false, "Run the browser headless")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := loadConfig(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = slog.LevelDebug.String()
	}
	if *headless {
		cfg.Browser.Headless = true
	}
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

	ctx := context.Background()

	if *platform != "" {
		flow := platforms.NewFlow(cfg, remote, logger)
		if !flow.Run(ctx, *platform, *userID, "") {
			logger.Error("Platform run finished without saving any orders",
				slog.String("platform", *platform))
			os.Exit(1)
		}
		logger.Info("Platform run completed", slog.String("platform", *platform))
		return
	}

	if *loginURL == "" || *targetURL == "" {
		fmt.Fprintln(os.Stderr, "either -platform or both -login-url and -target-url are required")
		flag.Usage()
		os.Exit(2)
	}

	runner := rpa.NewRunner(cfg, remote, logger)
	result := runner.Run(ctx, rpa.Request{
		LoginURL:  *loginURL,
		TargetURL: *targetURL,
		Headless:  cfg.Browser.Headless,
		UserID:    *userID,
	})

	fmt.Println(result.Message)
	if !result.Success {
		os.Exit(1)
	}
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
