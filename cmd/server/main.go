package main

import (
	"fmt"
	"log/slog"
	"os"

	"go-news-cms/internal/app"
	"go-news-cms/internal/config"
	"go-news-cms/internal/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("news-cms auth service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(slog.New(logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)))

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	return application.Run()
}
