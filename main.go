package main

import (
	"log/slog"
	"os"

	"kbase/pkg/config"
	"kbase/pkg/handlers"
	"kbase/pkg/services"
)

func main() {
	cfg, err := config.Load("config.json")
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("open log file", "path", cfg.LogFile, "error", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, nil))
	slog.SetDefault(logger)

	store := services.NewStore(cfg, logger)
	store.Open()

	r := handlers.NewRouter(store, cfg, logger)
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
