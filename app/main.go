package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lysyi3m/event-feed/app/api"
	"github.com/lysyi3m/event-feed/app/cfg"
	"github.com/lysyi3m/event-feed/app/database"
	"github.com/lysyi3m/event-feed/app/fetch"
	"github.com/lysyi3m/event-feed/app/ingest"
	"github.com/lysyi3m/event-feed/app/source"
	"github.com/lysyi3m/event-feed/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(appCfg); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Event Feed server", "version", appCfg.Version)

	if dir := filepath.Dir(appCfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := source.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load source configurations: %w", err)
	}
	slog.Info("Source configurations loaded", "dir", appCfg.SourcesDir, "count", configCache.GetConfigCount())

	sourceRepo := database.NewSourceRepository(db)
	itemRepo := database.NewItemRepository(db)
	engagementRepo := database.NewEngagementRepository(db)
	boostRepo := database.NewBoostRepository(db)

	scheduler := tasks.NewScheduler(configCache, sourceRepo, itemRepo,
		&http.Client{Timeout: 60 * time.Second}, ingest.NewParser(), tasks.Options{
			UserAgent:   appCfg.UserAgent,
			Interval:    time.Duration(appCfg.SchedulerInterval) * time.Second,
			WorkerCount: appCfg.WorkerCount,
		})
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)

	handler := api.NewHandler(configCache, sourceRepo, itemRepo, engagementRepo, boostRepo, scheduler,
		api.RenderSettings{
			Placement:     appCfg.BoostPlacement,
			BoostLimit:    appCfg.BoostLimit,
			BoostInterval: appCfg.BoostInterval,
			PageSize:      appCfg.PageSize,
			Fetch: fetch.Config{
				MaxRetries: appCfg.FetchMaxRetries,
				BaseDelay:  appCfg.FetchBaseDelay(),
			},
			VisibilityThreshold: appCfg.VisibilityThreshold,
			AutoplayFallback:    appCfg.AutoplayFallback(),
		}, appCfg.Version)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return runErr
}
