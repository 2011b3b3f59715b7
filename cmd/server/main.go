package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/crashdb/internal/config"
	"github.com/JonMunkholm/crashdb/internal/core"
	_ "github.com/JonMunkholm/crashdb/internal/core/tables" // Register detail tables
	"github.com/JonMunkholm/crashdb/internal/logging"
	"github.com/JonMunkholm/crashdb/internal/metrics"
	"github.com/JonMunkholm/crashdb/internal/store"
	"github.com/JonMunkholm/crashdb/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	if cfg.Store.AutoMigrate {
		if err := backend.Migrate(ctx); err != nil {
			slog.Error("failed to migrate store", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("detail tables registered", "count", len(core.All()))

	opts := cfg.ServiceOptions()
	var metricsHandler http.Handler
	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
		opts.Recorder = recorder
		metricsHandler = recorder.Handler()
	}
	service := core.NewService(backend, opts)
	if recorder != nil {
		recorder.RegisterWriter(service.WriterStatus)
	}

	server := web.NewServer(service, backend, cfg, metricsHandler)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Requests are drained; wait for any write still holding a slot.
		if status := service.WriterStatus(); status.Active > 0 {
			slog.Info("waiting for writes to complete", "active", status.Active)
			if err := service.WaitForWrites(shutdownCtx); err != nil {
				slog.Warn("writes did not complete in time", "error", err)
			}
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
