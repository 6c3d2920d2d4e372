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

	"github.com/JonMunkholm/dealerprice/internal/config"
	"github.com/JonMunkholm/dealerprice/internal/core"
	"github.com/JonMunkholm/dealerprice/internal/logging"
	"github.com/JonMunkholm/dealerprice/internal/metrics"
	"github.com/JonMunkholm/dealerprice/internal/notify"
	"github.com/JonMunkholm/dealerprice/internal/store"
	"github.com/JonMunkholm/dealerprice/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"import_batch_size", cfg.Import.BatchSize,
		"redis_notify", cfg.Notify.RedisURL != "",
	)

	ctx := context.Background()

	backend, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	slog.Info("store ready", "driver", cfg.Store.Driver)

	opts := core.Options{
		BatchSize:   cfg.Import.BatchSize,
		PreviewRows: cfg.Import.PreviewRows,
		Timeout:     cfg.Import.Timeout,
		DBFCodepage: cfg.Import.DBFCodepage,
		Limiter:     core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		Notifier:    notify.Nop{},
	}

	if cfg.Notify.RedisURL != "" {
		client, err := notify.Connect(ctx, cfg.Notify.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		opts.Notifier = notify.NewRedis(client, cfg.Notify.Channel)
		slog.Info("redis notifications enabled", "channel", cfg.Notify.Channel)
	}

	serverOpts := web.Options{Ping: backend.Ping, History: backend}
	if cfg.Metrics.Enabled {
		m := metrics.New()
		opts.Observer = m
		serverOpts.Metrics = m.Handler()
	}

	service := core.NewService(backend, opts)
	server := web.NewServer(service, cfg, serverOpts)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running imports so no dealer is left half replaced
		status := service.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		closeStore()
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
