package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/conversion"
	"github.com/rowforge/rowforge/internal/logging"
	"github.com/rowforge/rowforge/internal/queue"
	"github.com/rowforge/rowforge/internal/store"
	"github.com/rowforge/rowforge/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
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
		return err
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"sync_threshold", cfg.Convert.SyncThreshold,
		"queue_enabled", cfg.Queue.URL != "",
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		return err
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		return err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	configs := store.NewConfigurationStore(pool)
	jobs := store.NewJobStore(pool)
	artifacts := store.NewArtifactStore(pool, cfg.Convert.DownloadTTL)
	quota := store.NewQuotaStore(pool)

	// The queue is optional. Without one, every conversion that needs the
	// queued path is rejected with ErrQueueUnavailable.
	var taskQueue conversion.TaskQueue
	var publisher *queue.Publisher
	if cfg.Queue.URL != "" {
		publisher, err = queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Name)
		if err != nil {
			slog.Error("failed to connect to queue", "error", err)
			return err
		}
		defer publisher.Close()
		taskQueue = publisher
		slog.Info("connected to queue", "queue", cfg.Queue.Name)
	}

	service := conversion.NewService(configs, jobs, artifacts, quota, taskQueue, cfg.Convert.SyncThreshold)

	// Cancellable context for the background worker
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	if cfg.Queue.URL != "" {
		worker, err := queue.NewWorker(cfg.Queue.URL, cfg.Queue.Name, cfg.Queue.Prefetch, service)
		if err != nil {
			slog.Error("failed to start queue worker", "error", err)
			return err
		}
		defer worker.Close()
		go func() {
			if err := worker.Run(workerCtx); err != nil {
				slog.Error("queue worker stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(service, configs, jobs, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelWorker()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
	return nil
}
