// Package daemon wires the scanhub components together and runs them as a
// long-lived service with ordered startup and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/scanhub/scanhub/internal/api"
	"github.com/scanhub/scanhub/internal/broadcast"
	"github.com/scanhub/scanhub/internal/config"
	"github.com/scanhub/scanhub/internal/db"
	"github.com/scanhub/scanhub/internal/logging"
	"github.com/scanhub/scanhub/internal/metrics"
	"github.com/scanhub/scanhub/internal/runner"
	"github.com/scanhub/scanhub/internal/scanning"
	"github.com/scanhub/scanhub/internal/scheduler"
	"github.com/scanhub/scanhub/internal/workers"
)

// Run starts all components and blocks until ctx is cancelled, then shuts
// down in dependency order: API server first, engine, worker pool, then
// the database.
func Run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.SetDefault(logger)
	logger.Info("starting scanhub daemon")

	if cfg.Daemon.PIDFile != "" {
		if err := writePIDFile(cfg.Daemon.PIDFile); err != nil {
			logger.Warn("failed to write pid file", "path", cfg.Daemon.PIDFile, "error", err)
		} else {
			defer removePIDFile(cfg.Daemon.PIDFile, logger)
		}
	}

	m := metrics.Global()

	// Schedules live in Postgres when configured, otherwise in memory.
	var database *db.DB
	var store scheduler.Store = scheduler.NewMemoryStore()
	if cfg.Database.Enabled {
		database, err = db.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		store = scheduler.NewPostgresStore(database.DB)
		logger.Info("using postgres schedule store", "address", cfg.Database.Addr())
	} else {
		logger.Info("database disabled, schedules are not persisted")
	}

	hub := broadcast.NewHub(m, logger)

	pool := workers.New(workers.Config{
		Size:            cfg.Scanning.WorkerPoolSize,
		QueueSize:       cfg.Scanning.QueueSize,
		ShutdownTimeout: cfg.Daemon.ShutdownTimeout,
	}, logger)
	pool.Start()

	manager := scanning.NewManager(cfg.Scanning,
		runner.New(cfg.Scanning.Binary, logger), hub, pool, m, logger)

	engine := scheduler.NewEngine(store, manager, cfg.Scheduler.PollInterval, m, logger)
	engine.Start()

	server := api.New(cfg.API, manager, store, engine, hub, database, m, logger)

	// Blocks until ctx is cancelled or the listener fails.
	serveErr := server.Start(ctx)

	engine.Stop()
	pool.Shutdown()
	logger.Info("scanhub daemon stopped")
	return serveErr
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile(path string, logger *logging.Logger) {
	if err := os.Remove(path); err != nil {
		logger.Warn("failed to remove pid file", "path", path, "error", err)
	}
}
