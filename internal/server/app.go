// Package server initializes and runs the delivery server: it opens the
// relational store, applies migrations, wires the object-storage backend
// and the lifecycle services, and drives the background deadline sweeps
// until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dcarleson/delivd/internal/logging"
	"github.com/dcarleson/delivd/internal/server/config"
	"github.com/dcarleson/delivd/internal/server/repositories/repomanager"
	"github.com/dcarleson/delivd/internal/server/services"
	"github.com/dcarleson/delivd/internal/server/storage"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	statuses *services.StatusService
	projects *services.ProjectService
}

func NewApp(c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := storage.NewS3Store(context.Background(), storage.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage init error: %w", err)
	}

	contents := services.NewContentService(db, rm, store, logger)
	keys := services.NewKeyService(rm, []byte(c.KeyPassphrase), logger)
	notifier := services.NewLogNotifier(logger)

	statuses := services.NewStatusService(db, rm, contents, keys, notifier, logger)
	statuses.SetDefaultDeadline(c.DefaultDeadlineDays)

	projects := services.NewProjectService(db, rm, keys, logger)

	return &App{config: c, logger: logger, db: db, statuses: statuses, projects: projects}, nil
}

// Statuses exposes the lifecycle service for transports built on top of
// the app.
func (app *App) Statuses() *services.StatusService { return app.statuses }

// Projects exposes the project service for transports built on top of
// the app.
func (app *App) Projects() *services.ProjectService { return app.projects }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runSweep invokes fn immediately and then on every tick until ctx is done.
func (app *App) runSweep(ctx context.Context, name string, interval time.Duration, fn func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := fn(ctx)
		if err != nil {
			app.logger.Error(ctx, "sweep failed", "sweep", name, "err", err)
		} else if n > 0 {
			app.logger.Info(ctx, "sweep finished", "sweep", name, "projects", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweep(ctx, "expire", app.config.ExpireSweepInterval, app.statuses.ExpireOverdueProjects)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweep(ctx, "archive", app.config.ArchiveSweepInterval, app.statuses.ArchiveOverdueExpired)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "err", err)
	}
}
