// Package server assembles the FileVault server: database, migrations, blob
// storage, application services, and the HTTP endpoint.
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

	"github.com/sethvargo/go-retry"

	"github.com/smartctf/filevault/internal/logging"
	"github.com/smartctf/filevault/internal/server/blob"
	"github.com/smartctf/filevault/internal/server/config"
	"github.com/smartctf/filevault/internal/server/httpapi"
	"github.com/smartctf/filevault/internal/server/repositories/repomanager"
	"github.com/smartctf/filevault/internal/server/services"
)

const dbConnectAttempts = 60

type App struct {
	cfg    *config.Config
	logger logging.Logger
}

func NewApp(cfg *config.Config) *App {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	return &App{cfg: cfg, logger: logger}
}

// Run starts the server and blocks until the context is cancelled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	db, err := sql.Open("pgx", a.cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := a.waitForDB(ctx, db); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info(ctx, "migrations applied")

	blobs, err := a.newBlobStore(ctx)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	srv := httpapi.NewServer(a.cfg, db,
		services.NewUserService(db, repos, a.cfg),
		services.NewUploadService(db, repos, blobs, a.logger),
		services.NewDownloadService(db, repos, blobs, a.logger),
		a.logger)

	var wg sync.WaitGroup

	if sweeper, ok := blobs.(blob.Sweeper); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runScratchSweeper(ctx, sweeper)
		}()
	}

	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info(ctx, "http endpoint listening", "addr", a.cfg.EndpointAddrHTTP)
		errCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info(ctx, "shutdown signal received")
		if err := srv.Shutdown(); err != nil {
			a.logger.Error(ctx, "shutdown failed", "error", err.Error())
		}
		<-errCh
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http endpoint: %w", err)
		}
	}

	wg.Wait()
	a.logger.Info(ctx, "server stopped")
	return nil
}

// waitForDB pings the database once a second until it answers. Container
// orchestration often starts the server before PostgreSQL accepts connections.
func (a *App) waitForDB(ctx context.Context, db *sql.DB) error {
	backoff := retry.WithMaxRetries(dbConnectAttempts, retry.NewConstant(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			a.logger.Info(ctx, "waiting for database", "error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (a *App) newBlobStore(ctx context.Context) (blob.Store, error) {
	switch a.cfg.BlobBackend {
	case "fs":
		return blob.NewFSStore(a.cfg.BlobRootDir)
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{
			RootUser:     a.cfg.S3RootUser,
			RootPassword: a.cfg.S3RootPassword,
			Bucket:       a.cfg.S3Bucket,
			Region:       a.cfg.S3Region,
			BaseEndpoint: a.cfg.S3BaseEndpoint,
			ScratchDir:   a.cfg.BlobRootDir,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", a.cfg.BlobBackend)
	}
}

// runScratchSweeper periodically removes abandoned scratch artifacts left by
// interrupted uploads.
func (a *App) runScratchSweeper(ctx context.Context, sweeper blob.Sweeper) {
	ticker := time.NewTicker(a.cfg.ScratchSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sweeper.SweepScratch(a.cfg.ScratchMaxAge)
			if err != nil {
				a.logger.Warn(ctx, "scratch sweep failed", "error", err.Error())
				continue
			}
			if removed > 0 {
				a.logger.Info(ctx, "swept abandoned scratch files", "count", removed)
			}
		}
	}
}
