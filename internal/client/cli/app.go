// Package cli is the interactive device-side front end. It is deliberately
// thin: every behavior lives in the services layer.
package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/pasturelabs/herdsync/internal/client/archive"
	"github.com/pasturelabs/herdsync/internal/client/client"
	"github.com/pasturelabs/herdsync/internal/client/config"
	"github.com/pasturelabs/herdsync/internal/client/repositories/metadata"
	"github.com/pasturelabs/herdsync/internal/client/services"
	"github.com/pasturelabs/herdsync/internal/logging"

	_ "modernc.org/sqlite"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	entities *services.EntityService
	locks    *services.LockService
	sync     *services.SyncService
	api      client.Client
	actor    string
	reader   *bufio.Reader
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	repos, err := client.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := ensureDeviceID(ctx, repos); err != nil {
		return nil, err
	}

	apiClient := client.NewHTTPClient(cfg.ServerEndpointAddr)

	syncSvc := services.NewSyncService(repos, apiClient, logger)
	if cfg.S3Bucket != "" {
		archiver, err := archive.New(ctx, archive.Config{
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		syncSvc.WithArchiver(archiver)
	}

	app := &App{
		config:   cfg,
		logger:   logger,
		entities: services.NewEntityService(repos.DB, logger),
		locks:    services.NewLockService(repos.DB, logger),
		sync:     syncSvc,
		api:      apiClient,
		reader:   bufio.NewReader(os.Stdin),
	}
	return app, nil
}

// ensureDeviceID assigns this replica a stable identity on first run.
func ensureDeviceID(ctx context.Context, repos *client.Repositories) error {
	id, err := repos.Metadata.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return err
	}
	if id != nil {
		return nil
	}
	return repos.Metadata.Set(ctx, metadata.KeyDeviceID, []byte(uuid.NewString()))
}

// Run starts background work and enters the REPL.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.locks.StartSweeper(ctx, app.config.LockSweepInterval)
	go app.sync.Run(ctx, app.config.SyncInterval)

	unsubscribe := app.sync.Subscribe(func(syncing bool) {
		if syncing {
			app.logger.Info(ctx, "sync started")
		}
	})
	defer unsubscribe()

	return app.repl(ctx)
}
