// Package server assembles the account context server from its
// configuration: durable storage, the active working set, switch locks,
// blob storage, both transports and the background sweepers.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"github.com/dmitrijs2005/accountctx/internal/server/blobstore"
	"github.com/dmitrijs2005/accountctx/internal/server/config"
	"github.com/dmitrijs2005/accountctx/internal/server/httpapi"
	"github.com/dmitrijs2005/accountctx/internal/server/lock"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"github.com/dmitrijs2005/accountctx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountctx/internal/server/workingset"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/accountctx/internal/server/grpc"
)

const (
	sessionSweepInterval = time.Minute
	lockPoll             = 50 * time.Millisecond
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	service *api.Service
	closers []io.Closer
}

// NewApp connects to every configured backend. Anything opened before a
// failure is closed again. A missing master key is common.ErrKeyUnavailable.
func NewApp(ctx context.Context, c *config.Config) (app *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger, err := logging.New(c.LogFormat, os.Stdout)
	if err != nil {
		return nil, err
	}

	app = &App{config: c, logger: logger, metrics: metrics.New(nil)}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	masterKey, err := c.MasterKeyBytes()
	if err != nil {
		return nil, err
	}
	keys := cryptox.NewKeyService(masterKey, c.KDFIterations, cryptox.DefaultEncryptionConfig)
	codec := cryptox.NewCodec(cryptox.DefaultEncryptionConfig)

	repos, err := app.initRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	active, locker, err := app.initWorkingSet(ctx, keys, codec)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	var blobs blobstore.Store
	if c.S3Bucket != "" {
		blobs, err = blobstore.NewS3Store(ctx, blobstore.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
	}

	app.service = api.Build(api.Components{
		Config:  c,
		Repos:   repos,
		Active:  active,
		Locker:  locker,
		Blobs:   blobs,
		Keys:    keys,
		Codec:   codec,
		Metrics: app.metrics,
		Log:     logger,
	})
	return app, nil
}

func (app *App) initRepositories(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.InMemory() {
		app.logger.Warn(ctx, "using in-memory durable store, data is lost on exit")
		return repomanager.NewMemoryRepositoryManager(), nil
	}

	db, err := sql.Open("pgx", app.config.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	m := repomanager.NewPostgresRepositoryManager(db)
	if err := m.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return m, nil
}

func (app *App) initWorkingSet(ctx context.Context, keys *cryptox.KeyService, codec *cryptox.Codec) (workingset.Store, lock.Locker, error) {
	if app.config.RedisURL == "" {
		return workingset.NewMemoryStore(), lock.NewLocal(), nil
	}

	opts, err := redis.ParseURL(app.config.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	app.closers = append(app.closers, client)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, err
	}

	return workingset.NewRedisStore(client, keys, codec, app.config.SessionTTL),
		lock.NewRedis(client, app.config.LockTTL, lockPoll, app.logger), nil
}

func (app *App) close() {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i].Close())
	}
	app.closers = nil
	if err := errors.Join(errs...); err != nil {
		app.logger.Error(context.Background(), "closing backends", "error", err)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.service, app.metrics)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.service, app.metrics, httpapi.Options{
		TrustForwardedProto: app.config.TrustForwardedProto,
		AllowedOrigins:      app.config.AllowedOrigins,
	})
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startSweepers(ctx context.Context, wg *sync.WaitGroup) {
	accounts := app.service.Accounts()
	if _, err := accounts.ResumePendingDeletes(ctx); err != nil {
		app.logger.Error(ctx, "resuming pending deletes", "error", err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.service.Sessions().RunSweeper(ctx, sessionSweepInterval)
	}()
	go func() {
		defer wg.Done()
		accounts.RunDeleteSweeper(ctx, app.config.DeleteSweepInterval)
	}()
}

// Run serves both transports until ctx is cancelled, a termination signal
// arrives or either server fails.
func (app *App) Run(ctx context.Context) {
	defer app.close()

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"grpc", app.config.EndpointAddrGRPC, "http", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	app.startSweepers(ctx, &wg)

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(context.Background(), "app stopped")
}
