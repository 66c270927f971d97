// Package main wires together the product import service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/api"
	cacheMemory "github.com/skuline/product-import/internal/cache/memory"
	cacheRedis "github.com/skuline/product-import/internal/cache/redis"
	"github.com/skuline/product-import/internal/catalog"
	"github.com/skuline/product-import/internal/clock/system"
	"github.com/skuline/product-import/internal/config"
	"github.com/skuline/product-import/internal/id/uuid"
	"github.com/skuline/product-import/internal/importer"
	"github.com/skuline/product-import/internal/logging"
	"github.com/skuline/product-import/internal/metrics"
	"github.com/skuline/product-import/internal/products"
	"github.com/skuline/product-import/internal/progress"
	queueMemory "github.com/skuline/product-import/internal/queue/memory"
	queuePubSub "github.com/skuline/product-import/internal/queue/pubsub"
	"github.com/skuline/product-import/internal/storage/gcs"
	"github.com/skuline/product-import/internal/storage/local"
	storageMemory "github.com/skuline/product-import/internal/storage/memory"
	"github.com/skuline/product-import/internal/storage/postgres"
	"github.com/skuline/product-import/internal/storage/source"
	"github.com/skuline/product-import/internal/webhook"
	"github.com/skuline/product-import/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()
	idGen := uuid.New()

	var (
		jobStore     catalog.JobStore
		productStore catalog.ProductStore
		subStore     catalog.SubscriptionStore
	)
	if cfg.DB.DSN != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
		if err != nil {
			logger.Fatal("parse database dsn failed", zap.Error(err))
		}
		poolCfg.MaxConns = int32(cfg.DB.MaxOpenConns)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			logger.Fatal("connect database failed", zap.Error(err))
		}
		defer pool.Close()
		jobStore = postgres.NewJobStoreWithPool(pool)
		productStore = postgres.NewProductStoreWithPool(pool)
		subStore = postgres.NewSubscriptionStoreWithPool(pool)
	} else {
		logger.Warn("db.dsn is empty, using in-memory stores")
		jobStore = storageMemory.NewJobStore()
		productStore = storageMemory.NewProductStore()
		subStore = storageMemory.NewSubscriptionStore()
	}

	var cache catalog.ProgressCache
	if cfg.Redis.URL != "" {
		redisCache, err := cacheRedis.NewProgressCache(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("connect redis failed", zap.Error(err))
		}
		defer func() {
			if closeErr := redisCache.Close(); closeErr != nil {
				logger.Warn("close redis failed", zap.Error(closeErr))
			}
		}()
		cache = redisCache
	} else {
		logger.Warn("redis.url is empty, using in-memory progress cache")
		cache = cacheMemory.NewProgressCache()
	}

	var (
		objects catalog.ObjectStore
		opener  catalog.SourceOpener
	)
	switch cfg.Storage.Backend {
	case config.BackendGCS:
		store, err := gcs.New(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("init gcs storage failed", zap.Error(err))
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Warn("close gcs client failed", zap.Error(closeErr))
			}
		}()
		objects = store
		opener = source.NewHTTPSource(store, nil)
	default:
		store, err := local.NewStore(cfg.Storage.LocalDir)
		if err != nil {
			logger.Fatal("init local storage failed", zap.Error(err))
		}
		objects = store
		opener = store
	}

	var tasks catalog.Queue
	switch cfg.Queue.Backend {
	case config.BackendPubSub:
		q, err := queuePubSub.NewQueue(
			ctx,
			cfg.PubSub.ProjectID,
			cfg.PubSub.TopicName,
			cfg.PubSub.Subscription,
			logger.Named("queue"),
		)
		if err != nil {
			logger.Fatal("init pubsub queue failed", zap.Error(err))
		}
		defer func() {
			if closeErr := q.Close(); closeErr != nil {
				logger.Warn("close pubsub queue failed", zap.Error(closeErr))
			}
		}()
		tasks = q
	default:
		q := queueMemory.NewQueue(cfg.Queue.Depth)
		defer q.Close()
		tasks = q
	}

	tracker := progress.NewTracker(cache, jobStore, clock, progress.Config{
		DurableEvery: cfg.Importer.DurableEvery,
		TerminalTTL:  cfg.TerminalCacheTTL(),
	}, logger.Named("progress"))

	runner := importer.New(
		jobStore,
		productStore,
		opener,
		tracker,
		tasks,
		clock,
		importer.Config{ChunkSize: cfg.Importer.ChunkSize},
		logger.Named("importer"),
	)

	dispatcher := webhook.New(subStore, nil, clock, webhook.Config{
		Timeout:     cfg.WebhookTimeout(),
		MaxAttempts: cfg.Webhook.MaxAttempts,
		RetryDelay:  cfg.WebhookRetryDelay(),
	}, logger.Named("webhook"))

	productSvc := products.New(productStore, tasks, clock, logger.Named("products"))

	pool := worker.New(tasks, runner, dispatcher, worker.Config{
		Concurrency: cfg.Importer.Concurrency,
	}, logger.Named("worker"))

	apiServer := api.NewServer(
		jobStore,
		tracker,
		objects,
		tasks,
		productSvc,
		subStore,
		dispatcher,
		idGen,
		clock,
		api.Config{
			UploadURLTTL:   cfg.UploadURLTTL(),
			RequestTimeout: cfg.ServerTimeout(),
			AuthEnabled:    cfg.Auth.Enabled,
			APIKey:         cfg.Auth.APIKey,
		},
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	workersDone := make(chan struct{})
	go func() {
		logger.Info("worker pool started", zap.Int("concurrency", cfg.Importer.Concurrency))
		pool.Run(ctx)
		close(workersDone)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn("workers did not drain before deadline")
	}
	logger.Info("shutdown complete")
}
