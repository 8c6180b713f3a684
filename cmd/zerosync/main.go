package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zerosync/internal/config"
	"zerosync/internal/database"
	"zerosync/internal/erp"
	"zerosync/internal/httpapi"
	"zerosync/internal/logger"
	"zerosync/internal/repository"
	"zerosync/internal/service"
	"zerosync/internal/store"
	"zerosync/internal/syncer"
	"zerosync/internal/watch"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "zerosync")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	primaryDB, err := database.NewPostgresDB(&cfg.Primary)
	if err != nil {
		log.Fatal("Primary database unavailable", zap.Error(err))
	}
	defer database.Close(primaryDB)

	stagingDB, err := database.NewPostgresDB(&cfg.Staging)
	if err != nil {
		log.Fatal("Staging database unavailable", zap.Error(err))
	}
	defer database.Close(stagingDB)

	// Schema bootstrap is idempotent and runs against both databases.
	if err := repository.EnsureSchema(ctx, primaryDB, cfg.Primary.Database); err != nil {
		log.Fatal("Schema bootstrap failed", zap.Error(err))
	}
	if err := repository.EnsureSchema(ctx, stagingDB, cfg.Staging.Database); err != nil {
		log.Fatal("Schema bootstrap failed", zap.Error(err))
	}

	var kv store.KV
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, using in-memory store", zap.Error(err))
		kv = store.NewMemoryKV()
	} else {
		kv = store.NewRedisKV(redisClient)
	}

	primaryRecords := repository.NewPostgresSystemRecordsRepository(primaryDB, cfg.Primary.Database)
	stagingRecords := repository.NewPostgresSystemRecordsRepository(stagingDB, cfg.Staging.Database)
	primaryKeys := repository.NewPostgresProductKeysRepository(primaryDB, cfg.Primary.Database)
	stagingKeys := repository.NewPostgresProductKeysRepository(stagingDB, cfg.Staging.Database)

	api := erp.NewClient(cfg.ERP.BaseURL, cfg.ERP.Username, cfg.ERP.Password, cfg.ERP.Source, log)
	if err := api.Login(ctx); err != nil {
		// The token is refreshed lazily; a failed startup login just means
		// the first submission does it.
		log.Warn("ERP login failed at startup", zap.Error(err))
	}

	targets := []syncer.Target{
		{Name: cfg.Primary.Database, Records: primaryRecords},
		{Name: cfg.Staging.Database, Records: stagingRecords},
	}
	keyTargets := []syncer.KeyTarget{
		{Name: cfg.Primary.Database, Keys: primaryKeys},
		{Name: cfg.Staging.Database, Keys: stagingKeys},
	}

	svc := syncer.NewService(targets, keyTargets, api, kv, syncer.NopPrinter{}, cfg.Watch.ReprintWindow, log)

	tracker := syncer.NewTracker(primaryRecords, api, cfg.Sync.BatchSize, log)
	task := syncer.NewTask(tracker, cfg.Sync.Interval, cfg.Sync.ErrorCooldown, log)
	go task.Run(ctx)

	poller := watch.NewDirPoller(cfg.Watch.Dir, cfg.Watch.PollInterval, cfg.Watch.QuietPeriod, cfg.Watch.ReadyTimeout, log)
	go poller.Run(ctx)
	go func() {
		for event := range poller.Events() {
			if err := svc.HandleFile(ctx, event.Path); err != nil {
				log.Error("File processing failed",
					zap.String("path", event.Path), zap.Error(err))
			}
		}
	}()

	handler := httpapi.NewStatusHandler(primaryRecords, primaryKeys, log)
	router := httpapi.NewRouter(log)
	router.RegisterStatusRoutes(handler)
	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server stopped", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
}
