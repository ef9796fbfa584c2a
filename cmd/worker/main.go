package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"avatarsvc/internal/cache"
	"avatarsvc/internal/config"
	"avatarsvc/internal/database"
	"avatarsvc/internal/log"
	"avatarsvc/internal/queue"
	"avatarsvc/internal/repository"
	"avatarsvc/internal/storage"
	"avatarsvc/internal/store"
	"avatarsvc/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("app", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	processor := tasks.NewProcessor(
		objectStore,
		repository.NewAvatarRepository(dbPool),
		store.KeyPrefix(),
		cfg.Jobs.SweepGrace,
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Jobs.Stream,
		cfg.Jobs.Group,
		cfg.Jobs.Consumer,
		cfg.Jobs.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
