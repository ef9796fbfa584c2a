package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"avatarsvc/internal/cache"
	"avatarsvc/internal/config"
	"avatarsvc/internal/database"
	"avatarsvc/internal/gravatar"
	"avatarsvc/internal/handlers"
	"avatarsvc/internal/identity"
	"avatarsvc/internal/jobs"
	"avatarsvc/internal/log"
	"avatarsvc/internal/repository"
	"avatarsvc/internal/server"
	"avatarsvc/internal/service"
	"avatarsvc/internal/settings"
	"avatarsvc/internal/storage"
	"avatarsvc/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(cfg.Postgres.MigrationsPath, cfg.Postgres.DSN); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	settingsStore, err := settings.NewStore(redisClient, settings.DefaultKey, cfg.Avatar)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid avatar settings")
	}

	queue := jobs.NewQueue(redisClient, cfg.Jobs.Stream)
	avatarStore := store.New(repository.NewAvatarRepository(dbPool), objectStore, queue, logger)

	avatarService := service.NewAvatarService(
		avatarStore,
		settingsStore,
		identity.NewClient(cfg.Identity),
		gravatar.NewClient(cfg.Gravatar.Timeout),
		cfg.Avatar,
		logger,
	)

	handlerSet := handlers.NewHandlerSet(logger, cfg, avatarService, settingsStore, handlers.HealthChecks{
		Database: dbPool,
		Cache: handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
		Storage: objectStore,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(queue, cfg.Jobs.SweepSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
