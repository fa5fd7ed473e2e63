package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/tenantauth/internal/cache"
	"github.com/nikhilbhutani/tenantauth/internal/config"
	"github.com/nikhilbhutani/tenantauth/internal/database"
	"github.com/nikhilbhutani/tenantauth/internal/identity"
	"github.com/nikhilbhutani/tenantauth/internal/queue"
	"github.com/nikhilbhutani/tenantauth/internal/queue/workers"
	"github.com/nikhilbhutani/tenantauth/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level}))
	slog.SetDefault(logger)

	// Both backends are required here.
	if cfg.Database.URL == "" || cfg.Redis.Addr == "" {
		slog.Error("worker needs DATABASE_URL and REDIS_ADDR")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	st := postgres.New(db)
	users := identity.NewService(st.Users(), identity.NewBcryptHasher(cfg.Auth.BcryptCost), cache.NewCache(rdb), cfg.Cache.UsersTTL)

	srv := asynq.NewServer(queue.RedisOpt(cfg.Redis), asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{"default": 1},
	})

	registry := queue.NewHandlersRegistry()
	cacheWorker := workers.NewCacheWorker(users)
	registry.Register(queue.TypeUsersCacheWarm, asynq.HandlerFunc(cacheWorker.ProcessTask))

	scheduler, err := queue.NewScheduler(cfg.Redis, cfg.Cache.WarmInterval)
	if err != nil {
		slog.Error("scheduler setup failed", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker started", "warm_interval", cfg.Cache.WarmInterval.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	srv.Shutdown()
}
