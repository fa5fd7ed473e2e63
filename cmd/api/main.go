package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/tenantauth/internal/api"
	"github.com/nikhilbhutani/tenantauth/internal/auth"
	"github.com/nikhilbhutani/tenantauth/internal/config"
	"github.com/nikhilbhutani/tenantauth/internal/database"
	"github.com/nikhilbhutani/tenantauth/internal/queue"
	"github.com/nikhilbhutani/tenantauth/internal/rbac"
	"github.com/nikhilbhutani/tenantauth/internal/store"
	"github.com/nikhilbhutani/tenantauth/internal/store/memory"
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

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Postgres when configured, otherwise an in-process store
	var st store.Store
	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			slog.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := database.RunMigrations(ctx, db, database.Migrations()); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		st = postgres.New(db)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		st = memory.NewStore()
	}

	// Redis (optional)
	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, running without shared sessions and cache", "error", err)
			client.Close()
		} else {
			rdb = client
			defer client.Close()
		}
	}

	svc := api.NewServices(cfg, st, rdb)
	if err := rbac.Seed(ctx, svc.Catalog); err != nil {
		slog.Error("seeding roles failed", "error", err)
		os.Exit(1)
	}
	if cfg.Platform.AdminEmail != "" {
		m, err := svc.Auth.BootstrapPlatformAdmin(ctx, auth.SignupInput{
			Name:         cfg.Platform.AdminName,
			Email:        cfg.Platform.AdminEmail,
			Password:     cfg.Platform.AdminPassword,
			TenantName:   cfg.Platform.TenantName,
			TenantDomain: cfg.Platform.TenantDomain,
		})
		if err != nil {
			slog.Error("platform admin bootstrap failed", "error", err)
			os.Exit(1)
		}
		slog.Info("platform admin ready", "user_id", m.UserID, "tenant_id", m.TenantID)
	}

	if rdb != nil {
		qc := queue.NewClient(cfg.Redis)
		if err := qc.EnqueueUsersCacheWarm(ctx, "startup"); err != nil {
			slog.Warn("could not schedule cache warm", "error", err)
		}
		qc.Close()
	}

	router := api.NewRouter(cfg, svc)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
