package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/app"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/auth"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/config"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/database"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/logging"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/nvcf"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/proxy"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/redis"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/server"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/version"
)

func setupSettings() *config.Store {
	settings, err := config.Load(config.Path())
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load settings: %v", err)
	}
	return settings
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupCache connects the shared inventory cache. Returns nil when no Redis
// URL is configured, the portal then runs on its process-local cache alone.
func setupCache(cfg *config.Config) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	cache, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	return cache
}

func runGracefulShutdown(ctx context.Context, srv *server.Server, registry *proxy.Registry) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		// Connected clients get a close frame before the listener goes away.
		registry.CloseAll(proxy.CodeTerminated, "Server is shutting down.")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	settings := setupSettings()
	cfg := settings.Current()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	slog.Info("Application starting",
		"version", build.Version, "commit", build.Commit,
		"port", cfg.Port, "root_path", cfg.RootPath)

	pool := setupDB(cfg)
	defer pool.Close()

	cache := setupCache(cfg)
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go settings.Watch(ctx)

	verifier, err := auth.NewVerifier(ctx, settings)
	if err != nil {
		slog.Error("Failed to initialize the token verifier", "error", err)
		os.Exit(1)
	}

	sessions := database.NewSessionRepo(pool)
	apps := database.NewAppRepo(pool)
	pages := database.NewPageRepo(pool)

	compute := nvcf.NewClient(settings)
	inventory := nvcf.NewInventory(compute, settings, cache, clock)
	registry := proxy.NewRegistry()

	service := app.NewService(settings, sessions, apps, compute, compute, registry, clock)

	go app.NewTimeoutReaper(service).Run(ctx)
	go app.NewIdleReaper(service).Run(ctx)

	// Pass nil explicitly so a nil *redis.Client never ends up in a
	// non-nil interface in the readiness check.
	var cacheCheck server.HealthChecker
	if cache != nil {
		cacheCheck = cache
	}
	srv := server.NewServer(settings, service, inventory, apps, pages, verifier, pool, cacheCheck)

	done := runGracefulShutdown(ctx, srv, registry)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
