package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"magistral/backend/internal/cache"
	"magistral/backend/internal/config"
	"magistral/backend/internal/httpapi"
	"magistral/backend/internal/lock"
	"magistral/backend/internal/logging"
	"magistral/backend/internal/metrics"
	"magistral/backend/internal/service"
	"magistral/backend/internal/settlement"
	"magistral/backend/internal/store"
	"magistral/backend/internal/store/memory"
	pgstore "magistral/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("postgres schema", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository ready", zap.String("backend", "postgres"))
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository ready", zap.String("backend", "memory"))
	}

	baixaCache, locker, closeRedis := setupRedis(ctx, cfg, logger)
	if closeRedis != nil {
		closers = append(closers, closeRedis)
	}

	var recorder metrics.Recorder = metrics.Noop{}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		recorder = prom
		metricsHandler = prom.Handler()
	}

	engine := settlement.New(repo, settlement.Options{
		Locker:          locker,
		BulkConcurrency: cfg.BulkConcurrency,
		Logger:          logger.Named("settlement"),
	})
	svc := service.New(repo, engine, service.Options{
		Cache:          baixaCache,
		CacheTTL:       cfg.BaixaCacheTTL(),
		Metrics:        recorder,
		Logger:         logger.Named("service"),
		DefaultUnidade: cfg.DefaultUnidade,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger.Named("http"),
		Metrics:       metricsHandler,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("settlement backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// setupRedis returns the Redis-backed cache and locker when REDIS_ADDR is set
// and reachable. Otherwise it falls back to a noop cache and a process-local
// locker, and the returned closer is nil.
func setupRedis(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.BaixaCache, lock.Locker, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("redis disabled", zap.String("cache", "noop"), zap.String("lock", "local"))
		return cache.NoopBaixaCache{}, lock.NewLocal(), nil
	}

	client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using noop cache and local lock", zap.Error(err))
		_ = client.Close()
		return cache.NoopBaixaCache{}, lock.NewLocal(), nil
	}

	logger.Info("redis ready", zap.String("addr", cfg.RedisAddr))
	return cache.NewRedisBaixaCache(client), lock.NewRedis(client, cfg.LockTTL(), logger.Named("lock")), client.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BulkConcurrency < 1 {
		return fmt.Errorf("BULK_CONCURRENCY must be positive")
	}
	return nil
}
