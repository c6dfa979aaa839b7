// Package main is the entry point of the progression background worker.
//
// The worker periodically rebuilds the Redis leaderboard from storage so the
// cache converges even when incremental updates were lost. It needs Redis;
// without it there is nothing to maintain and the worker exits.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cardquest/progression/config"
	"github.com/cardquest/progression/internal/infrastructure/metrics"
	"github.com/cardquest/progression/internal/infrastructure/persistence"
	"github.com/cardquest/progression/internal/infrastructure/persistence/redis"
	"github.com/cardquest/progression/internal/infrastructure/scheduler"
	"github.com/cardquest/progression/internal/infrastructure/scheduler/jobs"
	"github.com/cardquest/progression/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: cfg.Observability.LogFormat,
	}).With(logger.String("process", "worker"))
	log.Info("starting progression worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Duration("leaderboard_interval", cfg.Worker.LeaderboardInterval),
		logger.Int("leaderboard_size", cfg.Worker.LeaderboardSize),
	)

	if !cfg.Redis.Enabled() {
		return errors.New("worker requires REDIS_URL or REDIS_ADDR")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE AND REDIS
	// ─────────────────────────────────────────────────────────────────────────
	store, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	cache, err := redis.NewCache(ctx, redis.Options{
		URL:          cfg.Redis.URL,
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cache.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		Observer:   m,
		JobTimeout: cfg.Worker.JobTimeout,
		RunOnStart: true,
	})

	rebuild := jobs.NewRebuildLeaderboardJob(
		store.Repo,
		redis.NewLeaderboardCache(cache, cfg.Engine.LeaderboardCacheTTL),
		cfg.Worker.LeaderboardSize,
		log,
	)
	if err := sched.Register(rebuild, scheduler.NewIntervalSchedule(cfg.Worker.LeaderboardInterval)); err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if err := sched.Start(gctx); err != nil {
		return err
	}

	if cfg.Observability.MetricsEnabled {
		metricsServer := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("serving worker metrics", logger.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("stopping scheduler")
		sched.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}
