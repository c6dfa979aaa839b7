// Package main is the entry point of the progression API server.
//
// The server exposes the progression engine over HTTP: activity reports,
// XP grants, quests, achievements, profiles and the leaderboard. Redis is
// optional; without it the process uses in-process locks, an in-memory
// event bus and serves the leaderboard straight from storage.
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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cardquest/progression/config"
	"github.com/cardquest/progression/internal/application/command"
	"github.com/cardquest/progression/internal/application/eventhandler"
	"github.com/cardquest/progression/internal/application/query"
	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/internal/infrastructure/messaging"
	"github.com/cardquest/progression/internal/infrastructure/metrics"
	"github.com/cardquest/progression/internal/infrastructure/persistence"
	"github.com/cardquest/progression/internal/infrastructure/persistence/memory"
	"github.com/cardquest/progression/internal/infrastructure/persistence/redis"
	httpapi "github.com/cardquest/progression/internal/interface/http"
	"github.com/cardquest/progression/internal/interface/http/handlers"
	"github.com/cardquest/progression/pkg/circuitbreaker"
	"github.com/cardquest/progression/pkg/logger"
	"github.com/cardquest/progression/pkg/timeutil"
	"github.com/cardquest/progression/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// eventBus is what both bus implementations offer.
type eventBus interface {
	shared.EventBus
	Close() error
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING AND TRACING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddSource: cfg.IsDevelopment(),
	})
	log.Info("starting progression server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("storage", string(cfg.Storage.Driver)),
	)

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Enabled:        cfg.Observability.TracingEnabled,
		Endpoint:       cfg.Observability.TracingEndpoint,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var metricsHandler http.Handler
	if cfg.Observability.MetricsEnabled {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache       *redis.Cache
		leaderboard *redis.LeaderboardCache
		locker      progression.Locker = memory.NewLocker()
	)
	if cfg.Redis.Enabled() {
		cache, err = redis.NewCache(ctx, redisOptions(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, running without cache", logger.Err(err))
			cache = nil
		} else {
			defer cache.Close()
			leaderboard = redis.NewLeaderboardCache(cache, cfg.Engine.LeaderboardCacheTTL)
			locker = redis.NewProfileLocker(cache)
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.Observer = m

	var bus eventBus
	if cache != nil {
		redisBus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:   cache.Client(),
			LocalBus: busConfig,
			Logger:   log,
		})
		if err != nil {
			log.Warn("redis event bus unavailable, using in-memory bus", logger.Err(err))
		} else {
			bus = redisBus
		}
	}
	if bus == nil {
		bus = messaging.NewInMemoryEventBus(busConfig)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()

	if leaderboard != nil {
		if err := eventhandler.NewOnXPGainedHandler(leaderboard, log).Register(bus); err != nil {
			return fmt.Errorf("failed to register leaderboard updater: %w", err)
		}
	}
	if err := eventhandler.NewOnMilestoneHandler(log).Register(bus); err != nil {
		return fmt.Errorf("failed to register milestone logger: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	engine := progression.NewEngine(timeutil.NewCalendar(cfg.App.Location), newSampler(cfg.Engine.SamplerSeed))

	writer := command.NewProfileWriter(store.Repo, engine, command.Options{
		Locker:             locker,
		Publisher:          bus,
		Recorder:           m,
		Features:           cfg.Features,
		Logger:             log,
		LockTTL:            cfg.Engine.LockTTL,
		MaxConflictRetries: cfg.Engine.MaxConflictRetries,
	})

	leaderboardOpts := query.GetLeaderboardOptions{Recorder: m, Features: cfg.Features, Logger: log}
	if leaderboard != nil {
		leaderboardOpts.Cache = leaderboard
		leaderboardOpts.Breaker = circuitbreaker.CacheBreaker("leaderboard-cache",
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			},
			query.CacheFailure,
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("storage", handlers.NewPingCheck(store.Repo))
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
	}

	serverConfig := httpapi.DefaultConfig()
	serverConfig.Addr = cfg.HTTP.Addr
	serverConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	serverConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	serverConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	serverConfig.AllowedOrigins = cfg.HTTP.CORSAllowedOrigins
	serverConfig.RateLimitRPS = cfg.HTTP.RateLimitRPS
	serverConfig.RateLimitBurst = cfg.HTTP.RateLimitBurst
	serverConfig.APIKeyHashes = cfg.HTTP.APIKeyHashes
	serverConfig.AdminKeyHashes = cfg.HTTP.AdminKeyHashes

	server := httpapi.NewServer(serverConfig, httpapi.Dependencies{
		ReportActivity:    command.NewReportActivityHandler(writer),
		GrantXP:           command.NewGrantXPHandler(writer),
		CompleteQuest:     command.NewCompleteQuestHandler(writer),
		UnlockAchievement: command.NewUnlockAchievementHandler(writer),
		GetProfile:        query.NewGetProfileHandler(store.Repo, engine, writer),
		ListAchievements:  query.NewListAchievementsHandler(store.Repo),
		GetLeaderboard:    query.NewGetLeaderboardHandler(store.Repo, leaderboardOpts),
		HealthChecker:     health,
		Metrics:           metricsHandler,
		Features:          cfg.Features,
		Logger:            log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 9. RUN UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func redisOptions(c config.RedisConfig) redis.Options {
	return redis.Options{
		URL:          c.URL,
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// newSampler returns a reproducible sampler for a non-zero seed.
func newSampler(seed uint64) progression.Sampler {
	if seed == 0 {
		return progression.NewTimeSampler()
	}
	return progression.NewRandSampler(seed, seed^0x9e3779b97f4a7c15)
}
