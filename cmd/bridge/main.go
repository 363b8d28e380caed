// Package main is the entry point of the SkolBridge daemon.
//
// The daemon polls one or more Bakalari school servers for every
// configured child, caches the results as immutable snapshots, announces
// newly appeared records on the event bus, and serves the cached state
// over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skolbridge/skolbridge/config"
	"github.com/skolbridge/skolbridge/internal/client"
	"github.com/skolbridge/skolbridge/internal/coordinator"
	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/records"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
	"github.com/skolbridge/skolbridge/internal/infrastructure/external/bakalari"
	"github.com/skolbridge/skolbridge/internal/infrastructure/messaging"
	"github.com/skolbridge/skolbridge/internal/infrastructure/metrics"
	"github.com/skolbridge/skolbridge/internal/infrastructure/persistence/memory"
	"github.com/skolbridge/skolbridge/internal/infrastructure/persistence/postgres"
	"github.com/skolbridge/skolbridge/internal/infrastructure/persistence/redis"
	"github.com/skolbridge/skolbridge/internal/infrastructure/scheduler"
	"github.com/skolbridge/skolbridge/internal/infrastructure/scheduler/jobs"
	httpiface "github.com/skolbridge/skolbridge/internal/interface/http"
	"github.com/skolbridge/skolbridge/internal/service"
	"github.com/skolbridge/skolbridge/pkg/seal"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting skolbridge",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. CHILD RECORD STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	var optionsRepo children.OptionsRepository

	switch cfg.Storage.Backend {
	case "postgres":
		log.Info("connecting to database...")
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			conn.Close()
		}()

		if err := postgres.Migrate(ctx, conn); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")

		sealer, err := seal.NewFromBase64(cfg.Storage.SealKey)
		if err != nil {
			return fmt.Errorf("invalid SEAL_KEY: %w", err)
		}
		optionsRepo = postgres.NewOptionsRepository(conn, sealer)

	default:
		repo := memory.NewOptionsRepository()
		if cfg.Storage.ChildrenFile != "" {
			slots, err := loadChildrenFile(cfg.Storage.ChildrenFile)
			if err != nil {
				return fmt.Errorf("failed to load children file: %w", err)
			}
			repo.Seed(slots)
			log.Info("seeded children from file",
				"path", cfg.Storage.ChildrenFile,
				"slots", len(slots),
			)
		}
		optionsRepo = repo
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. CHILD INDEX
	// ─────────────────────────────────────────────────────────────────────────
	raw, err := optionsRepo.Children(ctx)
	if err != nil {
		return fmt.Errorf("failed to read children: %w", err)
	}
	index := children.BuildIndex(raw, log)
	if index.Len() == 0 {
		log.Warn("no pollable children configured, nothing to do until records are added")
	}
	log.Info("child index built", "children", index.Len())

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS & METRICS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	metricSet := metrics.New()
	if err := bus.SubscribeAll(metricSet.ObserveEvent); err != nil {
		return fmt.Errorf("failed to attach metrics to event bus: %w", err)
	}

	// Log every new-record announcement so a bare deployment without
	// downstream consumers still leaves a trace.
	if err := bus.SubscribeAll(func(event shared.Event) error {
		log.Debug("event published", "type", event.EventType(), "payload", event.Payload())
		return nil
	}); err != nil {
		return fmt.Errorf("failed to attach event logger: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. POLLING CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	pcConfig := client.DefaultPollContextConfig(optionsRepo, bus)
	pcConfig.Logger = log
	pcConfig.HTTPTimeout = cfg.Bakalari.RequestTimeout
	pcConfig.RateLimiter = bakalari.RateLimiterConfig{
		RequestsPerSecond: cfg.Bakalari.RateLimit,
		BurstSize:         cfg.Bakalari.RateLimitBurst,
		MinInterval:       cfg.Bakalari.MinInterval,
	}
	pcConfig.CircuitBreaker = bakalari.CircuitBreakerConfig{
		FailureThreshold: cfg.Bakalari.CircuitBreakerThreshold,
		SuccessThreshold: 2,
		Timeout:          cfg.Bakalari.CircuitBreakerTimeout,
	}
	pollCtx := client.NewPollContext(pcConfig)

	clients := make([]*client.AuthenticatedClient, 0, index.Len())
	for _, child := range index.Children() {
		slot, err := index.OptionKeyFor(child.Key)
		if err != nil {
			return fmt.Errorf("failed to resolve slot for %s: %w", child.Key, err)
		}
		clients = append(clients, client.NewAuthenticatedClient(pollCtx, child, slot))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SEEN SET
	// ─────────────────────────────────────────────────────────────────────────
	var seenStore records.SeenStore

	switch cfg.Seen.Backend {
	case "redis":
		log.Info("connecting to Redis...")
		seenConfig := redis.DefaultSeenStoreConfig(cfg.Seen.KeyPrefix)
		seenConfig.Addr = cfg.Seen.RedisAddr
		seenConfig.Password = cfg.Seen.RedisPassword
		seenConfig.DB = cfg.Seen.RedisDB
		seenConfig.TTL = cfg.Seen.TTL
		seenConfig.Logger = log

		redisSeen, err := redis.NewSeenStore(ctx, seenConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection...")
			_ = redisSeen.Close()
		}()
		seenStore = redisSeen
		log.Info("Redis connection established")

	default:
		seenStore = memory.NewSeenStore()
		log.Info("using in-memory seen set, records re-announce after a restart")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. COORDINATORS
	// ─────────────────────────────────────────────────────────────────────────
	clock := func() time.Time { return time.Now().In(cfg.App.Location) }

	baseConfig := func(interval time.Duration) coordinator.Config {
		c := coordinator.DefaultConfig(interval)
		c.Seen = seenStore
		c.Bus = bus
		c.Clock = clock
		c.Logger = log
		return c
	}

	marksConfig := coordinator.DefaultMarksConfig()
	marksConfig.Config = baseConfig(cfg.Polling.MarksInterval)
	marksConfig.SchoolYearStartMonth = cfg.Polling.SchoolYearStartMonth
	marksConfig.SchoolYearStartDay = cfg.Polling.SchoolYearStartDay
	marksCoord := coordinator.NewMarksCoordinator(marksConfig, clients)

	messagesConfig := coordinator.DefaultMessagesConfig()
	messagesConfig.Config = baseConfig(cfg.Polling.MessagesInterval)
	messagesConfig.SchoolYearStartMonth = cfg.Polling.SchoolYearStartMonth
	messagesConfig.SchoolYearStartDay = cfg.Polling.SchoolYearStartDay
	messagesCoord := coordinator.NewMessagesCoordinator(messagesConfig, clients)

	noticeboardCoord := coordinator.NewNoticeboardCoordinator(baseConfig(cfg.Polling.NoticeboardInterval), clients)
	timetableCoord := coordinator.NewTimetableCoordinator(baseConfig(cfg.Polling.TimetableInterval), clients)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedConfig := scheduler.DefaultConfig()
	schedConfig.Logger = log
	sched := scheduler.New(schedConfig)

	if err := jobs.RegisterAll(sched, marksCoord, messagesCoord, noticeboardCoord, timetableCoord); err != nil {
		return fmt.Errorf("failed to register poll jobs: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		log.Info("stopping scheduler...")
		_ = sched.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP INTERFACE
	// ─────────────────────────────────────────────────────────────────────────
	actions := service.NewActions(marksCoord, messagesCoord, noticeboardCoord, timetableCoord, log)

	var httpErrCh <-chan error
	var httpServer *httpiface.Server
	if cfg.HTTP.Enabled {
		httpConfig := httpiface.DefaultConfig()
		httpConfig.Host = cfg.HTTP.Host
		httpConfig.Port = cfg.HTTP.Port
		httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
		httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
		httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
		httpConfig.EnableMetrics = cfg.HTTP.MetricsEnabled

		httpServer = httpiface.NewServer(httpConfig, httpiface.Dependencies{
			Marks:       marksCoord,
			Messages:    messagesCoord,
			Noticeboard: noticeboardCoord,
			Timetable:   timetableCoord,
			Actions:     actions,
			Metrics:     metricSet,
			Logger:      log,
		})
		httpErrCh = httpServer.StartAsync()
	}

	log.Info("skolbridge is running",
		"children", index.Len(),
		"storage", cfg.Storage.Backend,
		"seen", cfg.Seen.Backend,
		"http", cfg.HTTP.Enabled,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-httpErrCh:
		if err != nil {
			log.Error("http server failed", "error", err)
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging per the observability config.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" || cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadChildrenFile reads a JSON file mapping slot names to child records.
func loadChildrenFile(path string) (map[string]children.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var slots map[string]children.Record
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return slots, nil
}
