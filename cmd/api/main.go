package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/config"
	"github.com/MariamAlaa-8/realstate-backend/db"
	"github.com/MariamAlaa-8/realstate-backend/lifecycle"
	"github.com/MariamAlaa-8/realstate-backend/logging"
	"github.com/MariamAlaa-8/realstate-backend/metrics"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/notification/inbox"
	"github.com/MariamAlaa-8/realstate-backend/notification/relay"
	"github.com/MariamAlaa-8/realstate-backend/registry"
	"github.com/MariamAlaa-8/realstate-backend/sale"
	"github.com/MariamAlaa-8/realstate-backend/settlement"
	"github.com/MariamAlaa-8/realstate-backend/store/postgres"
)

const purgeInterval = 24 * time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(logging.Config{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.Format == "json",
		Color: cfg.Log.Color,
	})
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("registry api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	var verifier registry.Verifier = registry.NewPGVerifier(pool)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, registry lookups will not be cached", "error", err)
		}
		verifier = registry.NewCachedVerifier(verifier, rdb, cfg.Redis.CacheTTL, logger)
	}

	st := postgres.New(pool)
	m := metrics.New(prometheus.DefaultRegisterer)
	formatter := notification.NewFormatter(cfg.NotifyLocale)
	dispatcher := notification.NewDispatcher(logger, m)
	admins := auth.NewAdminDirectory(st, cfg.AdminUserIDs)

	authService := auth.NewService(st, verifier, cfg.JWTSecret)
	server := &Server{
		authService: authService,
		contracts: lifecycle.NewController(st, dispatcher, admins, verifier,
			lifecycle.WithFormatter(formatter),
			lifecycle.WithMetrics(m),
			lifecycle.WithLogger(logger),
		),
		sales: sale.NewManager(st, dispatcher,
			sale.WithCredentialSender(sale.LogCredentialSender{Logger: logger}),
			sale.WithPaymentPage(cfg.PaymentPagePath),
			sale.WithFormatter(formatter),
			sale.WithMetrics(m),
			sale.WithLogger(logger),
		),
		settlement: settlement.NewEngine(st, dispatcher,
			settlement.WithFormatter(formatter),
			settlement.WithMetrics(m),
			settlement.WithLogger(logger),
		),
		inbox:      inbox.New(st, dispatcher, inbox.WithLogger(logger)),
		logger:     logger,
		metrics:    promhttp.Handler(),
		purgeAfter: cfg.InactiveAfter,
	}

	validator, err := relay.NewValidator()
	if err != nil {
		return err
	}
	relayOpts := []relay.Option{relay.WithMetrics(m), relay.WithLogger(logger)}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := relay.DialRabbit(relay.RabbitConfig{URL: cfg.RabbitMQ.URL, Exchange: cfg.RabbitMQ.Exchange})
		if err != nil {
			return err
		}
		defer publisher.Close()
		relayOpts = append(relayOpts, relay.WithPublisher(publisher))
	}
	outboxRelay := relay.New(st, validator, relay.Config{
		Interval:    cfg.Relay.Interval,
		BatchSize:   cfg.Relay.BatchSize,
		MaxAttempts: cfg.Relay.MaxAttempts,
	}, relayOpts...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(ctx, cfg.HTTPAddr) })
	g.Go(func() error { return outboxRelay.Run(ctx) })
	g.Go(func() error { return purgeLoop(ctx, authService, cfg.InactiveAfter, logger) })
	return g.Wait()
}

// purgeLoop removes idle ordinary accounts once per purgeInterval.
func purgeLoop(ctx context.Context, svc *auth.Service, idle time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ids, err := svc.PurgeInactive(ctx, idle)
			if err != nil {
				logger.WarnContext(ctx, "purge inactive accounts failed", "error", err)
				continue
			}
			if len(ids) > 0 {
				logger.InfoContext(ctx, "inactive accounts purged", "count", len(ids))
			}
		}
	}
}
