package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/example/community-broadcast/internal/api"
	"github.com/example/community-broadcast/internal/broadcast"
	"github.com/example/community-broadcast/internal/common"
	"github.com/example/community-broadcast/internal/email"
	"github.com/example/community-broadcast/internal/messaging"
	"github.com/example/community-broadcast/internal/notification"
	"github.com/example/community-broadcast/internal/recipient"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("broadcast-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := common.NewLogger(cfg.ServiceName, cfg.LogLevel)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort, logger)
	defer metricsSrv.Shutdown(context.Background())

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL must be provided")
	}
	pool, err := connectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	repo, err := notification.MustRepository(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("notification repository")
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure notification schema")
	}

	var legacy recipient.Store
	if cfg.LegacyDatabaseURL != "" {
		store, err := recipient.OpenLegacyStore(ctx, cfg.LegacyDatabaseURL, cfg.LegacyTable)
		if err != nil {
			// broadcasts still reach primary recipients without it
			logger.Warn().Err(err).Str("table", cfg.LegacyTable).Msg("legacy recipient store unavailable")
		} else {
			defer store.Close()
			legacy = store
		}
	}
	aggregator := recipient.NewAggregator(recipient.NewPrimaryStore(pool, cfg.PrimaryTable), legacy, cfg.DefaultCountryPrefix, logger)

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	gateway := &messaging.HTTPGateway{
		Endpoint: cfg.GatewayURL,
		Token:    cfg.GatewayToken,
		Sender:   cfg.GatewaySender,
		Client:   httpClient,
	}
	if cfg.GatewayURL == "" {
		logger.Warn().Msg("MESSAGING_GATEWAY_URL not set, messaging sends will fail with a manual fallback link")
	}

	var providers []email.Provider
	if cfg.SESEndpoint != "" {
		providers = append(providers, &email.SESProvider{Endpoint: cfg.SESEndpoint, APIKey: cfg.SESAPIKey, Client: httpClient})
	}
	if cfg.SendGridEndpoint != "" {
		providers = append(providers, &email.SendGridProvider{Endpoint: cfg.SendGridEndpoint, APIKey: cfg.SendGridAPIKey, Client: httpClient})
	}
	if len(providers) == 0 {
		logger.Warn().Msg("no email provider configured, email sends will fail")
	}

	orchestrator := broadcast.NewOrchestrator(broadcast.Options{
		Workers:           cfg.BroadcastWorkers,
		MessagingInterval: cfg.MessagingInterval,
		Timeout:           cfg.BroadcastTimeout,
	})
	orchestrator.Recipients = aggregator
	orchestrator.Messaging = messaging.NewSender(gateway, cfg.DefaultCountryPrefix, logger)
	orchestrator.Email = &email.Sender{From: cfg.EmailFrom, Providers: providers, Logger: logger}
	orchestrator.Store = repo
	orchestrator.Logger = logger

	if cfg.RedisURL != "" {
		rdb := redis.NewClient(redisOptions(cfg.RedisURL))
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, broadcast guard will fail open")
		}
		orchestrator.Guard = broadcast.NewRedisGuard(rdb, cfg.BroadcastLockTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Topic:    cfg.BroadcastTopic,
			Balancer: &kafka.Hash{},
		}
		defer producer.Close()
		orchestrator.Publisher = &broadcast.KafkaPublisher{Writer: producer}
	}

	h := api.NewHandler(repo, orchestrator, logger)

	srv := &http.Server{
		Addr:    formatAddr(cfg.HTTPPort),
		Handler: h.Router(),
	}

	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Msg("broadcast api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// connectPostgres retries the first ping so the service tolerates a database
// that comes up after it does.
func connectPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, policy, func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("postgres not ready")
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func redisOptions(raw string) *redis.Options {
	if opts, err := redis.ParseURL(raw); err == nil {
		return opts
	}
	return &redis.Options{Addr: raw}
}

func formatAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
