package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/arbsignal/config"
	"github.com/erain9/arbsignal/pkg/accounts"
	"github.com/erain9/arbsignal/pkg/backend/memory"
	"github.com/erain9/arbsignal/pkg/backend/redis"
	"github.com/erain9/arbsignal/pkg/codec"
	"github.com/erain9/arbsignal/pkg/core"
	"github.com/erain9/arbsignal/pkg/logging"
	"github.com/erain9/arbsignal/pkg/messaging"
	"github.com/erain9/arbsignal/pkg/messaging/kafka"
	"github.com/erain9/arbsignal/pkg/messaging/rabbitmq"
	"github.com/erain9/arbsignal/pkg/otel"
	"github.com/erain9/arbsignal/pkg/server"
	"github.com/erain9/arbsignal/pkg/sizing"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

const (
	version = "0.1.0"

	// workerBacklog is how many signals may wait for the worker.
	workerBacklog = 256
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging())
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	cleanup, err := otel.Init(cfg.Otel(version))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer cleanup()
	if cfg.Telemetry.Enabled {
		if err := otel.StartRuntimeMetrics(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start runtime metrics")
		}
	}
	metrics := otel.GetMetrics()

	c, err := codec.New(cfg.AESKey())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create codec")
	}

	conns := rabbitmq.NewConnectionManager(cfg.RabbitMQ(),
		rabbitmq.WithLogger(logging.Component("rabbitmq")),
		rabbitmq.WithRetryNotify(func(error, time.Duration) {
			metrics.IncConnectionRetries(context.Background())
		}),
	)
	defer conns.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The broker may come up after us; the first publish reconnects.
	if err := conns.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("Broker not reachable at startup")
	}

	var mirrors []messaging.EnvelopeSink
	if cfg.Kafka.Enabled {
		sink := kafka.NewKafkaEnvelopeSink(cfg.Kafka.BrokerAddr, cfg.Kafka.Topic)
		defer sink.Close()
		mirrors = append(mirrors, sink)
		logger.Info().Str("topic", cfg.Kafka.Topic).Msg("Mirroring envelopes to Kafka")
	}

	publisher := rabbitmq.NewPublisher(conns, c, cfg.RabbitMQ(),
		rabbitmq.WithMirrors(mirrors...),
		rabbitmq.WithMetrics(metrics),
		rabbitmq.WithPublisherLogger(logging.Component("publisher")),
	)

	engineOpts := []sizing.Option{
		sizing.WithMetrics(metrics),
		sizing.WithLogger(logging.Component("sizing")),
	}
	deduper, closeDeduper, err := newDeduper(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up de-duplication")
	}
	defer closeDeduper()
	if deduper != nil {
		engineOpts = append(engineOpts, sizing.WithDeduper(deduper, cfg.AMQP.MarketExpiration))
	}

	lookup := accounts.NewClient(cfg.AccountsClient()).WithLogger(logging.Component("accounts"))
	engine := sizing.NewEngine(cfg.SizingParams(), lookup, publisher, engineOpts...)

	worker := server.NewWorker(engine, workerBacklog, logging.Component("worker"))
	go worker.Run(context.WithoutCancel(ctx))

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewHandler(worker, conns.Healthy, logging.Component("intake")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("Starting HTTP intake")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Pending signals get up to one market expiration window to drain.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.AMQP.MarketExpiration)
	defer cancelDrain()
	if err := worker.Stop(drainCtx); err != nil {
		logger.Warn().Err(err).Int("backlog", worker.Backlog()).Msg("Dropped pending opportunities")
	}

	logger.Info().Msg("Publisher shutdown complete")
}

// newDeduper builds the configured de-duplication backend. It returns a nil
// Deduper when de-duplication is off.
func newDeduper(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (core.Deduper, func(), error) {
	switch cfg.Dedupe.Backend {
	case config.DedupeMemory:
		logger.Info().Msg("De-duplicating signals in memory")
		return memory.NewMemoryBackend(), func() {}, nil
	case config.DedupeRedis:
		zapLogger, err := zap.NewProduction()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zap logger: %w", err)
		}
		client := redis.NewClient(redis.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		backend := redis.NewRedisBackend(client, "arbsignal", zapLogger)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := backend.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis not reachable, de-duplication fails open")
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("De-duplicating signals in Redis")
		return backend, func() {
			_ = backend.Close()
			_ = zapLogger.Sync()
		}, nil
	default:
		return nil, func() {}, nil
	}
}
