package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"poe/internal/chain"
	"poe/internal/platform/config"
	"poe/internal/platform/kafka/producer"
	platformredis "poe/internal/platform/redis"
	"poe/internal/registry/events"
	"poe/internal/registry/events/outbox"
	regmetrics "poe/internal/registry/metrics"
	"poe/internal/registry/service"
	"poe/internal/registry/store/memory"
	"poe/internal/registry/store/postgres"
	redisstore "poe/internal/registry/store/redis"
	"poe/internal/registry/store/sqlite"
	"poe/pkg/platform/sentinel"
	"poe/pkg/platform/sqldb"
)

const tracerName = "poe/registry"

// app holds the process-scoped dependencies built from config.
type app struct {
	service *service.Service
	worker  *outbox.Worker
	checks  []healthCheck
	closers []func()
}

type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

func (a *app) addCheck(name string, check func(ctx context.Context) error) {
	a.checks = append(a.checks, healthCheck{name: name, check: check})
}

// health runs every dependency check and reports the first failure as
// sentinel.ErrUnavailable.
func (a *app) health(ctx context.Context) error {
	for _, c := range a.checks {
		if err := c.check(ctx); err != nil {
			return fmt.Errorf("%s: %w: %w", c.name, sentinel.ErrUnavailable, err)
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type backend interface {
	service.Store
	service.StoreTx
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	m := regmetrics.New(reg)

	var redisClient *platformredis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		a.addCheck("redis", redisClient.Health)
	}

	heights, err := newHeightSource(cfg.Ledger, redisClient, log)
	if err != nil {
		return nil, err
	}

	var (
		store   backend
		sink    service.EventSink
		db      *sql.DB
		pending *outbox.Store
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		mem := memory.New()
		store, sink = mem, events.NewLogSink(log)
	case config.BackendRedis:
		rs := redisstore.New(redisClient.Client, cfg.Redis.KeyPrefix,
			redisstore.WithLogger(log),
			redisstore.WithStreamMaxLen(cfg.Redis.StreamMaxLen),
		)
		store, sink = rs, rs
	case config.BackendPostgres:
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		store = postgres.New(db, log)
		pending = outbox.New(db, sqldb.Postgres)
		sink = pending
	case config.BackendSQLite:
		db, err = sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := sqlite.Migrate(ctx, db); err != nil {
			return nil, err
		}
		store = sqlite.New(db, log)
		pending = outbox.New(db, sqldb.SQLite)
		sink = pending
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.UsesOutbox() {
		a.addCheck("database", db.PingContext)
		publisher, err := newPublisher(ctx, cfg, log, a)
		if err != nil {
			return nil, err
		}
		a.worker = outbox.NewWorker(pending, publisher,
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithRetention(cfg.Outbox.Retention),
			outbox.WithLogger(log),
			outbox.WithMetrics(m),
		)
	} else if cfg.PublishesToKafka() {
		log.Warn("kafka brokers configured but the store backend has no outbox; events are not published to kafka",
			"store_backend", cfg.StoreBackend,
		)
	}

	a.service = service.New(store, store, heights, sink,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTracer(otel.Tracer(tracerName)),
	)
	return a, nil
}

func newHeightSource(cfg config.LedgerConfig, client *platformredis.Client, log *slog.Logger) (service.HeightSource, error) {
	switch cfg.HeightSource {
	case config.HeightClock:
		clock, err := chain.NewBlockClock(cfg.Genesis, cfg.BlockInterval)
		if err != nil {
			return nil, err
		}
		return clock, nil
	case config.HeightRedis:
		if client == nil {
			return nil, errors.New("redis height source requires POE_REDIS_URL")
		}
		return chain.NewRedisHeight(client.Client, cfg.HeightKey, chain.WithLogger(log)), nil
	default:
		return nil, fmt.Errorf("unknown height source %q", cfg.HeightSource)
	}
}

func newPublisher(ctx context.Context, cfg config.Server, log *slog.Logger, a *app) (outbox.Publisher, error) {
	if !cfg.PublishesToKafka() {
		return outbox.NewLogPublisher(log), nil
	}
	p, err := producer.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)
	a.addCheck("kafka", p.Ping)
	if err := p.EnsureTopic(ctx, cfg.Kafka.Partitions, 1); err != nil {
		return nil, err
	}
	return outbox.NewKafkaPublisher(p), nil
}
