package di

import (
	"context"
	"fmt"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/repository"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/handler/api"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/orchestrator"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/providers"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/registry"
	internalrepo "github.com/nimazasinich/crypto-dt-source-sub019/internal/repository"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/scheduler"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/store"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/telemetry"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/ws"
	pkgcache "github.com/nimazasinich/crypto-dt-source-sub019/pkg/cache"
	pkgch "github.com/nimazasinich/crypto-dt-source-sub019/pkg/clickhouse"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/config"
	pkgkafka "github.com/nimazasinich/crypto-dt-source-sub019/pkg/kafka"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/metrics"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRateTracker creates the shared token-bucket tracker.
func ProvideRateTracker() *providers.RateTracker {
	return providers.NewRateTracker()
}

// ProvideRegistry validates provider configuration and builds clients.
func ProvideRegistry(cfg *config.Config, tracker *providers.RateTracker, l *applogger.Logger) (*registry.Registry, error) {
	return registry.New(cfg.Providers, registry.DefaultFactories(), tracker, l)
}

// ProvideStore creates the in-memory metric cache.
func ProvideStore() *store.Store {
	return store.New()
}

// ProvideRedisCache creates the optional Redis client for cache snapshots.
// Returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	cache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache, nil
}

// ProvideSnapshotStore wraps the Redis client as a cache snapshot mirror.
func ProvideSnapshotStore(cache *pkgcache.RedisCache) repository.SnapshotStore {
	if cache == nil {
		return nil
	}
	return internalrepo.NewRedisSnapshot(cache)
}

// ProvideClickHouseClient creates the optional ClickHouse client and
// initializes the telemetry archive schema. Returns nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SampleArchiveSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSampleArchive wraps the ClickHouse client as a telemetry sink.
func ProvideSampleArchive(client *pkgch.Client, cfg *config.Config) repository.SampleArchive {
	if client == nil {
		return nil
	}
	return internalrepo.NewCHSampleArchive(client.DB(), cfg.ClickHouse.Database)
}

// ProvideRecorder creates the telemetry recorder for all registered providers.
func ProvideRecorder(
	cfg *config.Config,
	reg *registry.Registry,
	archive repository.SampleArchive,
	m repository.Metrics,
	l *applogger.Logger,
) *telemetry.Recorder {
	opts := []telemetry.Option{
		telemetry.WithRetention(cfg.Telemetry.Retention),
		telemetry.WithWindowBounds(cfg.Telemetry.MinWindow, cfg.Telemetry.MaxWindow),
		telemetry.WithMaxPoints(cfg.Telemetry.MaxPoints),
	}
	if archive != nil {
		opts = append(opts, telemetry.WithArchive(archive))
	}
	return telemetry.NewRecorder(reg.Names(), m, l, opts...)
}

// ProvideOrchestrator creates the fallback-chain fetcher.
func ProvideOrchestrator(reg *registry.Registry, m repository.Metrics, l *applogger.Logger) *orchestrator.Orchestrator {
	return orchestrator.New(reg, m, l)
}

// ProvideManager creates the websocket session manager.
func ProvideManager(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *ws.Manager {
	return ws.NewManager(ws.Config{
		HeartbeatInterval: cfg.WebSocket.HeartbeatInterval,
		IdleTimeout:       cfg.WebSocket.IdleTimeout,
		SendQueueSize:     cfg.WebSocket.SendQueueSize,
		WriteWait:         cfg.WebSocket.WriteWait,
		PongWait:          cfg.WebSocket.PongWait,
	}, m, l)
}

// ProvideKafkaProducer creates the optional Kafka producer. Returns nil
// when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithAsync(cfg.Kafka.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideUpdatePublisher wraps the Kafka producer as a market update sink.
func ProvideUpdatePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.UpdatePublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideScheduler creates the periodic fetch/broadcast driver.
func ProvideScheduler(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	st *store.Store,
	recorder *telemetry.Recorder,
	manager *ws.Manager,
	reg *registry.Registry,
	tracker *providers.RateTracker,
	publisher repository.UpdatePublisher,
	snapshot repository.SnapshotStore,
	m repository.Metrics,
	l *applogger.Logger,
) *scheduler.Scheduler {
	s := scheduler.New(scheduler.Config{
		Symbols:           cfg.Tracker.Symbols,
		ProviderNames:     reg.Names(),
		PriceInterval:     cfg.Tracker.PriceInterval,
		OHLCInterval:      cfg.Tracker.OHLCInterval,
		SentimentInterval: cfg.Tracker.SentimentInterval,
		PriceTTL:          cfg.Cache.PriceTTL,
		OHLCTTL:           cfg.Cache.OHLCTTL,
		SentimentTTL:      cfg.Cache.SentimentTTL,
		StatsInterval:     cfg.WebSocket.StatsInterval,
		StaleAlertAfter:   cfg.Tracker.StaleAlertAfter,
		SweepInterval:     cfg.Cache.SweepInterval,
	}, orch, st, recorder, manager, manager, tracker, m, l)

	if publisher != nil {
		s.SetPublisher(publisher)
	}
	if snapshot != nil {
		s.SetSnapshot(snapshot)
	}
	return s
}

// ProvideHandler creates the REST handler and registers health checks for
// the backends that are actually enabled.
func ProvideHandler(
	st *store.Store,
	recorder *telemetry.Recorder,
	reg *registry.Registry,
	manager *ws.Manager,
	redisCache *pkgcache.RedisCache,
	chClient *pkgch.Client,
	m repository.Metrics,
	l *applogger.Logger,
) *api.Handler {
	h := api.NewHandler(st, recorder, reg, manager, m, l)
	if redisCache != nil {
		h.AddHealthCheck("redis", redisCache)
	}
	if chClient != nil {
		h.AddHealthCheck("clickhouse", chClient)
	}
	return h
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	st *store.Store,
	sched *scheduler.Scheduler,
	manager *ws.Manager,
	handler *api.Handler,
	snapshot repository.SnapshotStore,
	publisher repository.UpdatePublisher,
	chClient *pkgch.Client,
) *server.App {
	app := server.New(cfg, l, st, sched, manager, handler)
	if snapshot != nil {
		app.SetSnapshot(snapshot)
		app.AddCloser("redis", snapshot)
	}
	if publisher != nil {
		app.AddCloser("kafka", publisher)
	}
	if chClient != nil {
		app.AddCloser("clickhouse", chClient)
	}
	return app
}
