package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/repository"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/orchestrator"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/store"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/telemetry"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

// Fetcher is the orchestrator capability the scheduler depends on.
type Fetcher interface {
	Fetch(ctx context.Context, kind models.MetricKind, symbol string) (*orchestrator.Result, error)
}

// StatsSource provides live connection aggregates for periodic pushes.
type StatsSource interface {
	Stats() models.ConnStats
}

// RateUsage reports the consumed share of a provider's rate budget.
type RateUsage interface {
	UsagePct(name string) float64
}

// Config tunes the periodic fetch cycles.
type Config struct {
	Symbols           []string
	ProviderNames     []string
	PriceInterval     time.Duration
	OHLCInterval      time.Duration
	SentimentInterval time.Duration
	PriceTTL          time.Duration
	OHLCTTL           time.Duration
	SentimentTTL      time.Duration
	StatsInterval     time.Duration
	StaleAlertAfter   time.Duration
	SweepInterval     time.Duration
}

// Scheduler drives the system. Each tracked metric gets its own periodic
// task that fetches, writes the cache, appends telemetry, and fans the
// update out, independently of all other tasks. Chain exhaustion leaves
// the cached value to age and raises an alert once it is stale past the
// threshold; no value is ever invented.
type Scheduler struct {
	cfg         Config
	fetcher     Fetcher
	cache       *store.Store
	recorder    *telemetry.Recorder
	broadcaster repository.Broadcaster
	stats       StatsSource
	usage       RateUsage
	publisher   repository.UpdatePublisher // optional
	snapshot    repository.SnapshotStore   // optional
	metrics     repository.Metrics
	logger      *applogger.Logger

	wg sync.WaitGroup
}

func New(
	cfg Config,
	fetcher Fetcher,
	cache *store.Store,
	recorder *telemetry.Recorder,
	broadcaster repository.Broadcaster,
	stats StatsSource,
	usage RateUsage,
	metrics repository.Metrics,
	l *applogger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		fetcher:     fetcher,
		cache:       cache,
		recorder:    recorder,
		broadcaster: broadcaster,
		stats:       stats,
		usage:       usage,
		metrics:     metrics,
		logger:      l,
	}
}

// SetPublisher wires an optional broker sink for market updates.
func (s *Scheduler) SetPublisher(p repository.UpdatePublisher) { s.publisher = p }

// SetSnapshot wires an optional durable mirror for cache writes.
func (s *Scheduler) SetSnapshot(store repository.SnapshotStore) { s.snapshot = store }

// Start launches all periodic tasks. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, symbol := range s.cfg.Symbols {
		s.spawnJob(ctx, models.MetricPrice, symbol, s.cfg.PriceInterval, s.cfg.PriceTTL)
		s.spawnJob(ctx, models.MetricOHLC, symbol, s.cfg.OHLCInterval, s.cfg.OHLCTTL)
	}
	s.spawnJob(ctx, models.MetricSentiment, "", s.cfg.SentimentInterval, s.cfg.SentimentTTL)

	s.wg.Add(1)
	go s.statsLoop(ctx)

	if s.cfg.SweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(ctx)
	}
}

// Wait blocks until all tasks have stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) spawnJob(ctx context.Context, kind models.MetricKind, symbol string, interval, ttl time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.Cycle(ctx, kind, symbol, ttl)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cycle(ctx, kind, symbol, ttl)
			}
		}
	}()
}

// Cycle runs one fetch cycle for a metric. Failures are recorded and
// never crash the loop.
func (s *Scheduler) Cycle(ctx context.Context, kind models.MetricKind, symbol string, ttl time.Duration) {
	key := models.MetricKey{Kind: kind, Symbol: symbol}

	res, err := s.fetcher.Fetch(ctx, kind, symbol)
	if err != nil {
		s.handleExhaustion(key, ttl, err)
		return
	}

	applied := s.cache.SetAt(res.Value, res.FetchedAt, ttl, res.Provider)
	if applied && s.snapshot != nil {
		if entry, ok := s.cache.Get(key); ok {
			go s.saveSnapshot(entry)
		}
	}

	s.recordAttempts(res.Attempts, key, ttl)
	s.broadcastValue(res.Value)
	s.publishValue(ctx, res.Value)
}

func (s *Scheduler) handleExhaustion(key models.MetricKey, ttl time.Duration, err error) {
	var ex *orchestrator.ChainExhaustedError
	if errors.As(err, &ex) {
		s.recordAttempts(ex.Attempts, key, ttl)
	}
	s.logger.Warn("fetch cycle failed, serving cached value",
		applogger.String("metric", key.String()),
		applogger.Error(err),
	)

	entry, ok := s.cache.Get(key)
	if !ok {
		// Nothing cached: the metric is simply absent until a provider
		// recovers.
		return
	}
	if entry.Staleness > s.cfg.StaleAlertAfter {
		s.broadcaster.Broadcast(models.NewEnvelope(models.MsgAlert, models.AlertData{
			AlertType: "stale_data",
			Message:   fmt.Sprintf("%s has not refreshed for %s", key, entry.Staleness.Round(time.Second)),
			Severity:  "warning",
		}), models.GroupAlerts)
	}
}

// recordAttempts turns a cycle's fetch attempts into telemetry samples.
// The succeeding provider samples as fresh with zero staleness; a failed
// provider samples with the current staleness of the key it failed to
// refresh, and a drained rate budget when it was rate limited.
func (s *Scheduler) recordAttempts(attempts []models.FetchAttempt, key models.MetricKey, ttl time.Duration) {
	now := time.Now().UTC()
	entry, cached := s.cache.Get(key)

	for _, a := range attempts {
		sample := models.TelemetrySample{
			Timestamp: now,
			TTLMin:    ttl.Minutes(),
		}
		switch {
		case a.Outcome == models.OutcomeSuccess:
			sample.RateLimitPct = s.usage.UsagePct(a.Provider)
			sample.Status = models.StatusFresh
		case a.Outcome == models.OutcomeRateLimited:
			sample.RateLimitPct = 100
			sample.Status = staleStatus(entry, cached)
			sample.StalenessMin = stalenessMin(entry, cached)
		default:
			sample.RateLimitPct = s.usage.UsagePct(a.Provider)
			sample.Status = staleStatus(entry, cached)
			sample.StalenessMin = stalenessMin(entry, cached)
		}
		if err := s.recorder.Record(a.Provider, sample); err != nil {
			s.metrics.RecordError("telemetry_record")
		}
	}
}

func (s *Scheduler) broadcastValue(v *models.MetricValue) {
	switch v.Kind {
	case models.MetricPrice:
		s.metrics.RecordLastPrice(v.Symbol, v.Quote.Price)
		s.broadcaster.Broadcast(models.NewEnvelope(models.MsgPriceUpdate, v.Quote), models.GroupPrices)
	default:
		s.broadcaster.Broadcast(models.NewEnvelope(models.MsgMarketUpdate, v), models.GroupMarket)
	}
}

func (s *Scheduler) publishValue(ctx context.Context, v *models.MetricValue) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msgType := models.MsgMarketUpdate
	if v.Kind == models.MetricPrice {
		msgType = models.MsgPriceUpdate
	}
	if err := s.publisher.Publish(pubCtx, v.Symbol, models.NewEnvelope(msgType, v)); err != nil {
		s.metrics.RecordError("kafka_publish")
		s.logger.Warn("update publish failed", applogger.Error(err))
	}
}

func (s *Scheduler) saveSnapshot(entry models.CacheEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.snapshot.Save(ctx, entry); err != nil {
		s.metrics.RecordError("snapshot_save")
		s.logger.Warn("cache snapshot failed",
			applogger.String("key", entry.Key.String()),
			applogger.Error(err),
		)
	}
}

func (s *Scheduler) statsLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcaster.Broadcast(models.NewEnvelope(models.MsgStatsUpdate, s.stats.Stats()), models.GroupAll)
			s.broadcaster.Broadcast(models.NewEnvelope(models.MsgProviderStats, s.providerStats()), models.GroupMarket)
		}
	}
}

func (s *Scheduler) providerStats() []models.ProviderStat {
	out := make([]models.ProviderStat, 0, len(s.cfg.ProviderNames))
	for _, name := range s.cfg.ProviderNames {
		stat := models.ProviderStat{
			Provider:     name,
			RateLimitPct: s.usage.UsagePct(name),
			Status:       models.StatusFresh,
		}
		if sample, ok := s.recorder.Latest(name); ok {
			stat.Status = sample.Status
			stat.SampledAt = sample.Timestamp
		}
		out = append(out, stat)
	}
	return out
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cache.Sweep(); n > 0 {
				s.logger.Debug("cache sweep", applogger.Int("removed", n))
			}
		}
	}
}

func staleStatus(entry models.CacheEntry, cached bool) models.EntryStatus {
	if !cached {
		return models.StatusExpired
	}
	return entry.Status
}

func stalenessMin(entry models.CacheEntry, cached bool) float64 {
	if !cached {
		return 0
	}
	return entry.Staleness.Minutes()
}
