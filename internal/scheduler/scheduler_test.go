package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/orchestrator"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/store"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/telemetry"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordFetchAttempt(string, string, float64) {}
func (nopMetrics) RecordCacheRead(string)                     {}
func (nopMetrics) RecordBroadcast(string, string, int)        {}
func (nopMetrics) RecordQueueDrop()                           {}
func (nopMetrics) SetActiveSessions(int)                      {}
func (nopMetrics) RecordSampleStored(string)                  {}
func (nopMetrics) RecordError(string)                         {}
func (nopMetrics) RecordLastPrice(string, float64)            {}
func (nopMetrics) RecordChainExhausted(string)                {}

type fakeFetcher struct {
	res *orchestrator.Result
	err error
}

func (f *fakeFetcher) Fetch(context.Context, models.MetricKind, string) (*orchestrator.Result, error) {
	return f.res, f.err
}

type recordingBroadcaster struct {
	envelopes []*models.Envelope
	groups    []string
}

func (b *recordingBroadcaster) Broadcast(env *models.Envelope, group string) int {
	b.envelopes = append(b.envelopes, env)
	b.groups = append(b.groups, group)
	return 1
}

func (b *recordingBroadcaster) byType(msgType string) *models.Envelope {
	for _, env := range b.envelopes {
		if env.Type == msgType {
			return env
		}
	}
	return nil
}

type fakeStats struct{}

func (fakeStats) Stats() models.ConnStats { return models.ConnStats{} }

type fixedUsage struct{ pct float64 }

func (u fixedUsage) UsagePct(string) float64 { return u.pct }

func priceValue(symbol string, price float64) *models.MetricValue {
	return &models.MetricValue{
		Kind:   models.MetricPrice,
		Symbol: symbol,
		Quote:  &models.Quote{Symbol: symbol, Price: price},
	}
}

func newTestScheduler(f Fetcher, st *store.Store, rec *telemetry.Recorder, b *recordingBroadcaster) *Scheduler {
	return New(Config{
		Symbols:         []string{"BTC"},
		ProviderNames:   []string{"coingecko"},
		StaleAlertAfter: 10 * time.Minute,
	}, f, st, rec, b, fakeStats{}, fixedUsage{pct: 25}, nopMetrics{}, applogger.Nop())
}

func newTestRecorder() *telemetry.Recorder {
	return telemetry.NewRecorder([]string{"coingecko", "binance"}, nopMetrics{}, applogger.Nop())
}

func TestCycleSuccessCachesAndBroadcasts(t *testing.T) {
	st := store.New()
	b := &recordingBroadcaster{}
	rec := newTestRecorder()
	fetcher := &fakeFetcher{res: &orchestrator.Result{
		Value:     priceValue("BTC", 50000),
		Provider:  "coingecko",
		FetchedAt: time.Now(),
		Attempts: []models.FetchAttempt{
			{Provider: "coingecko", Outcome: models.OutcomeSuccess},
		},
	}}

	s := newTestScheduler(fetcher, st, rec, b)
	s.Cycle(context.Background(), models.MetricPrice, "BTC", time.Minute)

	entry, ok := st.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "BTC"})
	if !ok {
		t.Fatalf("expected cached entry")
	}
	if entry.Source != "coingecko" {
		t.Fatalf("unexpected source %s", entry.Source)
	}

	env := b.byType(models.MsgPriceUpdate)
	if env == nil {
		t.Fatalf("expected price_update broadcast, got %v", b.envelopes)
	}
	if b.groups[0] != models.GroupPrices {
		t.Fatalf("expected prices group, got %s", b.groups[0])
	}
}

func TestCycleSuccessRecordsTelemetry(t *testing.T) {
	st := store.New()
	rec := newTestRecorder()
	fetcher := &fakeFetcher{res: &orchestrator.Result{
		Value:     priceValue("BTC", 1),
		Provider:  "coingecko",
		FetchedAt: time.Now(),
		Attempts: []models.FetchAttempt{
			{Provider: "binance", Outcome: models.OutcomeRateLimited},
			{Provider: "coingecko", Outcome: models.OutcomeSuccess},
		},
	}}

	s := newTestScheduler(fetcher, st, rec, &recordingBroadcaster{})
	s.Cycle(context.Background(), models.MetricPrice, "BTC", time.Minute)

	sample, ok := rec.Latest("coingecko")
	if !ok {
		t.Fatalf("expected success sample")
	}
	if sample.Status != models.StatusFresh || sample.RateLimitPct != 25 {
		t.Fatalf("unexpected success sample: %+v", sample)
	}

	limited, ok := rec.Latest("binance")
	if !ok {
		t.Fatalf("expected rate-limited sample")
	}
	if limited.RateLimitPct != 100 {
		t.Fatalf("expected drained budget, got %v", limited.RateLimitPct)
	}
}

func TestExhaustionKeepsCachedValue(t *testing.T) {
	st := store.New()
	b := &recordingBroadcaster{}
	old := priceValue("BTC", 42)
	st.SetAt(old, time.Now().Add(-30*time.Second), time.Minute, "coingecko")

	fetcher := &fakeFetcher{err: &orchestrator.ChainExhaustedError{
		Kind:   models.MetricPrice,
		Symbol: "BTC",
		Attempts: []models.FetchAttempt{
			{Provider: "coingecko", Outcome: models.OutcomeError},
		},
	}}

	s := newTestScheduler(fetcher, st, newTestRecorder(), b)
	s.Cycle(context.Background(), models.MetricPrice, "BTC", time.Minute)

	entry, ok := st.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "BTC"})
	if !ok || entry.Value.Quote.Price != 42 {
		t.Fatalf("expected cached value preserved")
	}
	if env := b.byType(models.MsgAlert); env != nil {
		t.Fatalf("expected no alert below staleness threshold")
	}
}

func TestExhaustionAlertsWhenStale(t *testing.T) {
	st := store.New()
	b := &recordingBroadcaster{}
	st.SetAt(priceValue("BTC", 42), time.Now().Add(-time.Hour), time.Minute, "coingecko")

	fetcher := &fakeFetcher{err: &orchestrator.ChainExhaustedError{
		Kind:   models.MetricPrice,
		Symbol: "BTC",
	}}

	s := newTestScheduler(fetcher, st, newTestRecorder(), b)
	s.Cycle(context.Background(), models.MetricPrice, "BTC", time.Minute)

	env := b.byType(models.MsgAlert)
	if env == nil {
		t.Fatalf("expected stale alert")
	}
	if b.groups[len(b.groups)-1] != models.GroupAlerts {
		t.Fatalf("expected alerts group")
	}
}

func TestExhaustionWithoutCacheIsSilent(t *testing.T) {
	st := store.New()
	b := &recordingBroadcaster{}
	fetcher := &fakeFetcher{err: &orchestrator.ChainExhaustedError{
		Kind:   models.MetricPrice,
		Symbol: "BTC",
	}}

	s := newTestScheduler(fetcher, st, newTestRecorder(), b)
	s.Cycle(context.Background(), models.MetricPrice, "BTC", time.Minute)

	if len(b.envelopes) != 0 {
		t.Fatalf("expected no broadcasts, got %d", len(b.envelopes))
	}
	if _, ok := st.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "BTC"}); ok {
		t.Fatalf("expected no fabricated cache entry")
	}
}

func TestFailureSampleCarriesStaleness(t *testing.T) {
	st := store.New()
	rec := newTestRecorder()
	st.SetAt(priceValue("BTC", 42), time.Now().Add(-5*time.Minute), time.Minute, "coingecko")

	fetcher := &fakeFetcher{err: &orchestrator.ChainExhaustedError{
		Kind:   models.MetricPrice,
		Symbol: "BTC",
		Attempts: []models.FetchAttempt{
			{Provider: "coingecko", Outcome: models.OutcomeError},
		},
	}}

	s := newTestScheduler(fetcher, st, rec, &recordingBroadcaster{})
	s.Cycle(context.Background(), models.MetricPrice, "BTC", time.Minute)

	sample, ok := rec.Latest("coingecko")
	if !ok {
		t.Fatalf("expected failure sample")
	}
	if sample.StalenessMin < 4 {
		t.Fatalf("expected staleness around 5 minutes, got %v", sample.StalenessMin)
	}
	if sample.Status == models.StatusFresh {
		t.Fatalf("expected non-fresh status, got %s", sample.Status)
	}
}
