package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
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

func newTestRecorder(opts ...Option) *Recorder {
	return NewRecorder([]string{"coingecko", "binance"}, nopMetrics{}, applogger.Nop(), opts...)
}

func TestRecordClampsPct(t *testing.T) {
	r := newTestRecorder()

	if err := r.Record("coingecko", models.TelemetrySample{RateLimitPct: 150}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := r.Latest("coingecko")
	if !ok {
		t.Fatalf("expected sample")
	}
	if got.RateLimitPct != 100 {
		t.Fatalf("expected clamp to 100, got %v", got.RateLimitPct)
	}

	_ = r.Record("coingecko", models.TelemetrySample{RateLimitPct: -5})
	got, _ = r.Latest("coingecko")
	if got.RateLimitPct != 0 {
		t.Fatalf("expected clamp to 0, got %v", got.RateLimitPct)
	}
}

func TestRecordUnknownProvider(t *testing.T) {
	r := newTestRecorder()
	err := r.Record("nope", models.TelemetrySample{})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestQueryUnknownProviderFails(t *testing.T) {
	r := newTestRecorder()
	_, err := r.Query([]string{"coingecko", "nope"}, time.Hour)
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestQueryWindowAndOrder(t *testing.T) {
	r := newTestRecorder()
	now := time.Now()

	for _, age := range []time.Duration{3 * time.Hour, 90 * time.Minute, 30 * time.Minute} {
		_ = r.Record("coingecko", models.TelemetrySample{
			Timestamp:    now.Add(-age),
			RateLimitPct: 10,
		})
	}

	series, err := r.Query([]string{"coingecko"}, 2*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	samples := series[0].Samples
	if len(samples) != 2 {
		t.Fatalf("expected 2 in-window samples, got %d", len(samples))
	}
	if !samples[0].Timestamp.Before(samples[1].Timestamp) {
		t.Fatalf("expected ascending order")
	}
	if series[0].Hours != 2 {
		t.Fatalf("expected 2h window, got %d", series[0].Hours)
	}
}

func TestQueryClampsWindow(t *testing.T) {
	r := newTestRecorder(WithWindowBounds(time.Hour, 4*time.Hour))

	series, err := r.Query([]string{"coingecko"}, 10*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series[0].Meta.WindowHours != 4 {
		t.Fatalf("expected clamp to 4h, got %d", series[0].Meta.WindowHours)
	}

	series, _ = r.Query([]string{"coingecko"}, time.Minute)
	if series[0].Meta.WindowHours != 1 {
		t.Fatalf("expected clamp to 1h, got %d", series[0].Meta.WindowHours)
	}
}

func TestQueryDownsamples(t *testing.T) {
	r := newTestRecorder(WithMaxPoints(10))
	now := time.Now()

	var last time.Time
	for i := 0; i < 100; i++ {
		ts := now.Add(-time.Duration(100-i) * time.Second)
		last = ts
		_ = r.Record("binance", models.TelemetrySample{Timestamp: ts, RateLimitPct: float64(i)})
	}

	series, err := r.Query([]string{"binance"}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := series[0]
	if !got.Meta.Downsampled {
		t.Fatalf("expected downsampled flag")
	}
	if len(got.Samples) > 11 {
		t.Fatalf("expected at most 11 points, got %d", len(got.Samples))
	}
	if !got.Samples[len(got.Samples)-1].Timestamp.Equal(last) {
		t.Fatalf("expected newest sample preserved")
	}
}

func TestRetentionPurge(t *testing.T) {
	r := newTestRecorder(WithRetention(time.Hour))
	now := time.Now()

	_ = r.Record("coingecko", models.TelemetrySample{Timestamp: now.Add(-2 * time.Hour)})
	_ = r.Record("coingecko", models.TelemetrySample{Timestamp: now})

	series, _ := r.Query([]string{"coingecko"}, 24*time.Hour)
	if len(series[0].Samples) != 1 {
		t.Fatalf("expected old sample purged, got %d", len(series[0].Samples))
	}
}
