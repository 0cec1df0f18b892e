package store

import (
	"testing"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
)

func quoteValue(symbol string, price float64) *models.MetricValue {
	return &models.MetricValue{
		Kind:   models.MetricPrice,
		Symbol: symbol,
		Quote:  &models.Quote{Symbol: symbol, Price: price},
	}
}

func TestSetAndGet(t *testing.T) {
	s := New()
	if !s.Set(quoteValue("BTC", 50000), time.Minute, "coingecko") {
		t.Fatalf("expected write to apply")
	}

	e, ok := s.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "BTC"})
	if !ok {
		t.Fatalf("expected entry")
	}
	if e.Value.Quote.Price != 50000 {
		t.Fatalf("unexpected price %v", e.Value.Quote.Price)
	}
	if e.Source != "coingecko" {
		t.Fatalf("unexpected source %s", e.Source)
	}
	if e.Status != models.StatusFresh {
		t.Fatalf("expected fresh, got %s", e.Status)
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, ok := s.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "ETH"}); ok {
		t.Fatalf("expected miss")
	}
}

func TestOlderWriteIsNoOp(t *testing.T) {
	s := New()
	now := time.Now()

	if !s.SetAt(quoteValue("BTC", 100), now, time.Minute, "a") {
		t.Fatalf("expected first write to apply")
	}
	if s.SetAt(quoteValue("BTC", 99), now.Add(-time.Second), time.Minute, "b") {
		t.Fatalf("expected older write to be rejected")
	}

	e, _ := s.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "BTC"})
	if e.Value.Quote.Price != 100 || e.Source != "a" {
		t.Fatalf("older write overwrote newer value: %v from %s", e.Value.Quote.Price, e.Source)
	}
}

func TestNewerWriteReplaces(t *testing.T) {
	s := New()
	now := time.Now()

	s.SetAt(quoteValue("BTC", 100), now.Add(-time.Second), time.Minute, "a")
	if !s.SetAt(quoteValue("BTC", 101), now, time.Minute, "b") {
		t.Fatalf("expected newer write to apply")
	}

	e, _ := s.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "BTC"})
	if e.Value.Quote.Price != 101 {
		t.Fatalf("unexpected price %v", e.Value.Quote.Price)
	}
}

func TestStalenessStatus(t *testing.T) {
	s := New()
	ttl := time.Minute

	s.SetAt(quoteValue("BTC", 1), time.Now().Add(-2*time.Minute), ttl, "a")
	e, _ := s.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "BTC"})
	if e.Status != models.StatusStale {
		t.Fatalf("expected stale, got %s", e.Status)
	}
	if e.Staleness < time.Minute {
		t.Fatalf("unexpected staleness %v", e.Staleness)
	}

	s.SetAt(quoteValue("ETH", 1), time.Now().Add(-5*time.Minute), ttl, "a")
	e, _ = s.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "ETH"})
	if e.Status != models.StatusExpired {
		t.Fatalf("expected expired, got %s", e.Status)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s := New()
	ttl := time.Minute

	s.SetAt(quoteValue("BTC", 1), time.Now(), ttl, "a")
	s.SetAt(quoteValue("ETH", 1), time.Now().Add(-10*time.Minute), ttl, "a")

	if n := s.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if _, ok := s.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "ETH"}); ok {
		t.Fatalf("expected expired entry removed")
	}
	if _, ok := s.Get(models.MetricKey{Kind: models.MetricPrice, Symbol: "BTC"}); !ok {
		t.Fatalf("expected fresh entry kept")
	}
	if s.Len() != 1 {
		t.Fatalf("unexpected len %d", s.Len())
	}
}

func TestSnapshotReturnsAll(t *testing.T) {
	s := New()
	s.Set(quoteValue("BTC", 1), time.Minute, "a")
	s.Set(quoteValue("ETH", 2), time.Minute, "a")

	if got := len(s.Snapshot()); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
}
