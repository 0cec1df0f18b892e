package models

import "time"

// MetricKind identifies a class of market metric a provider can serve.
type MetricKind string

const (
	MetricPrice     MetricKind = "price"
	MetricOHLC      MetricKind = "ohlc"
	MetricSentiment MetricKind = "sentiment"
)

// MetricKey identifies one cached metric: a (metric, symbol) tuple.
// Sentiment is market-wide; its Symbol is empty.
type MetricKey struct {
	Kind   MetricKind `json:"kind"`
	Symbol string     `json:"symbol"`
}

func (k MetricKey) String() string {
	if k.Symbol == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.Symbol
}

// Quote is a normalized spot price snapshot.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Volume24h float64 `json:"volume_24h,omitempty"`
}

// Candle is one OHLCV bucket.
type Candle struct {
	Bucket time.Time `json:"t"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// SentimentIndex is a market-wide sentiment reading (fear/greed style).
type SentimentIndex struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
}

// MetricValue is the payload returned by a provider fetch. Exactly one of
// the payload fields is set, matching Kind. Values are only ever produced
// by real provider responses, never synthesized.
type MetricValue struct {
	Kind      MetricKind      `json:"kind"`
	Symbol    string          `json:"symbol,omitempty"`
	Quote     *Quote          `json:"quote,omitempty"`
	Candles   []Candle        `json:"candles,omitempty"`
	Sentiment *SentimentIndex `json:"sentiment,omitempty"`
}

// Key returns the cache key for this value.
func (v *MetricValue) Key() MetricKey {
	return MetricKey{Kind: v.Kind, Symbol: v.Symbol}
}

// EntryStatus classifies a cache entry's freshness at read time.
type EntryStatus string

const (
	StatusFresh   EntryStatus = "fresh"
	StatusStale   EntryStatus = "stale"
	StatusExpired EntryStatus = "expired"
)

// CacheEntry is a last-known-good value with freshness metadata. Staleness
// and Status are computed at read time, not stored.
type CacheEntry struct {
	Key       MetricKey     `json:"key"`
	Value     *MetricValue  `json:"value"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
	Source    string        `json:"source"`
	Staleness time.Duration `json:"staleness"`
	Status    EntryStatus   `json:"status"`
}
