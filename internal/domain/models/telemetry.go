package models

import "time"

// ProviderDescriptor is the validated, immutable description of one
// upstream provider. Built once at startup from configuration.
type ProviderDescriptor struct {
	Name         string
	Priority     int // lower = tried first
	BaseURL      string
	Timeout      time.Duration
	Capabilities map[MetricKind]bool
	RequiresKey  bool
	APIKey       string
	RateCapacity float64
	RateRefill   float64 // tokens per second
}

// Supports reports whether the provider can serve the given metric kind.
func (d *ProviderDescriptor) Supports(kind MetricKind) bool {
	return d.Capabilities[kind]
}

// AttemptOutcome classifies a single provider fetch attempt.
type AttemptOutcome string

const (
	OutcomeSuccess     AttemptOutcome = "success"
	OutcomeTimeout     AttemptOutcome = "timeout"
	OutcomeError       AttemptOutcome = "error"
	OutcomeRateLimited AttemptOutcome = "rate_limited"
)

// FetchAttempt records one provider call inside a fallback chain. Attempts
// live in telemetry and metrics only; they are never business data.
type FetchAttempt struct {
	Provider  string         `json:"provider"`
	Metric    MetricKey      `json:"metric"`
	StartedAt time.Time      `json:"started_at"`
	Outcome   AttemptOutcome `json:"outcome"`
	Latency   time.Duration  `json:"latency"`
	Err       string         `json:"error,omitempty"`
}

// TelemetrySample is one immutable health observation for a provider.
// RateLimitPct is always within [0,100] once stored.
type TelemetrySample struct {
	Timestamp    time.Time   `json:"t"`
	RateLimitPct float64     `json:"pct"`
	StalenessMin float64     `json:"staleness_min"`
	TTLMin       float64     `json:"ttl_min"`
	Status       EntryStatus `json:"status"`
}

// SeriesMeta describes a returned telemetry series.
type SeriesMeta struct {
	Points      int  `json:"points"`
	WindowHours int  `json:"window_hours"`
	Downsampled bool `json:"downsampled"`
}

// ProviderSeries is a windowed, possibly downsampled sample sequence for
// one provider, ascending by timestamp.
type ProviderSeries struct {
	Provider string            `json:"provider"`
	Hours    int               `json:"hours"`
	Samples  []TelemetrySample `json:"series"`
	Meta     SeriesMeta        `json:"meta"`
}
