package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/repository"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

// ErrUnknownProvider is returned for provider names outside the tracked
// set; callers surface it as a validation error, never silently ignore it.
var ErrUnknownProvider = errors.New("unknown provider")

// providerSeries is one provider's append-only sample buffer. Each series
// has its own lock so concurrent writers for different providers do not
// serialize.
type providerSeries struct {
	mu      sync.RWMutex
	samples []models.TelemetrySample
}

// Recorder keeps bucketed health/rate-limit/staleness history per provider.
// The provider set is fixed at construction. Retention is enforced lazily:
// samples older than the horizon are dropped on the next append for that
// provider.
type Recorder struct {
	series    map[string]*providerSeries
	retention time.Duration
	minWindow time.Duration
	maxWindow time.Duration
	maxPoints int
	archive   repository.SampleArchive
	metrics   repository.Metrics
	logger    *applogger.Logger
}

type Option func(*Recorder)

// WithRetention sets the sample retention horizon.
func WithRetention(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithWindowBounds sets the [min, max] clamp applied to query windows.
func WithWindowBounds(min, max time.Duration) Option {
	return func(r *Recorder) {
		if min > 0 && max >= min {
			r.minWindow = min
			r.maxWindow = max
		}
	}
}

// WithMaxPoints sets the downsampling target for query results.
func WithMaxPoints(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxPoints = n
		}
	}
}

// WithArchive adds a best-effort durable sink for every stored sample.
func WithArchive(a repository.SampleArchive) Option {
	return func(r *Recorder) {
		r.archive = a
	}
}

func NewRecorder(providerNames []string, metrics repository.Metrics, l *applogger.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		series:    make(map[string]*providerSeries, len(providerNames)),
		retention: 30 * 24 * time.Hour,
		minWindow: time.Hour,
		maxWindow: 7 * 24 * time.Hour,
		maxPoints: 500,
		metrics:   metrics,
		logger:    l,
	}
	for _, name := range providerNames {
		r.series[name] = &providerSeries{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends a sample for provider. RateLimitPct is clamped to [0,100]
// before storage; that bound is an invariant of the stored data, not a
// display concern. Unknown providers are an error.
func (r *Recorder) Record(provider string, s models.TelemetrySample) error {
	ps, ok := r.series[provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	if s.RateLimitPct < 0 {
		s.RateLimitPct = 0
	} else if s.RateLimitPct > 100 {
		s.RateLimitPct = 100
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}

	ps.mu.Lock()
	ps.samples = append(ps.samples, s)
	r.purgeLocked(ps, s.Timestamp)
	ps.mu.Unlock()

	r.metrics.RecordSampleStored(provider)

	if r.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.archive.Archive(ctx, provider, s); err != nil {
				r.logger.Warn("sample archive write failed",
					applogger.String("provider", provider),
					applogger.Error(err),
				)
			}
		}()
	}

	return nil
}

// purgeLocked drops samples older than the retention horizon, oldest first.
// Caller holds ps.mu.
func (r *Recorder) purgeLocked(ps *providerSeries, now time.Time) {
	cutoff := now.Add(-r.retention)
	i := 0
	for i < len(ps.samples) && ps.samples[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		ps.samples = append(ps.samples[:0:0], ps.samples[i:]...)
	}
}

// Query returns, for each requested provider, the samples within
// [now-window, now], ascending by timestamp and downsampled to the
// configured point budget. The window is clamped to the configured range
// rather than rejected, so the endpoint stays answerable. An unknown
// provider name fails the whole query.
func (r *Recorder) Query(providerNames []string, window time.Duration) ([]models.ProviderSeries, error) {
	window = clampWindow(window, r.minWindow, r.maxWindow)
	cutoff := time.Now().Add(-window)
	hours := int(window / time.Hour)

	out := make([]models.ProviderSeries, 0, len(providerNames))
	for _, name := range providerNames {
		ps, ok := r.series[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}

		ps.mu.RLock()
		windowed := sliceWindow(ps.samples, cutoff)
		ps.mu.RUnlock()

		total := len(windowed)
		downsampled := total > r.maxPoints
		if downsampled {
			windowed = downsample(windowed, r.maxPoints)
		}

		out = append(out, models.ProviderSeries{
			Provider: name,
			Hours:    hours,
			Samples:  windowed,
			Meta: models.SeriesMeta{
				Points:      len(windowed),
				WindowHours: hours,
				Downsampled: downsampled,
			},
		})
	}
	return out, nil
}

// Latest returns the most recent sample for a provider, if any.
func (r *Recorder) Latest(provider string) (models.TelemetrySample, bool) {
	ps, ok := r.series[provider]
	if !ok {
		return models.TelemetrySample{}, false
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if len(ps.samples) == 0 {
		return models.TelemetrySample{}, false
	}
	return ps.samples[len(ps.samples)-1], true
}

// Providers returns the tracked provider names.
func (r *Recorder) Providers() []string {
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	return names
}

// Has reports whether a provider is tracked.
func (r *Recorder) Has(provider string) bool {
	_, ok := r.series[provider]
	return ok
}

func clampWindow(w, min, max time.Duration) time.Duration {
	if w < min {
		return min
	}
	if w > max {
		return max
	}
	return w
}

// sliceWindow copies samples at or after cutoff. Samples are appended in
// time order, so a single scan from the first in-window index suffices.
func sliceWindow(samples []models.TelemetrySample, cutoff time.Time) []models.TelemetrySample {
	i := 0
	for i < len(samples) && samples[i].Timestamp.Before(cutoff) {
		i++
	}
	out := make([]models.TelemetrySample, len(samples)-i)
	copy(out, samples[i:])
	return out
}

// downsample picks every k-th sample to land at or under target points,
// always keeping the newest sample.
func downsample(samples []models.TelemetrySample, target int) []models.TelemetrySample {
	stride := (len(samples) + target - 1) / target
	out := make([]models.TelemetrySample, 0, target)
	for i := 0; i < len(samples); i += stride {
		out = append(out, samples[i])
	}
	if last := samples[len(samples)-1]; len(out) == 0 || out[len(out)-1].Timestamp != last.Timestamp {
		out = append(out, last)
	}
	return out
}
