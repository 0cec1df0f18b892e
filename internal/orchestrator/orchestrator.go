package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/repository"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/providers"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
)

// Registry is the subset of the provider registry the orchestrator needs.
type Registry interface {
	ChainFor(kind models.MetricKind) []*models.ProviderDescriptor
	Client(name string) (repository.Provider, bool)
}

// Result is a successful fetch: the value, which provider produced it, and
// every attempt made along the way (failures included).
type Result struct {
	Value     *models.MetricValue
	Provider  string
	FetchedAt time.Time
	Attempts  []models.FetchAttempt
}

// ChainExhaustedError reports that every provider in the fallback chain
// failed. It carries the full attempt list and the last error; the caller
// must fall back to cached data or explicit absence, never a made-up value.
type ChainExhaustedError struct {
	Kind     models.MetricKind
	Symbol   string
	Attempts []models.FetchAttempt
	Last     error
}

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("all %d providers failed for %s: %v",
		len(e.Attempts), models.MetricKey{Kind: e.Kind, Symbol: e.Symbol}, e.Last)
}

func (e *ChainExhaustedError) Unwrap() error { return e.Last }

// Orchestrator walks provider fallback chains: first success wins,
// individual failures are recorded and non-fatal.
type Orchestrator struct {
	registry Registry
	metrics  repository.Metrics
	logger   *applogger.Logger
}

func New(registry Registry, metrics repository.Metrics, l *applogger.Logger) *Orchestrator {
	return &Orchestrator{registry: registry, metrics: metrics, logger: l}
}

// Fetch tries each capable provider in priority order, bounded by that
// provider's timeout. Returns the first success, or *ChainExhaustedError.
func (o *Orchestrator) Fetch(ctx context.Context, kind models.MetricKind, symbol string) (*Result, error) {
	chain := o.registry.ChainFor(kind)
	if len(chain) == 0 {
		return nil, &ChainExhaustedError{
			Kind:   kind,
			Symbol: symbol,
			Last:   fmt.Errorf("no providers support metric %s", kind),
		}
	}

	key := models.MetricKey{Kind: kind, Symbol: symbol}
	attempts := make([]models.FetchAttempt, 0, len(chain))
	var lastErr error

	for _, desc := range chain {
		client, ok := o.registry.Client(desc.Name)
		if !ok {
			continue
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
		value, err := client.Fetch(callCtx, kind, symbol)
		cancel()
		latency := time.Since(start)

		attempt := models.FetchAttempt{
			Provider:  desc.Name,
			Metric:    key,
			StartedAt: start,
			Latency:   latency,
		}

		if err == nil && value != nil {
			attempt.Outcome = models.OutcomeSuccess
			attempts = append(attempts, attempt)
			o.metrics.RecordFetchAttempt(desc.Name, string(models.OutcomeSuccess), latency.Seconds())
			return &Result{
				Value:     value,
				Provider:  desc.Name,
				FetchedAt: start,
				Attempts:  attempts,
			}, nil
		}

		if err == nil {
			err = fmt.Errorf("provider %s returned no value", desc.Name)
		}
		attempt.Outcome = classify(err)
		attempt.Err = err.Error()
		attempts = append(attempts, attempt)
		lastErr = err

		o.metrics.RecordFetchAttempt(desc.Name, string(attempt.Outcome), latency.Seconds())
		o.logger.Warn("provider attempt failed",
			applogger.String("provider", desc.Name),
			applogger.String("metric", key.String()),
			applogger.String("outcome", string(attempt.Outcome)),
			applogger.Duration("latency", latency),
			applogger.Error(err),
		)

		// A cancelled parent context ends the chain; per-provider timeouts
		// do not.
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	o.metrics.RecordChainExhausted(key.String())
	return nil, &ChainExhaustedError{Kind: kind, Symbol: symbol, Attempts: attempts, Last: lastErr}
}

func classify(err error) models.AttemptOutcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeTimeout
	case errors.Is(err, providers.ErrRateLimited):
		return models.OutcomeRateLimited
	default:
		return models.OutcomeError
	}
}
