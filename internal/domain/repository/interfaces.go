package repository

import (
	"context"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
)

// Provider is the capability exposed by an upstream data source client.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, kind models.MetricKind, symbol string) (*models.MetricValue, error)
}

// Metrics records operational measurements.
type Metrics interface {
	RecordFetchAttempt(provider, outcome string, seconds float64)
	RecordCacheRead(result string)
	RecordBroadcast(group, msgType string, delivered int)
	RecordQueueDrop()
	SetActiveSessions(n int)
	RecordSampleStored(provider string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordChainExhausted(metric string)
}

// SampleArchive persists telemetry samples beyond the in-memory window.
// Writes are best-effort; the in-memory recorder alone serves queries.
type SampleArchive interface {
	Archive(ctx context.Context, provider string, s models.TelemetrySample) error
	Close() error
}

// SnapshotStore persists last-known-good cache entries across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, e models.CacheEntry) error
	LoadAll(ctx context.Context) ([]models.CacheEntry, error)
	Close() error
}

// UpdatePublisher forwards market updates to an external broker.
type UpdatePublisher interface {
	Publish(ctx context.Context, symbol string, env *models.Envelope) error
	Close() error
}

// Broadcaster fans a message out to subscribed sessions, returning the
// number of sessions it was enqueued for.
type Broadcaster interface {
	Broadcast(env *models.Envelope, group string) int
}
