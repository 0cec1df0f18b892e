package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
)

// SampleArchiveSchema creates the telemetry archive table. Ordered by
// (provider, t) for windowed per-provider reads.
func SampleArchiveSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.provider_samples (
			provider String,
			t DateTime,
			rate_limit_pct Float64,
			staleness_min Float64,
			ttl_min Float64,
			status String
		) ENGINE=MergeTree ORDER BY (provider, t) TTL t + INTERVAL 90 DAY`, database),
	}
}

// CHSampleArchive appends telemetry samples to ClickHouse for retention
// beyond the in-memory window. Writes are best-effort; query traffic is
// served from memory.
type CHSampleArchive struct {
	db    *sql.DB
	table string
}

func NewCHSampleArchive(db *sql.DB, database string) *CHSampleArchive {
	return &CHSampleArchive{db: db, table: database + ".provider_samples"}
}

func (a *CHSampleArchive) Archive(ctx context.Context, provider string, s models.TelemetrySample) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (provider, t, rate_limit_pct, staleness_min, ttl_min, status) VALUES (?, ?, ?, ?, ?, ?)",
		a.table,
	)
	if _, err := a.db.ExecContext(ctx, query,
		provider, s.Timestamp, s.RateLimitPct, s.StalenessMin, s.TTLMin, string(s.Status),
	); err != nil {
		return fmt.Errorf("archive sample: %w", err)
	}
	return nil
}

func (a *CHSampleArchive) Close() error {
	return nil // pool is owned by the clickhouse client
}
