package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	pkgcache "github.com/nimazasinich/crypto-dt-source-sub019/pkg/cache"
)

// RedisSnapshot mirrors last-known-good cache entries to Redis so a restart
// resumes with the previous values instead of an empty cache. Snapshots
// keep each entry up to the expired horizon (3x TTL), matching the
// in-memory sweep threshold.
type RedisSnapshot struct {
	cache *pkgcache.RedisCache
}

func NewRedisSnapshot(cache *pkgcache.RedisCache) *RedisSnapshot {
	return &RedisSnapshot{cache: cache}
}

func (s *RedisSnapshot) Save(ctx context.Context, e models.CacheEntry) error {
	expiration := e.TTL * 3
	if expiration <= 0 {
		expiration = time.Hour
	}
	if err := s.cache.Set(ctx, e.Key.String(), e, expiration); err != nil {
		return fmt.Errorf("snapshot save %s: %w", e.Key, err)
	}
	return nil
}

func (s *RedisSnapshot) LoadAll(ctx context.Context) ([]models.CacheEntry, error) {
	var out []models.CacheEntry
	err := s.cache.ScanValues(ctx, func(key string, raw []byte) error {
		var e models.CacheEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			// A corrupt snapshot entry is skipped, not fatal.
			return nil
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot load: %w", err)
	}
	return out, nil
}

func (s *RedisSnapshot) Close() error {
	return s.cache.Close()
}
