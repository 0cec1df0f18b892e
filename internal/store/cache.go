package store

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
)

const shardCount = 16

// An entry is expired (eligible for sweep) once staleness reaches this
// multiple of its TTL.
const expiredFactor = 3

type entry struct {
	value     *models.MetricValue
	fetchedAt time.Time
	ttl       time.Duration
	source    string
}

type shard struct {
	mu sync.RWMutex
	m  map[models.MetricKey]entry
}

// Store is the freshness-bounded last-known-good cache. Writes resolve
// out-of-order completions by last-write-wins on fetched_at; reads never
// trigger a fetch and evaluate expiration lazily. Sharded so unrelated
// metrics do not contend on one lock.
type Store struct {
	shards [shardCount]*shard
}

func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[models.MetricKey]entry)}
	}
	return s
}

func (s *Store) shardFor(key models.MetricKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return s.shards[h.Sum32()%shardCount]
}

// Set stores a freshly fetched value with the current time as fetched_at.
func (s *Store) Set(value *models.MetricValue, ttl time.Duration, source string) bool {
	return s.SetAt(value, time.Now(), ttl, source)
}

// SetAt stores a value fetched at the given time. A write older than the
// current entry's fetched_at is a no-op and returns false; this protects
// against out-of-order completions across concurrent fetch cycles.
func (s *Store) SetAt(value *models.MetricValue, fetchedAt time.Time, ttl time.Duration, source string) bool {
	key := value.Key()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if cur, ok := sh.m[key]; ok && fetchedAt.Before(cur.fetchedAt) {
		return false
	}
	sh.m[key] = entry{value: value, fetchedAt: fetchedAt, ttl: ttl, source: source}
	return true
}

// Get returns the last successful write for key with staleness and status
// computed at read time. The second return is false when nothing was ever
// stored (or the entry was swept). Absence is reported as absence; no value
// is ever fabricated.
func (s *Store) Get(key models.MetricKey) (models.CacheEntry, bool) {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		return models.CacheEntry{}, false
	}

	return materialize(key, e, time.Now()), true
}

// Snapshot returns every live entry, for persistence and stats.
func (s *Store) Snapshot() []models.CacheEntry {
	now := time.Now()
	var out []models.CacheEntry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key, e := range sh.m {
			out = append(out, materialize(key, e, now))
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// Sweep removes entries whose staleness passed the expired threshold,
// bounding memory for keys that are never read again. Returns the number
// of removed entries.
func (s *Store) Sweep() int {
	now := time.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.m {
			if statusOf(now.Sub(e.fetchedAt), e.ttl) == models.StatusExpired {
				delete(sh.m, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func materialize(key models.MetricKey, e entry, now time.Time) models.CacheEntry {
	staleness := now.Sub(e.fetchedAt)
	return models.CacheEntry{
		Key:       key,
		Value:     e.value,
		FetchedAt: e.fetchedAt,
		TTL:       e.ttl,
		Source:    e.source,
		Staleness: staleness,
		Status:    statusOf(staleness, e.ttl),
	}
}

func statusOf(staleness, ttl time.Duration) models.EntryStatus {
	switch {
	case ttl > 0 && staleness >= ttl*expiredFactor:
		return models.StatusExpired
	case ttl > 0 && staleness >= ttl:
		return models.StatusStale
	default:
		return models.StatusFresh
	}
}
