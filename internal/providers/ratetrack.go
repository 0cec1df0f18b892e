package providers

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited marks an attempt rejected by the provider's rate budget,
// either locally (token bucket drained) or upstream (HTTP 429).
var ErrRateLimited = errors.New("provider rate limited")

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// RateTracker keeps one token bucket per provider. Besides gating calls it
// reports usage as a percentage for telemetry sampling.
type RateTracker struct {
	mu sync.Mutex
	m  map[string]*bucket
}

func NewRateTracker() *RateTracker {
	return &RateTracker{m: make(map[string]*bucket)}
}

// Allow returns true if one token can be consumed for key.
func (t *RateTracker) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.refillLocked(key, capacity, refillPerSec, now)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// UsagePct returns how much of the provider's rate budget is consumed,
// in [0,100]. Unknown providers report 0.
func (t *RateTracker) UsagePct(key string) float64 {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.m[key]
	if !ok || b.capacity <= 0 {
		return 0
	}
	t.refillLocked(key, b.capacity, b.refillRate, now)
	pct := (b.capacity - b.tokens) / b.capacity * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (t *RateTracker) refillLocked(key string, capacity, refillPerSec float64, now time.Time) *bucket {
	b, ok := t.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		t.m[key] = b
		return b
	}
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	return b
}
