package kpireward

import (
	"context"
	"sync"
	"time"
)

// ReplayExpiry returns the instant after which a claim with the given
// timestamp can no longer pass the freshness check.
func ReplayExpiry(claimTimestamp int64, now time.Time) time.Time {
	base := now.Unix()
	if claimTimestamp > base {
		base = claimTimestamp
	}
	return time.Unix(base+MaxClaimAge, 0).UTC()
}

// MemoryReplayCache is a process-local ReplayCache.
type MemoryReplayCache struct {
	mu      sync.Mutex
	entries map[Digest]time.Time
}

func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{entries: make(map[Digest]time.Time)}
}

func (c *MemoryReplayCache) Reserve(_ context.Context, digest Digest, now, expiresAt time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.entries[digest]; ok && exp.After(now) {
		return false, nil
	}
	c.entries[digest] = expiresAt
	return true, nil
}

func (c *MemoryReplayCache) Release(_ context.Context, digest Digest) error {
	c.mu.Lock()
	delete(c.entries, digest)
	c.mu.Unlock()
	return nil
}

// Prune drops reservations that expired at or before cutoff.
func (c *MemoryReplayCache) Prune(_ context.Context, cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for digest, exp := range c.entries {
		if !exp.After(cutoff) {
			delete(c.entries, digest)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked digests, expired or not.
func (c *MemoryReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
