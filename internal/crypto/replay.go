package crypto

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ReplayKey identifies one signed request: the signer plus the exact message
// it signed. Re-encoding the signature does not change the key.
func ReplayKey(addr, method, path string, ts int64, body []byte) string {
	sum := sha256.Sum256([]byte(addr + "\n" + RequestMessage(method, path, ts, body)))
	return hex.EncodeToString(sum[:])
}

// ReplayCache remembers signed requests for a TTL so each one is accepted
// only once. It is the single-process domain.ReplayGuard; Redis provides the
// shared one. Safe for concurrent use.
type ReplayCache struct {
	seen      map[string]time.Time // key -> first seen
	ttl       time.Duration
	now       func() time.Time
	lastPrune time.Time
	mu        sync.Mutex
}

// NewReplayCache creates a ReplayCache. ttl should cover the whole window in
// which a timestamp is accepted, i.e. twice the verifier's skew.
func NewReplayCache(ttl time.Duration, now func() time.Time) *ReplayCache {
	if ttl <= 0 {
		ttl = 2 * DefaultMaxSkew
	}
	if now == nil {
		now = time.Now
	}
	return &ReplayCache{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  now,
	}
}

// FirstUse records key and reports whether it was unseen within the TTL.
func (c *ReplayCache) FirstUse(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastPrune) >= c.ttl {
		c.prune(now)
	}
	if at, ok := c.seen[key]; ok && now.Sub(at) < c.ttl {
		return false, nil
	}
	c.seen[key] = now
	return true, nil
}

// prune drops expired entries. Callers hold mu.
func (c *ReplayCache) prune(now time.Time) {
	for key, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, key)
		}
	}
	c.lastPrune = now
}

// Len returns the number of remembered requests.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
