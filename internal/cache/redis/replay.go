package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// ReplayGuard implements domain.ReplayGuard with SET NX so every API
// instance sharing the Redis sees the same used signatures.
type ReplayGuard struct {
	c   *Client
	ttl time.Duration
}

// NewReplayGuard creates a ReplayGuard keeping keys for ttl.
func NewReplayGuard(c *Client, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{c: c, ttl: ttl}
}

// FirstUse reports whether key was unused, marking it used.
func (g *ReplayGuard) FirstUse(ctx context.Context, key string) (bool, error) {
	ok, err := g.c.rdb.SetNX(ctx, g.c.Key("sig:"+key), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: replay guard: %w", err)
	}
	return ok, nil
}

var _ domain.ReplayGuard = (*ReplayGuard)(nil)
