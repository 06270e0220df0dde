package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// PriceCache stores oracle readings in one sorted set per feed, scored by
// publish time. It implements domain.Oracle so settlement can read from it
// without calling the upstream price service.
type PriceCache struct {
	c         *Client
	maxAge    time.Duration
	retention time.Duration
}

// NewPriceCache creates a PriceCache. PriceAt rejects readings published more
// than maxAge before the requested time. Readings older than retention are
// trimmed on write; zero keeps them forever.
func NewPriceCache(c *Client, maxAge, retention time.Duration) *PriceCache {
	return &PriceCache{c: c, maxAge: maxAge, retention: retention}
}

func (pc *PriceCache) key(ref string) string {
	return pc.c.Key("price:" + domain.NormalizeFeedID(ref))
}

// Record stores a reading.
func (pc *PriceCache) Record(ctx context.Context, r domain.PriceReading) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redis: marshal price %s: %w", r.FeedID, err)
	}
	key := pc.key(r.FeedID)

	pipe := pc.c.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(r.PublishTime), Member: raw})
	if pc.retention > 0 {
		cutoff := r.PublishTime - int64(pc.retention/time.Second)
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: record price %s: %w", r.FeedID, err)
	}
	return nil
}

// Latest returns the most recent reading for ref.
func (pc *PriceCache) Latest(ctx context.Context, ref string) (domain.PriceReading, error) {
	vals, err := pc.c.rdb.ZRevRange(ctx, pc.key(ref), 0, 0).Result()
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("redis: latest price %s: %w", ref, err)
	}
	if len(vals) == 0 {
		return domain.PriceReading{}, fmt.Errorf("redis: latest price %s: %w", ref, domain.ErrNotFound)
	}
	return decodeReading(ref, vals[0])
}

// PriceAt returns the newest reading published at or before ts. A missing,
// stale or non-positive reading is reported as domain.ErrInvalidPrice.
func (pc *PriceCache) PriceAt(ctx context.Context, ref string, ts int64) (domain.PriceReading, error) {
	opt := &redis.ZRangeBy{
		Max:   strconv.FormatInt(ts, 10),
		Min:   "-inf",
		Count: 1,
	}
	if pc.maxAge > 0 {
		opt.Min = strconv.FormatInt(ts-int64(pc.maxAge/time.Second), 10)
	}
	vals, err := pc.c.rdb.ZRevRangeByScore(ctx, pc.key(ref), opt).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.PriceReading{}, fmt.Errorf("redis: price %s at %d: %w", ref, ts, err)
	}
	if len(vals) == 0 {
		return domain.PriceReading{}, fmt.Errorf("redis: price %s at %d: %w: no reading in window", ref, ts, domain.ErrInvalidPrice)
	}
	r, err := decodeReading(ref, vals[0])
	if err != nil {
		return domain.PriceReading{}, err
	}
	if r.Price <= 0 {
		return domain.PriceReading{}, fmt.Errorf("redis: price %s at %d: %w: non-positive price", ref, ts, domain.ErrInvalidPrice)
	}
	return r, nil
}

func decodeReading(ref, raw string) (domain.PriceReading, error) {
	var r domain.PriceReading
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return r, fmt.Errorf("redis: decode price %s: %w: %v", ref, domain.ErrInvalidPrice, err)
	}
	return r, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
