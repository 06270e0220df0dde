package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// LatestSource returns the newest readings for a set of feeds.
type LatestSource interface {
	Latest(ctx context.Context, refs ...string) ([]domain.PriceReading, error)
}

// AssetLister lists registered assets.
type AssetLister interface {
	ListAssets(ctx context.Context) ([]domain.AssetConfig, error)
}

// Feeder polls the upstream price service for every registered asset and
// records the readings in the price cache, building the history that
// settlement reads from.
type Feeder struct {
	source   LatestSource
	cache    domain.PriceCache
	assets   AssetLister
	interval time.Duration
	logger   *slog.Logger
}

// NewFeeder creates a Feeder.
func NewFeeder(source LatestSource, cache domain.PriceCache, assets AssetLister, interval time.Duration, logger *slog.Logger) *Feeder {
	if interval <= 0 {
		interval = time.Second
	}
	return &Feeder{
		source:   source,
		cache:    cache,
		assets:   assets,
		interval: interval,
		logger:   logger.With(slog.String("component", "price_feeder")),
	}
}

// Run polls until ctx is cancelled.
func (f *Feeder) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "price feeder started", slog.Duration("interval", f.interval))
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		f.Poll(ctx)
		select {
		case <-ctx.Done():
			f.logger.InfoContext(ctx, "price feeder stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches and records one round of readings. It returns the number of
// readings stored.
func (f *Feeder) Poll(ctx context.Context) int {
	assets, err := f.assets.ListAssets(ctx)
	if err != nil {
		f.logger.WarnContext(ctx, "list assets", slog.String("error", err.Error()))
		return 0
	}
	refs := make([]string, 0, len(assets))
	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		if a.OracleRef == "" {
			continue
		}
		ref := domain.NormalizeFeedID(a.OracleRef)
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return 0
	}

	readings, err := f.source.Latest(ctx, refs...)
	if err != nil {
		f.logger.WarnContext(ctx, "fetch latest prices", slog.String("error", err.Error()))
		return 0
	}
	stored := 0
	for _, r := range readings {
		if err := f.cache.Record(ctx, r); err != nil {
			f.logger.WarnContext(ctx, "record price",
				slog.String("feed", r.FeedID),
				slog.String("error", err.Error()),
			)
			continue
		}
		stored++
	}
	return stored
}
