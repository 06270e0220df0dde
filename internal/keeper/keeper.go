// Package keeper drives the epoch lifecycle on a timer: it opens the current
// epoch of every registered asset, locks epochs past their cutoff and closes
// epochs past their end.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/service"
)

// EpochDriver opens and locks epochs.
type EpochDriver interface {
	CreateEpoch(ctx context.Context, symbol string) (domain.Epoch, error)
	LockEpoch(ctx context.Context, symbol string, id uint64) (domain.Epoch, error)
}

// Settler closes epochs.
type Settler interface {
	CloseEpoch(ctx context.Context, req service.CloseEpochRequest) (domain.Epoch, error)
}

// Reader is the ledger view the keeper scans each tick.
type Reader interface {
	ListAssets(ctx context.Context) ([]domain.AssetConfig, error)
	ListEpochsByStatus(ctx context.Context, statuses ...domain.EpochStatus) ([]domain.Epoch, error)
}

// ErrorHandler is told about every failed keeper operation.
type ErrorHandler func(ctx context.Context, op, asset string, err error)

// Operation names passed to the ErrorHandler.
const (
	OpCreate = "create_epoch"
	OpLock   = "lock_epoch"
	OpClose  = "close_epoch"
	OpScan   = "scan"
)

// Config controls the keeper loop.
type Config struct {
	Interval time.Duration
	// LockTTL bounds how long one instance holds an asset. Zero uses
	// twice the interval.
	LockTTL time.Duration
	// Address receives the settlement tip.
	Address string
}

// Report counts what one tick did.
type Report struct {
	Created int
	Locked  int
	Closed  int
	Failed  int
}

// Keeper advances every asset's epochs.
type Keeper struct {
	cfg     Config
	epochs  EpochDriver
	settler Settler
	reader  Reader
	locks   domain.LockManager
	onError ErrorHandler
	now     service.Clock
	logger  *slog.Logger
}

// New creates a Keeper. locks may be nil when a single instance runs.
func New(cfg Config, epochs EpochDriver, settler Settler, reader Reader, locks domain.LockManager, now service.Clock, logger *slog.Logger) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.Interval
	}
	if now == nil {
		now = time.Now
	}
	return &Keeper{
		cfg:     cfg,
		epochs:  epochs,
		settler: settler,
		reader:  reader,
		locks:   locks,
		now:     now,
		logger:  logger.With(slog.String("component", "keeper")),
	}
}

// OnError registers the failure hook.
func (k *Keeper) OnError(fn ErrorHandler) {
	k.onError = fn
}

// Run ticks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.InfoContext(ctx, "keeper started",
		slog.Duration("interval", k.cfg.Interval),
		slog.String("address", k.cfg.Address),
		slog.Bool("distributed_lock", k.locks != nil),
	)
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		rep := k.Tick(ctx)
		if rep.Created+rep.Locked+rep.Closed+rep.Failed > 0 {
			k.logger.InfoContext(ctx, "keeper tick",
				slog.Int("created", rep.Created),
				slog.Int("locked", rep.Locked),
				slog.Int("closed", rep.Closed),
				slog.Int("failed", rep.Failed),
			)
		}
		select {
		case <-ctx.Done():
			k.logger.InfoContext(ctx, "keeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one pass over all assets.
func (k *Keeper) Tick(ctx context.Context) Report {
	var rep Report

	assets, err := k.reader.ListAssets(ctx)
	if err != nil {
		k.fail(ctx, &rep, OpScan, "", err)
		return rep
	}
	pending, err := k.reader.ListEpochsByStatus(ctx, domain.StatusOpen, domain.StatusLocked)
	if err != nil {
		k.fail(ctx, &rep, OpScan, "", err)
		return rep
	}
	byAsset := make(map[string][]domain.Epoch, len(assets))
	for _, e := range pending {
		byAsset[e.Asset] = append(byAsset[e.Asset], e)
	}

	for _, a := range assets {
		if ctx.Err() != nil {
			return rep
		}
		k.tickAsset(ctx, &rep, a.Symbol, byAsset[a.Symbol])
	}
	return rep
}

func (k *Keeper) tickAsset(ctx context.Context, rep *Report, symbol string, pending []domain.Epoch) {
	if k.locks != nil {
		unlock, err := k.locks.Acquire(ctx, "keeper:"+symbol, k.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			k.logger.DebugContext(ctx, "asset held by another keeper", slog.String("asset", symbol))
			return
		}
		if err != nil {
			k.fail(ctx, rep, OpScan, symbol, err)
			return
		}
		defer unlock()
	}

	now := k.now().Unix()
	for _, e := range pending {
		switch {
		case now >= e.EndTs:
			if _, err := k.settler.CloseEpoch(ctx, service.CloseEpochRequest{
				Asset:   symbol,
				EpochID: e.ID,
				Caller:  k.cfg.Address,
			}); err != nil {
				k.fail(ctx, rep, OpClose, symbol, err)
				continue
			}
			rep.Closed++
		case e.Status == domain.StatusOpen && now >= e.CutoffTs:
			if _, err := k.epochs.LockEpoch(ctx, symbol, e.ID); err != nil {
				k.fail(ctx, rep, OpLock, symbol, err)
				continue
			}
			rep.Locked++
		}
	}

	_, err := k.epochs.CreateEpoch(ctx, symbol)
	switch {
	case err == nil:
		rep.Created++
	case errors.Is(err, domain.ErrAlreadyExists):
	default:
		k.fail(ctx, rep, OpCreate, symbol, err)
	}
}

func (k *Keeper) fail(ctx context.Context, rep *Report, op, asset string, err error) {
	if ctx.Err() != nil {
		return
	}
	rep.Failed++
	k.logger.WarnContext(ctx, "keeper operation failed",
		slog.String("op", op),
		slog.String("asset", asset),
		slog.String("error", err.Error()),
	)
	if k.onError != nil {
		k.onError(ctx, op, asset, err)
	}
}
