package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// EpochService creates epochs on the time grid and locks them at cutoff.
// Both operations may be called by anyone.
type EpochService struct {
	committer
	logger *slog.Logger
}

// NewEpochService creates an EpochService.
func NewEpochService(ledger domain.Ledger, sinks []EventSink, now Clock, logger *slog.Logger) *EpochService {
	return &EpochService{
		committer: newCommitter(ledger, sinks, now),
		logger:    logger.With(slog.String("component", "epoch_service")),
	}
}

// CreateEpoch opens the epoch whose slot contains the current time. It fails
// with ErrAlreadyExists when that epoch was already created.
func (s *EpochService) CreateEpoch(ctx context.Context, symbol string) (domain.Epoch, error) {
	if err := domain.ValidateSymbol(symbol); err != nil {
		return domain.Epoch{}, fmt.Errorf("epoch_service: create %s: %w", symbol, err)
	}

	var epoch domain.Epoch
	err := s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		asset, err := tx.Asset(ctx, symbol)
		if err != nil {
			return err
		}
		epoch = cfg.Grid().NewEpoch(asset, s.unix())
		if err := tx.CreateEpoch(ctx, epoch); err != nil {
			return err
		}
		asset.ActiveEpochID = epoch.ID
		if err := tx.PutAsset(ctx, asset); err != nil {
			return err
		}
		return out.emit(ctx, domain.EventEpochCreated, symbol, epoch.ID, s.unix(), domain.EpochCreatedPayload{
			Asset:    symbol,
			EpochID:  epoch.ID,
			StartTs:  epoch.StartTs,
			CutoffTs: epoch.CutoffTs,
			EndTs:    epoch.EndTs,
		})
	})
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("epoch_service: create %s: %w", symbol, err)
	}
	s.logger.InfoContext(ctx, "epoch created",
		slog.String("asset", symbol),
		slog.Uint64("epoch_id", epoch.ID),
		slog.Int64("cutoff_ts", epoch.CutoffTs),
		slog.Int64("end_ts", epoch.EndTs),
	)
	return epoch, nil
}

// LockEpoch moves an Open epoch to Locked once its cutoff has passed. Locking
// an epoch that already left Open changes nothing and emits nothing.
func (s *EpochService) LockEpoch(ctx context.Context, symbol string, id uint64) (domain.Epoch, error) {
	var epoch domain.Epoch
	err := s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		var err error
		epoch, err = tx.Epoch(ctx, symbol, id)
		if err != nil {
			return err
		}
		now := s.unix()
		if now < epoch.CutoffTs {
			return domain.ErrNotYetCutoff
		}
		if epoch.Status != domain.StatusOpen {
			return nil
		}
		epoch.Status = domain.StatusLocked
		if err := tx.PutEpoch(ctx, epoch); err != nil {
			return err
		}
		return out.emit(ctx, domain.EventEpochLocked, symbol, id, now, domain.EpochLockedPayload{
			Asset:   symbol,
			EpochID: id,
			Ts:      now,
			SumUp:   epoch.SumUp,
			SumDown: epoch.SumDown,
		})
	})
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("epoch_service: lock %s/%d: %w", symbol, id, err)
	}
	return epoch, nil
}
