package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/pool"
)

// PlaceBetRequest describes one stake. An empty Currency means the stake is
// paid in the epoch's currency.
type PlaceBetRequest struct {
	User     string
	Asset    string
	EpochID  uint64
	Side     domain.Side
	Amount   uint64
	Currency string
}

// BetService accepts stakes into open epochs.
type BetService struct {
	committer
	logger *slog.Logger
}

// NewBetService creates a BetService.
func NewBetService(ledger domain.Ledger, sinks []EventSink, now Clock, logger *slog.Logger) *BetService {
	return &BetService{
		committer: newCommitter(ledger, sinks, now),
		logger:    logger.With(slog.String("component", "bet_service")),
	}
}

// PlaceBet moves the stake into the asset's escrow, adds it to the chosen
// side's pool and records the user's bet. Preconditions are checked in a fixed
// order so callers always see the first one violated.
func (s *BetService) PlaceBet(ctx context.Context, req PlaceBetRequest) (domain.Bet, error) {
	if req.User == "" {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet: %w", domain.ErrUnauthorized)
	}

	var bet domain.Bet
	err := s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return domain.ErrPaused
		}
		if req.Amount == 0 {
			return domain.ErrInvalidBetAmount
		}
		if req.Side != domain.SideUp && req.Side != domain.SideDown {
			return fmt.Errorf("%w: got %q", domain.ErrInvalidSide, req.Side)
		}

		epoch, err := tx.Epoch(ctx, req.Asset, req.EpochID)
		if err != nil {
			return err
		}
		if epoch.Status != domain.StatusOpen {
			return domain.ErrInvalidEpochStatus
		}
		now := s.unix()
		if now >= epoch.CutoffTs {
			return domain.ErrBettingClosed
		}
		asset, err := tx.Asset(ctx, req.Asset)
		if err != nil {
			return err
		}
		currency := req.Currency
		if currency == "" {
			currency = epoch.Currency
		}
		if currency != epoch.Currency || asset.Currency != epoch.Currency {
			return domain.ErrWrongMint
		}

		if err := tx.Transfer(ctx,
			domain.UserAccount(req.User, currency),
			domain.EscrowAccount(req.Asset, currency),
			req.Amount,
		); err != nil {
			return err
		}

		switch req.Side {
		case domain.SideUp:
			epoch.SumUp, err = pool.Add(epoch.SumUp, req.Amount)
		case domain.SideDown:
			epoch.SumDown, err = pool.Add(epoch.SumDown, req.Amount)
		}
		if err != nil {
			return err
		}
		if err := tx.PutEpoch(ctx, epoch); err != nil {
			return err
		}

		bet = domain.Bet{
			User:     req.User,
			Asset:    req.Asset,
			EpochID:  req.EpochID,
			Side:     req.Side,
			Stake:    req.Amount,
			PlacedAt: now,
		}
		if err := tx.CreateBet(ctx, bet); err != nil {
			return err
		}
		return out.emit(ctx, domain.EventBetPlaced, req.Asset, req.EpochID, now, domain.BetPlacedPayload{
			User:    req.User,
			Asset:   req.Asset,
			EpochID: req.EpochID,
			Side:    req.Side,
			Amount:  req.Amount,
			Ts:      now,
		})
	})
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet %s/%d: %w", req.Asset, req.EpochID, err)
	}
	s.logger.DebugContext(ctx, "bet placed",
		slog.String("user", req.User),
		slog.String("asset", req.Asset),
		slog.Uint64("epoch_id", req.EpochID),
		slog.String("side", string(req.Side)),
		slog.Uint64("amount", req.Amount),
	)
	return bet, nil
}
