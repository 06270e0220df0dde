package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/pool"
)

// ClaimService pays winners and refunds stakes of epochs without a winner.
type ClaimService struct {
	committer
	logger *slog.Logger
}

// NewClaimService creates a ClaimService.
func NewClaimService(ledger domain.Ledger, sinks []EventSink, now Clock, logger *slog.Logger) *ClaimService {
	return &ClaimService{
		committer: newCommitter(ledger, sinks, now),
		logger:    logger.With(slog.String("component", "claim_service")),
	}
}

// Claim pays the user's share of the net pool. Each bet can be claimed once.
func (s *ClaimService) Claim(ctx context.Context, user, asset string, epochID uint64) (domain.Bet, error) {
	var bet domain.Bet
	err := s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		epoch, err := tx.Epoch(ctx, asset, epochID)
		if err != nil {
			return err
		}
		switch epoch.Status {
		case domain.StatusSettled:
		case domain.StatusInvalid:
			return domain.ErrEpochInvalid
		default:
			return domain.ErrInvalidEpochStatus
		}

		bet, err = tx.Bet(ctx, user, asset, epochID)
		if err != nil {
			return err
		}
		if bet.Claimed {
			return domain.ErrAlreadyClaimed
		}
		if !epoch.WinningSide.Wins(bet.Side) {
			return domain.ErrNotWinner
		}

		payout, err := pool.Payout(bet.Stake, epoch.NetPool, epoch.SideSum(bet.Side))
		if err != nil {
			return err
		}
		if payout == 0 {
			return domain.ErrZeroWinningPool
		}
		if err := tx.Transfer(ctx,
			domain.EscrowAccount(asset, epoch.Currency),
			domain.UserAccount(user, epoch.Currency),
			payout,
		); err != nil {
			return err
		}

		bet.Claimed = true
		bet.Paid = payout
		if err := tx.PutBet(ctx, bet); err != nil {
			return err
		}
		now := s.unix()
		return out.emit(ctx, domain.EventClaimed, asset, epochID, now, domain.ClaimedPayload{
			User:    user,
			Asset:   asset,
			EpochID: epochID,
			Payout:  payout,
			Ts:      now,
		})
	})
	if err != nil {
		return domain.Bet{}, fmt.Errorf("claim_service: claim %s/%d: %w", asset, epochID, err)
	}
	s.logger.InfoContext(ctx, "payout claimed",
		slog.String("user", user),
		slog.String("asset", asset),
		slog.Uint64("epoch_id", epochID),
		slog.Uint64("payout", bet.Paid),
	)
	return bet, nil
}

// Refund returns the full stake of a bet in an epoch that ended Invalid or
// settled without a winner.
func (s *ClaimService) Refund(ctx context.Context, user, asset string, epochID uint64) (domain.Bet, error) {
	var bet domain.Bet
	err := s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		epoch, err := tx.Epoch(ctx, asset, epochID)
		if err != nil {
			return err
		}
		refundable := epoch.Status == domain.StatusInvalid ||
			(epoch.Status == domain.StatusSettled && epoch.WinningSide == domain.WinningNone)
		if !refundable {
			return domain.ErrInvalidEpochStatus
		}

		bet, err = tx.Bet(ctx, user, asset, epochID)
		if err != nil {
			return err
		}
		if bet.Claimed {
			return domain.ErrAlreadyClaimed
		}
		if err := tx.Transfer(ctx,
			domain.EscrowAccount(asset, epoch.Currency),
			domain.UserAccount(user, epoch.Currency),
			bet.Stake,
		); err != nil {
			return err
		}

		bet.Claimed = true
		bet.Paid = bet.Stake
		if err := tx.PutBet(ctx, bet); err != nil {
			return err
		}
		now := s.unix()
		return out.emit(ctx, domain.EventRefunded, asset, epochID, now, domain.RefundedPayload{
			User:    user,
			Asset:   asset,
			EpochID: epochID,
			Amount:  bet.Stake,
			Ts:      now,
		})
	})
	if err != nil {
		return domain.Bet{}, fmt.Errorf("claim_service: refund %s/%d: %w", asset, epochID, err)
	}
	return bet, nil
}
