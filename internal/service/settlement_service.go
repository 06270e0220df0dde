package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/pool"
)

// OutcomeRule decides the winning side from oracle readings.
type OutcomeRule string

const (
	// OutcomeStartVsEnd compares the reading at the epoch end with the one at
	// its start. Equal prices settle with no winner.
	OutcomeStartVsEnd OutcomeRule = "start_vs_end"
	// OutcomeSign looks only at the sign of the end reading.
	OutcomeSign OutcomeRule = "sign"
)

// ParseOutcomeRule converts a config string into an OutcomeRule. An empty
// string selects OutcomeStartVsEnd.
func ParseOutcomeRule(s string) (OutcomeRule, error) {
	switch OutcomeRule(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutcomeStartVsEnd:
		return OutcomeStartVsEnd, nil
	case OutcomeSign:
		return OutcomeSign, nil
	default:
		return "", fmt.Errorf("%w: unknown outcome rule %q", domain.ErrInvalidConfig, s)
	}
}

// CloseEpochRequest asks for settlement of one epoch. Caller receives the
// settlement tip. OracleRef, when set, must match the asset's binding.
type CloseEpochRequest struct {
	Asset     string
	EpochID   uint64
	Caller    string
	OracleRef string
}

// SettlementService drives epochs from Open or Locked to a terminal state.
type SettlementService struct {
	committer
	oracle domain.Oracle
	rule   OutcomeRule
	logger *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(ledger domain.Ledger, oracle domain.Oracle, rule OutcomeRule, sinks []EventSink, now Clock, logger *slog.Logger) *SettlementService {
	if rule == "" {
		rule = OutcomeStartVsEnd
	}
	return &SettlementService{
		committer: newCommitter(ledger, sinks, now),
		oracle:    oracle,
		rule:      rule,
		logger:    logger.With(slog.String("component", "settlement_service")),
	}
}

// outcome is the oracle verdict computed before the ledger transaction.
type outcome struct {
	invalid bool
	reason  string
	start   domain.PriceReading
	end     domain.PriceReading
	winner  domain.WinningSide
}

// CloseEpoch settles an epoch once its end time has passed. Bad oracle data
// moves the epoch to Invalid instead of failing. Closing an epoch that is
// already Settled or Invalid returns it unchanged.
func (s *SettlementService) CloseEpoch(ctx context.Context, req CloseEpochRequest) (domain.Epoch, error) {
	epoch, err := s.ledger.GetEpoch(ctx, req.Asset, req.EpochID)
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("settlement_service: close %s/%d: %w", req.Asset, req.EpochID, err)
	}
	if s.unix() < epoch.EndTs {
		return domain.Epoch{}, fmt.Errorf("settlement_service: close %s/%d: %w", req.Asset, req.EpochID, domain.ErrNotYetEnded)
	}
	if epoch.Status.Terminal() {
		return epoch, nil
	}
	asset, err := s.ledger.GetAsset(ctx, req.Asset)
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("settlement_service: close %s/%d: %w", req.Asset, req.EpochID, err)
	}
	if req.OracleRef != "" && req.OracleRef != asset.OracleRef {
		return domain.Epoch{}, fmt.Errorf("settlement_service: close %s/%d: %w", req.Asset, req.EpochID, domain.ErrOracleAccountMismatch)
	}

	verdict, err := s.resolve(ctx, asset.OracleRef, epoch)
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("settlement_service: close %s/%d: %w", req.Asset, req.EpochID, err)
	}

	var settled domain.Epoch
	err = s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		e, err := tx.Epoch(ctx, req.Asset, req.EpochID)
		if err != nil {
			return err
		}
		if e.Status.Terminal() {
			settled = e
			return nil
		}
		now := s.unix()
		if verdict.invalid {
			e.Status = domain.StatusInvalid
			e.WinningSide = domain.WinningNone
			e.SettledAt = now
			if err := tx.PutEpoch(ctx, e); err != nil {
				return err
			}
			settled = e
			return out.emit(ctx, domain.EventEpochInvalid, e.Asset, e.ID, now, domain.EpochInvalidPayload{
				Asset:   e.Asset,
				EpochID: e.ID,
				Reason:  verdict.reason,
				Ts:      now,
			})
		}

		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		feeBps := cfg.FeeBps
		if verdict.winner == domain.WinningNone {
			feeBps = 0
		}
		st, err := pool.Settle(e.SumUp, e.SumDown, feeBps)
		if err != nil {
			return err
		}
		if st.Fee > 0 {
			if err := tx.Transfer(ctx,
				domain.EscrowAccount(e.Asset, e.Currency),
				domain.TreasuryAccount(cfg.Treasury, e.Currency),
				st.Fee,
			); err != nil {
				return err
			}
		}

		e.StartPrice = verdict.start.Price
		e.StartExpo = verdict.start.Expo
		e.SettlePrice = verdict.end.Price
		e.SettleExpo = verdict.end.Expo
		e.WinningSide = verdict.winner
		e.FeeBps = feeBps
		e.FeeAmount = st.Fee
		e.NetPool = st.NetPool
		e.Status = domain.StatusSettled
		e.SettledAt = now
		if err := tx.PutEpoch(ctx, e); err != nil {
			return err
		}
		settled = e

		if err := s.payTip(ctx, tx, out, cfg, e, req.Caller, now); err != nil {
			return err
		}
		return out.emit(ctx, domain.EventEpochSettled, e.Asset, e.ID, now, domain.EpochSettledPayload{
			Asset:       e.Asset,
			EpochID:     e.ID,
			Price:       e.SettlePrice,
			Expo:        e.SettleExpo,
			WinningSide: e.WinningSide,
			Fee:         st.Fee,
			NetPool:     st.NetPool,
			Ts:          now,
		})
	})
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("settlement_service: close %s/%d: %w", req.Asset, req.EpochID, err)
	}

	s.logger.InfoContext(ctx, "epoch closed",
		slog.String("asset", settled.Asset),
		slog.Uint64("epoch_id", settled.ID),
		slog.String("status", string(settled.Status)),
		slog.String("winning_side", string(settled.WinningSide)),
		slog.Uint64("fee", settled.FeeAmount),
		slog.Uint64("net_pool", settled.NetPool),
	)
	return settled, nil
}

// payTip moves the configured tip from the asset's reserve to the caller.
// A tip that cannot be paid is reported with a TipSkipped event.
func (s *SettlementService) payTip(ctx context.Context, tx domain.Tx, out *outbox, cfg domain.ProtocolConfig, e domain.Epoch, caller string, now int64) error {
	if cfg.SettleTip == 0 || caller == "" {
		return nil
	}
	reserve := domain.ReserveAccount(e.Asset, cfg.TipCurrency)
	available, err := tx.Balance(ctx, reserve)
	if err != nil {
		return err
	}
	if available >= cfg.SettleTip {
		err := tx.Transfer(ctx, reserve, domain.UserAccount(caller, cfg.TipCurrency), cfg.SettleTip)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrOverflow) {
			return err
		}
	}
	return out.emit(ctx, domain.EventTipSkipped, e.Asset, e.ID, now, domain.TipSkippedPayload{
		Asset:     e.Asset,
		EpochID:   e.ID,
		Recipient: caller,
		Tip:       cfg.SettleTip,
		Available: available,
		Ts:        now,
	})
}

// resolve reads the oracle and applies the outcome rule. Readings rejected as
// invalid produce an invalid verdict; any other oracle error is returned so
// the close can be retried.
func (s *SettlementService) resolve(ctx context.Context, ref string, e domain.Epoch) (outcome, error) {
	end, err := s.oracle.PriceAt(ctx, ref, e.EndTs)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPrice) {
			return outcome{invalid: true, reason: "end price: " + err.Error()}, nil
		}
		return outcome{}, err
	}

	switch s.rule {
	case OutcomeSign:
		switch {
		case end.Price > 0:
			return outcome{end: end, winner: domain.WinningUp}, nil
		case end.Price < 0:
			return outcome{end: end, winner: domain.WinningDown}, nil
		default:
			return outcome{invalid: true, reason: "end price is zero"}, nil
		}
	default:
		start, err := s.oracle.PriceAt(ctx, ref, e.StartTs)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidPrice) {
				return outcome{invalid: true, reason: "start price: " + err.Error()}, nil
			}
			return outcome{}, err
		}
		if start.Price <= 0 || end.Price <= 0 {
			return outcome{invalid: true, reason: "non-positive price"}, nil
		}
		v := outcome{start: start, end: end, winner: domain.WinningNone}
		switch end.Decimal().Cmp(start.Decimal()) {
		case 1:
			v.winner = domain.WinningUp
		case -1:
			v.winner = domain.WinningDown
		}
		return v, nil
	}
}
