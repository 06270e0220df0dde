package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// AdminService owns protocol administration: initialization, asset feed
// registration, pausing, fee changes and balance funding.
type AdminService struct {
	committer
	logger *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(ledger domain.Ledger, sinks []EventSink, now Clock, logger *slog.Logger) *AdminService {
	logger = logger.With(slog.String("component", "admin_service"))
	return &AdminService{
		committer: newCommitter(ledger, sinks, now),
		logger:    logger,
	}
}

// Initialize writes the protocol config. It can succeed only once.
func (s *AdminService) Initialize(ctx context.Context, cfg domain.ProtocolConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("admin_service: initialize: %w", err)
	}
	err := s.commit(ctx, func(tx domain.Tx, _ *outbox) error {
		return tx.CreateConfig(ctx, cfg)
	})
	if err != nil {
		return fmt.Errorf("admin_service: initialize: %w", err)
	}
	s.logger.InfoContext(ctx, "protocol initialized",
		slog.String("admin", cfg.Admin),
		slog.String("treasury", cfg.Treasury),
		slog.Int("fee_bps", int(cfg.FeeBps)),
		slog.Uint64("epoch_length_secs", uint64(cfg.EpochLengthSecs)),
	)
	return nil
}

// SetAssetFeed registers or updates an asset's oracle binding and currency.
// The asset's active epoch pointer survives updates.
func (s *AdminService) SetAssetFeed(ctx context.Context, caller, symbol, oracleRef, currency string) (domain.AssetConfig, error) {
	if err := domain.ValidateSymbol(symbol); err != nil {
		return domain.AssetConfig{}, fmt.Errorf("admin_service: set asset feed: %w", err)
	}
	if oracleRef == "" || currency == "" {
		return domain.AssetConfig{}, fmt.Errorf("admin_service: set asset feed: %w: oracle_ref and currency are required", domain.ErrInvalidConfig)
	}

	var asset domain.AssetConfig
	err := s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		if _, err := s.requireAdmin(ctx, tx, caller); err != nil {
			return err
		}
		prev, err := tx.Asset(ctx, symbol)
		switch {
		case err == nil:
			asset = prev
		case errors.Is(err, domain.ErrNotFound):
			asset = domain.AssetConfig{Symbol: symbol}
		default:
			return err
		}
		asset.OracleRef = oracleRef
		asset.Currency = currency
		if err := tx.PutAsset(ctx, asset); err != nil {
			return err
		}
		return out.emit(ctx, domain.EventAssetUpdated, symbol, 0, s.unix(), domain.AssetUpdatedPayload{
			Asset:     symbol,
			OracleRef: oracleRef,
			Currency:  currency,
		})
	})
	if err != nil {
		return domain.AssetConfig{}, fmt.Errorf("admin_service: set asset feed %s: %w", symbol, err)
	}
	return asset, nil
}

// SetPaused flips the global pause flag.
func (s *AdminService) SetPaused(ctx context.Context, caller string, paused bool) error {
	err := s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		cfg, err := s.requireAdmin(ctx, tx, caller)
		if err != nil {
			return err
		}
		if cfg.Paused == paused {
			return nil
		}
		cfg.Paused = paused
		if err := tx.PutConfig(ctx, cfg); err != nil {
			return err
		}
		return out.emit(ctx, domain.EventPauseChanged, "", 0, s.unix(), domain.PauseChangedPayload{
			Paused: paused,
			Ts:     s.unix(),
		})
	})
	if err != nil {
		return fmt.Errorf("admin_service: set paused=%t: %w", paused, err)
	}
	s.logger.InfoContext(ctx, "pause flag set", slog.Bool("paused", paused))
	return nil
}

// SetFeeBps changes the fee applied to epochs settled from now on.
func (s *AdminService) SetFeeBps(ctx context.Context, caller string, feeBps uint16) error {
	err := s.commit(ctx, func(tx domain.Tx, _ *outbox) error {
		cfg, err := s.requireAdmin(ctx, tx, caller)
		if err != nil {
			return err
		}
		cfg.FeeBps = feeBps
		if err := cfg.Validate(); err != nil {
			return err
		}
		return tx.PutConfig(ctx, cfg)
	})
	if err != nil {
		return fmt.Errorf("admin_service: set fee: %w", err)
	}
	return nil
}

// Deposit credits a user balance or an asset's tip reserve.
func (s *AdminService) Deposit(ctx context.Context, caller string, acct domain.Account, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("admin_service: deposit: %w", domain.ErrInvalidAmount)
	}
	if acct.Kind != domain.AccountUser && acct.Kind != domain.AccountReserve {
		return fmt.Errorf("admin_service: deposit into %s account: %w", acct.Kind, domain.ErrUnauthorized)
	}
	if acct.Owner == "" || acct.Currency == "" {
		return fmt.Errorf("admin_service: deposit: %w: owner and currency are required", domain.ErrInvalidConfig)
	}
	err := s.commit(ctx, func(tx domain.Tx, out *outbox) error {
		if _, err := s.requireAdmin(ctx, tx, caller); err != nil {
			return err
		}
		if err := tx.Credit(ctx, acct, amount); err != nil {
			return err
		}
		return out.emit(ctx, domain.EventDeposited, "", 0, s.unix(), domain.DepositedPayload{
			Account: acct,
			Amount:  amount,
			Ts:      s.unix(),
		})
	})
	if err != nil {
		return fmt.Errorf("admin_service: deposit to %s: %w", acct, err)
	}
	return nil
}

// Bootstrap initializes the protocol and registers assets when the ledger is
// empty. It is a no-op for an already initialized ledger, apart from
// registering assets that are still missing.
func (s *AdminService) Bootstrap(ctx context.Context, cfg domain.ProtocolConfig, assets []domain.AssetConfig) error {
	current, err := s.ledger.GetConfig(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		if err := s.Initialize(ctx, cfg); err != nil {
			return err
		}
		current = cfg
	default:
		return fmt.Errorf("admin_service: bootstrap: %w", err)
	}

	for _, a := range assets {
		if _, err := s.ledger.GetAsset(ctx, a.Symbol); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("admin_service: bootstrap asset %s: %w", a.Symbol, err)
		}
		if _, err := s.SetAssetFeed(ctx, current.Admin, a.Symbol, a.OracleRef, a.Currency); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "asset registered",
			slog.String("asset", a.Symbol),
			slog.String("oracle_ref", a.OracleRef),
		)
	}
	return nil
}

func (s *AdminService) requireAdmin(ctx context.Context, tx domain.Tx, caller string) (domain.ProtocolConfig, error) {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return cfg, err
	}
	if caller == "" || !sameIdentity(caller, cfg.Admin) {
		return cfg, domain.ErrUnauthorized
	}
	return cfg, nil
}
