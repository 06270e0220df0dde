package domain

import (
	"fmt"
	"strings"
)

// MaxSymbolLen is the longest asset symbol the protocol accepts.
const MaxSymbolLen = 16

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10_000

// Side is the direction a bet is placed on.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
)

// ParseSide accepts "up" or "down" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideUp:
		return SideUp, nil
	case SideDown:
		return SideDown, nil
	default:
		return "", fmt.Errorf("domain: %w: got %q", ErrInvalidSide, s)
	}
}

// WinningSide is the settled outcome of an epoch.
type WinningSide string

const (
	WinningNone WinningSide = "none"
	WinningUp   WinningSide = "up"
	WinningDown WinningSide = "down"
)

// Wins reports whether a bet on side s is paid under this outcome.
func (w WinningSide) Wins(s Side) bool {
	switch w {
	case WinningUp:
		return s == SideUp
	case WinningDown:
		return s == SideDown
	default:
		return false
	}
}

// EpochStatus is the lifecycle state of an epoch.
type EpochStatus string

const (
	StatusOpen    EpochStatus = "open"
	StatusLocked  EpochStatus = "locked"
	StatusSettled EpochStatus = "settled"
	StatusInvalid EpochStatus = "invalid"
)

// Terminal reports whether no further transition is possible.
func (s EpochStatus) Terminal() bool {
	return s == StatusSettled || s == StatusInvalid
}

// ProtocolConfig is the process-wide singleton written by the admin.
type ProtocolConfig struct {
	Admin           string `json:"admin"`
	Treasury        string `json:"treasury"`
	FeeBps          uint16 `json:"fee_bps"`
	SettleTip       uint64 `json:"settle_tip"`
	TipCurrency     string `json:"tip_currency"`
	CutoffSecs      uint32 `json:"cutoff_secs"`
	EpochLengthSecs uint32 `json:"epoch_length_secs"`
	Paused          bool   `json:"paused"`
}

// Validate checks the invariants every stored config must hold.
func (c ProtocolConfig) Validate() error {
	switch {
	case c.Admin == "":
		return fmt.Errorf("%w: admin is required", ErrInvalidConfig)
	case c.Treasury == "":
		return fmt.Errorf("%w: treasury is required", ErrInvalidConfig)
	case c.FeeBps > MaxFeeBps:
		return fmt.Errorf("%w: fee_bps %d exceeds %d", ErrInvalidConfig, c.FeeBps, MaxFeeBps)
	case c.EpochLengthSecs == 0:
		return fmt.Errorf("%w: epoch_length_secs must be positive", ErrInvalidConfig)
	case c.CutoffSecs == 0 || c.CutoffSecs >= c.EpochLengthSecs:
		return fmt.Errorf("%w: cutoff_secs must be in (0, epoch_length_secs)", ErrInvalidConfig)
	case c.SettleTip > 0 && c.TipCurrency == "":
		return fmt.Errorf("%w: tip_currency is required when settle_tip is set", ErrInvalidConfig)
	}
	return nil
}

// Grid returns the epoch time grid described by this config.
func (c ProtocolConfig) Grid() Grid {
	return Grid{LengthSecs: c.EpochLengthSecs, CutoffSecs: c.CutoffSecs}
}

// AssetConfig binds a tradable asset to its oracle feed and currency.
type AssetConfig struct {
	Symbol        string `json:"symbol"`
	OracleRef     string `json:"oracle_ref"`
	Currency      string `json:"currency"`
	ActiveEpochID uint64 `json:"active_epoch_id"`
}

// ValidateSymbol enforces the symbol length bound.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	}
	if len(symbol) > MaxSymbolLen {
		return ErrAssetSymbolTooLong
	}
	return nil
}

// Epoch is one fixed-length betting round for one asset.
type Epoch struct {
	Asset       string      `json:"asset"`
	ID          uint64      `json:"epoch_id"`
	StartTs     int64       `json:"start_ts"`
	CutoffTs    int64       `json:"cutoff_ts"`
	EndTs       int64       `json:"end_ts"`
	Status      EpochStatus `json:"status"`
	StartPrice  int64       `json:"start_price"`
	StartExpo   int32       `json:"start_expo"`
	SettlePrice int64       `json:"settle_price"`
	SettleExpo  int32       `json:"settle_expo"`
	WinningSide WinningSide `json:"winning_side"`
	SumUp       uint64      `json:"sum_up"`
	SumDown     uint64      `json:"sum_down"`
	Currency    string      `json:"currency"`

	// Set once at settlement so claims never depend on later admin changes.
	FeeBps    uint16 `json:"fee_bps"`
	FeeAmount uint64 `json:"fee_amount"`
	NetPool   uint64 `json:"net_pool"`
	SettledAt int64  `json:"settled_at,omitempty"`
}

// SideSum returns the pool accumulated on side s.
func (e Epoch) SideSum(s Side) uint64 {
	if s == SideUp {
		return e.SumUp
	}
	return e.SumDown
}

// Bet is a user's single stake in one epoch.
type Bet struct {
	User     string `json:"user"`
	Asset    string `json:"asset"`
	EpochID  uint64 `json:"epoch_id"`
	Side     Side   `json:"side"`
	Stake    uint64 `json:"stake"`
	Claimed  bool   `json:"claimed"`
	PlacedAt int64  `json:"placed_at"`
	Paid     uint64 `json:"paid,omitempty"`
}
