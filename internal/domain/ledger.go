package domain

import "context"

// Tx is the write view of the ledger inside one atomic transaction. Every
// write is discarded if the surrounding Atomically call returns an error.
type Tx interface {
	Config(ctx context.Context) (ProtocolConfig, error)
	CreateConfig(ctx context.Context, cfg ProtocolConfig) error
	PutConfig(ctx context.Context, cfg ProtocolConfig) error

	Asset(ctx context.Context, symbol string) (AssetConfig, error)
	PutAsset(ctx context.Context, asset AssetConfig) error

	Epoch(ctx context.Context, asset string, id uint64) (Epoch, error)
	// CreateEpoch returns ErrAlreadyExists if the (asset, id) key is taken.
	CreateEpoch(ctx context.Context, e Epoch) error
	PutEpoch(ctx context.Context, e Epoch) error

	Bet(ctx context.Context, user, asset string, epochID uint64) (Bet, error)
	// CreateBet returns ErrAlreadyExists if the user already bet in the epoch.
	CreateBet(ctx context.Context, b Bet) error
	PutBet(ctx context.Context, b Bet) error

	Balance(ctx context.Context, acct Account) (uint64, error)
	// Transfer moves amount between two accounts of the same currency. It
	// returns ErrInsufficientFunds or ErrOverflow without writing anything.
	Transfer(ctx context.Context, from, to Account, amount uint64) error
	Credit(ctx context.Context, to Account, amount uint64) error

	// Emit appends ev to the outbox and returns it with its sequence number.
	Emit(ctx context.Context, ev Event) (Event, error)
}

// LedgerReader is the read-only side of the ledger.
type LedgerReader interface {
	GetConfig(ctx context.Context) (ProtocolConfig, error)
	GetAsset(ctx context.Context, symbol string) (AssetConfig, error)
	ListAssets(ctx context.Context) ([]AssetConfig, error)
	GetEpoch(ctx context.Context, asset string, id uint64) (Epoch, error)
	// ListEpochs returns the newest epochs of an asset first.
	ListEpochs(ctx context.Context, asset string, opts ListOpts) ([]Epoch, error)
	ListEpochsByStatus(ctx context.Context, statuses ...EpochStatus) ([]Epoch, error)
	GetBet(ctx context.Context, user, asset string, epochID uint64) (Bet, error)
	ListEpochBets(ctx context.Context, asset string, epochID uint64) ([]Bet, error)
	ListUserBets(ctx context.Context, user string, opts ListOpts) ([]Bet, error)
	Balance(ctx context.Context, acct Account) (uint64, error)
	ListBalances(ctx context.Context, kind AccountKind, owner string) ([]Balance, error)
	Events(ctx context.Context, afterSeq uint64, limit int) ([]Event, error)
}

// Ledger persists all market state and serializes writers.
type Ledger interface {
	LedgerReader
	Atomically(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
