package badger

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/pool"
)

// tx implements domain.Tx over a badger read-write transaction.
type tx struct {
	txn *badger.Txn
}

func (t *tx) Config(ctx context.Context) (domain.ProtocolConfig, error) {
	var cfg domain.ProtocolConfig
	if err := getJSON(t.txn, keyConfig, &cfg); err != nil {
		return cfg, fmt.Errorf("badger: config: %w", err)
	}
	return cfg, nil
}

func (t *tx) CreateConfig(ctx context.Context, cfg domain.ProtocolConfig) error {
	if err := t.createJSON(keyConfig, cfg); err != nil {
		return fmt.Errorf("badger: create config: %w", err)
	}
	return nil
}

func (t *tx) PutConfig(ctx context.Context, cfg domain.ProtocolConfig) error {
	if err := setJSON(t.txn, keyConfig, cfg); err != nil {
		return fmt.Errorf("badger: put config: %w", err)
	}
	return nil
}

func (t *tx) Asset(ctx context.Context, symbol string) (domain.AssetConfig, error) {
	var a domain.AssetConfig
	if err := getJSON(t.txn, assetKey(symbol), &a); err != nil {
		return a, fmt.Errorf("badger: asset %s: %w", symbol, err)
	}
	return a, nil
}

func (t *tx) PutAsset(ctx context.Context, a domain.AssetConfig) error {
	if err := setJSON(t.txn, assetKey(a.Symbol), a); err != nil {
		return fmt.Errorf("badger: put asset %s: %w", a.Symbol, err)
	}
	return nil
}

func (t *tx) Epoch(ctx context.Context, asset string, id uint64) (domain.Epoch, error) {
	var e domain.Epoch
	if err := getJSON(t.txn, epochKey(asset, id), &e); err != nil {
		return e, fmt.Errorf("badger: epoch %s/%d: %w", asset, id, err)
	}
	return e, nil
}

func (t *tx) CreateEpoch(ctx context.Context, e domain.Epoch) error {
	if err := t.createJSON(epochKey(e.Asset, e.ID), e); err != nil {
		return fmt.Errorf("badger: create epoch %s/%d: %w", e.Asset, e.ID, err)
	}
	return nil
}

func (t *tx) PutEpoch(ctx context.Context, e domain.Epoch) error {
	if err := setJSON(t.txn, epochKey(e.Asset, e.ID), e); err != nil {
		return fmt.Errorf("badger: put epoch %s/%d: %w", e.Asset, e.ID, err)
	}
	return nil
}

func (t *tx) Bet(ctx context.Context, user, asset string, epochID uint64) (domain.Bet, error) {
	var b domain.Bet
	if err := getJSON(t.txn, betKey(user, asset, epochID), &b); err != nil {
		return b, fmt.Errorf("badger: bet %s/%d/%s: %w", asset, epochID, user, err)
	}
	return b, nil
}

func (t *tx) CreateBet(ctx context.Context, b domain.Bet) error {
	if err := t.createJSON(betKey(b.User, b.Asset, b.EpochID), b); err != nil {
		return fmt.Errorf("badger: create bet %s/%d/%s: %w", b.Asset, b.EpochID, b.User, err)
	}
	if err := t.txn.Set(userBetKey(b.User, b.Asset, b.EpochID), []byte{}); err != nil {
		return fmt.Errorf("badger: index bet %s/%d/%s: %w", b.Asset, b.EpochID, b.User, err)
	}
	return nil
}

func (t *tx) PutBet(ctx context.Context, b domain.Bet) error {
	if err := setJSON(t.txn, betKey(b.User, b.Asset, b.EpochID), b); err != nil {
		return fmt.Errorf("badger: put bet %s/%d/%s: %w", b.Asset, b.EpochID, b.User, err)
	}
	return nil
}

func (t *tx) Balance(ctx context.Context, acct domain.Account) (uint64, error) {
	n, err := getUint(t.txn, balanceKey(acct))
	if err != nil {
		return 0, fmt.Errorf("badger: balance %s: %w", acct, err)
	}
	return n, nil
}

func (t *tx) Transfer(ctx context.Context, from, to domain.Account, amount uint64) error {
	if from.Currency != to.Currency {
		return fmt.Errorf("badger: transfer %s -> %s: %w", from, to, domain.ErrWrongMint)
	}
	if amount == 0 || from == to {
		return nil
	}
	src, err := t.Balance(ctx, from)
	if err != nil {
		return err
	}
	if src < amount {
		return fmt.Errorf("badger: transfer %d from %s: %w", amount, from, domain.ErrInsufficientFunds)
	}
	dst, err := t.Balance(ctx, to)
	if err != nil {
		return err
	}
	newDst, err := pool.Add(dst, amount)
	if err != nil {
		return fmt.Errorf("badger: transfer %d to %s: %w", amount, to, err)
	}
	if err := setUint(t.txn, balanceKey(from), src-amount); err != nil {
		return fmt.Errorf("badger: debit %s: %w", from, err)
	}
	if err := setUint(t.txn, balanceKey(to), newDst); err != nil {
		return fmt.Errorf("badger: credit %s: %w", to, err)
	}
	return nil
}

func (t *tx) Credit(ctx context.Context, to domain.Account, amount uint64) error {
	cur, err := t.Balance(ctx, to)
	if err != nil {
		return err
	}
	next, err := pool.Add(cur, amount)
	if err != nil {
		return fmt.Errorf("badger: credit %d to %s: %w", amount, to, err)
	}
	if err := setUint(t.txn, balanceKey(to), next); err != nil {
		return fmt.Errorf("badger: credit %s: %w", to, err)
	}
	return nil
}

func (t *tx) Emit(ctx context.Context, ev domain.Event) (domain.Event, error) {
	last, err := getUint(t.txn, keyEventSeqCtr)
	if err != nil {
		return ev, fmt.Errorf("badger: read event seq: %w", err)
	}
	ev.Seq = last + 1
	raw, err := json.Marshal(ev)
	if err != nil {
		return ev, fmt.Errorf("badger: marshal event: %w", err)
	}
	if err := t.txn.Set(eventKey(ev.Seq), raw); err != nil {
		return ev, fmt.Errorf("badger: append event %d: %w", ev.Seq, err)
	}
	if err := setUint(t.txn, keyEventSeqCtr, ev.Seq); err != nil {
		return ev, fmt.Errorf("badger: bump event seq: %w", err)
	}
	return ev, nil
}

// createJSON writes v at key, failing with ErrAlreadyExists if key is set.
func (t *tx) createJSON(key []byte, v any) error {
	ok, err := exists(t.txn, key)
	if err != nil {
		return err
	}
	if ok {
		return domain.ErrAlreadyExists
	}
	return setJSON(t.txn, key, v)
}

var _ domain.Tx = (*tx)(nil)
