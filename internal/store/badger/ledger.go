// Package badger implements domain.Ledger on an embedded Badger database.
// Writers are serialized by a mutex around db.Update, so every Atomically
// call observes the committed result of the previous one.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

const gcInterval = 5 * time.Minute

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used by the ledger and by badger itself.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithDataDir stores data on disk. Without it the ledger is in-memory.
func WithDataDir(dir string) Option {
	return func(l *Ledger) {
		l.dataDir = dir
	}
}

// WithGC toggles periodic value-log garbage collection for on-disk ledgers.
func WithGC(enabled bool) Option {
	return func(l *Ledger) {
		l.gcEnabled = enabled
	}
}

// Ledger is a badger-backed domain.Ledger.
type Ledger struct {
	db        *badger.DB
	logger    *slog.Logger
	dataDir   string
	gcEnabled bool

	writeMu sync.Mutex

	gcStop chan struct{}
	gcWg   sync.WaitGroup
}

// New opens the ledger.
func New(opts ...Option) (*Ledger, error) {
	l := &Ledger{gcEnabled: true}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var bopts badger.Options
	if l.dataDir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
		l.gcEnabled = false
	} else {
		if err := os.MkdirAll(l.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("badger: create data dir: %w", err)
		}
		bopts = badger.DefaultOptions(l.dataDir)
	}
	bopts = bopts.
		WithLogger(newBadgerLogger(l.logger)).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	l.db = db

	if l.gcEnabled {
		l.gcStop = make(chan struct{})
		l.gcWg.Add(1)
		go l.runGC()
	}
	return l, nil
}

func (l *Ledger) runGC() {
	defer l.gcWg.Done()
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				err := l.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					l.logger.Warn("badger: value log gc failed", slog.String("error", err.Error()))
				}
				break
			}
		case <-l.gcStop:
			return
		}
	}
}

// Close stops GC and closes the database.
func (l *Ledger) Close() error {
	if l.gcStop != nil {
		close(l.gcStop)
		l.gcWg.Wait()
		l.gcStop = nil
	}
	return l.db.Close()
}

// Atomically runs fn in a single read-write transaction. The transaction
// commits only if fn returns nil.
func (l *Ledger) Atomically(ctx context.Context, fn func(tx domain.Tx) error) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
}

// ---------------------------------------------------------------------------
// Read side
// ---------------------------------------------------------------------------

func (l *Ledger) GetConfig(ctx context.Context) (domain.ProtocolConfig, error) {
	var cfg domain.ProtocolConfig
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyConfig, &cfg)
	})
	if err != nil {
		return cfg, fmt.Errorf("badger: get config: %w", err)
	}
	return cfg, nil
}

func (l *Ledger) GetAsset(ctx context.Context, symbol string) (domain.AssetConfig, error) {
	var a domain.AssetConfig
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, assetKey(symbol), &a)
	})
	if err != nil {
		return a, fmt.Errorf("badger: get asset %s: %w", symbol, err)
	}
	return a, nil
}

func (l *Ledger) ListAssets(ctx context.Context) ([]domain.AssetConfig, error) {
	var out []domain.AssetConfig
	err := l.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, prefixAsset, false, func(raw []byte) (bool, error) {
			var a domain.AssetConfig
			if err := json.Unmarshal(raw, &a); err != nil {
				return false, err
			}
			out = append(out, a)
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list assets: %w", err)
	}
	return out, nil
}

func (l *Ledger) GetEpoch(ctx context.Context, asset string, id uint64) (domain.Epoch, error) {
	var e domain.Epoch
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, epochKey(asset, id), &e)
	})
	if err != nil {
		return e, fmt.Errorf("badger: get epoch %s/%d: %w", asset, id, err)
	}
	return e, nil
}

func (l *Ledger) ListEpochs(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Epoch, error) {
	var out []domain.Epoch
	skipped := 0
	err := l.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, epochPrefix(asset), true, func(raw []byte) (bool, error) {
			if skipped < opts.Offset {
				skipped++
				return true, nil
			}
			var e domain.Epoch
			if err := json.Unmarshal(raw, &e); err != nil {
				return false, err
			}
			out = append(out, e)
			return opts.Limit <= 0 || len(out) < opts.Limit, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list epochs %s: %w", asset, err)
	}
	return out, nil
}

func (l *Ledger) ListEpochsByStatus(ctx context.Context, statuses ...domain.EpochStatus) ([]domain.Epoch, error) {
	want := make(map[domain.EpochStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []domain.Epoch
	err := l.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, prefixEpoch, false, func(raw []byte) (bool, error) {
			var e domain.Epoch
			if err := json.Unmarshal(raw, &e); err != nil {
				return false, err
			}
			if want[e.Status] {
				out = append(out, e)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list epochs by status: %w", err)
	}
	return out, nil
}

func (l *Ledger) GetBet(ctx context.Context, user, asset string, epochID uint64) (domain.Bet, error) {
	var b domain.Bet
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, betKey(user, asset, epochID), &b)
	})
	if err != nil {
		return b, fmt.Errorf("badger: get bet %s/%d/%s: %w", asset, epochID, user, err)
	}
	return b, nil
}

func (l *Ledger) ListEpochBets(ctx context.Context, asset string, epochID uint64) ([]domain.Bet, error) {
	var out []domain.Bet
	err := l.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, epochBetPrefix(asset, epochID), false, func(raw []byte) (bool, error) {
			var b domain.Bet
			if err := json.Unmarshal(raw, &b); err != nil {
				return false, err
			}
			out = append(out, b)
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list bets %s/%d: %w", asset, epochID, err)
	}
	return out, nil
}

func (l *Ledger) ListUserBets(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Bet, error) {
	var out []domain.Bet
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := userBetPrefix(user)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var refs []struct {
			asset string
			id    uint64
		}
		for it.Rewind(); it.Valid(); it.Next() {
			asset, id, ok := parseUserBetKey(it.Item().Key(), prefix)
			if !ok {
				continue
			}
			refs = append(refs, struct {
				asset string
				id    uint64
			}{asset, id})
		}
		// Newest epochs first across all assets.
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].id > refs[j].id })

		for i, ref := range refs {
			if i < opts.Offset {
				continue
			}
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
			var b domain.Bet
			if err := getJSON(txn, betKey(user, ref.asset, ref.id), &b); err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list bets of %s: %w", user, err)
	}
	return out, nil
}

func (l *Ledger) Balance(ctx context.Context, acct domain.Account) (uint64, error) {
	var amt uint64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		amt, err = getUint(txn, balanceKey(acct))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("badger: balance %s: %w", acct, err)
	}
	return amt, nil
}

func (l *Ledger) ListBalances(ctx context.Context, kind domain.AccountKind, owner string) ([]domain.Balance, error) {
	var out []domain.Balance
	prefix := balanceOwnerPrefix(kind, owner)
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(raw) != 8 {
				return fmt.Errorf("corrupt balance value at %q", item.Key())
			}
			out = append(out, domain.Balance{
				Account: domain.Account{
					Kind:     kind,
					Owner:    owner,
					Currency: parseBalanceCurrency(item.Key(), prefix),
				},
				Amount: binary.BigEndian.Uint64(raw),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list balances of %s:%s: %w", kind, owner, err)
	}
	return out, nil
}

func (l *Ledger) Events(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Event
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixEvent, PrefetchValues: true})
		defer it.Close()
		for it.Seek(eventKey(afterSeq + 1)); it.ValidForPrefix(prefixEvent); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var ev domain.Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				return err
			}
			out = append(out, ev)
			if len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list events after %d: %w", afterSeq, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return item.Value(func(raw []byte) error {
		return json.Unmarshal(raw, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

func getUint(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var n uint64
	err = item.Value(func(raw []byte) error {
		if len(raw) != 8 {
			return fmt.Errorf("corrupt counter at %q", key)
		}
		n = binary.BigEndian.Uint64(raw)
		return nil
	})
	return n, err
}

func setUint(txn *badger.Txn, key []byte, n uint64) error {
	return txn.Set(key, binary.BigEndian.AppendUint64(nil, n))
}

// scanJSON iterates every value under prefix. visit returns false to stop.
func scanJSON(txn *badger.Txn, prefix []byte, reverse bool, visit func(raw []byte) (bool, error)) error {
	it := txn.NewIterator(badger.IteratorOptions{
		Prefix:         prefix,
		PrefetchValues: true,
		PrefetchSize:   100,
		Reverse:        reverse,
	})
	defer it.Close()

	if reverse {
		// Seek to the last key carrying prefix.
		seek := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seek)
	} else {
		it.Rewind()
	}
	for ; it.ValidForPrefix(prefix); it.Next() {
		raw, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		more, err := visit(raw)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

var _ domain.Ledger = (*Ledger)(nil)
