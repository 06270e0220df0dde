package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

const (
	defaultMaxRetries = 8
	retryBaseDelay    = 5 * time.Millisecond
)

// Ledger implements domain.Ledger on PostgreSQL. Each Atomically call is one
// SERIALIZABLE transaction, retried when Postgres aborts it for a
// serialization conflict.
type Ledger struct {
	pool       *pgxpool.Pool
	maxRetries int
	logger     *slog.Logger
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Ledger{
		pool:       pool,
		maxRetries: defaultMaxRetries,
		logger:     logger.With(slog.String("component", "postgres_ledger")),
	}
}

// Atomically runs fn in a transaction. fn may run more than once.
func (l *Ledger) Atomically(ctx context.Context, fn func(tx domain.Tx) error) error {
	var err error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << min(attempt-1, 6)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err = l.attempt(ctx, fn)
		if !isRetryable(err) {
			return err
		}
		l.logger.DebugContext(ctx, "serialization conflict, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return fmt.Errorf("postgres: transaction retries exhausted: %w", err)
}

func (l *Ledger) attempt(ctx context.Context, fn func(tx domain.Tx) error) error {
	pgTx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	if err := fn(&tx{tx: pgTx}); err != nil {
		_ = pgTx.Rollback(ctx)
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the Client.
func (l *Ledger) Close() error {
	return nil
}

func (l *Ledger) GetConfig(ctx context.Context) (domain.ProtocolConfig, error) {
	c, err := scanConfig(l.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM protocol_config WHERE id`))
	if err != nil {
		return c, notFound(err, "get config")
	}
	return c, nil
}

func (l *Ledger) GetAsset(ctx context.Context, symbol string) (domain.AssetConfig, error) {
	a, err := scanAsset(l.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE symbol = $1`, symbol))
	if err != nil {
		return a, notFound(err, "get asset "+symbol)
	}
	return a, nil
}

func (l *Ledger) ListAssets(ctx context.Context) ([]domain.AssetConfig, error) {
	rows, err := l.pool.Query(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assets: %w", err)
	}
	return collect(rows, scanAsset, "list assets")
}

func (l *Ledger) GetEpoch(ctx context.Context, asset string, id uint64) (domain.Epoch, error) {
	e, err := scanEpoch(l.pool.QueryRow(ctx,
		`SELECT `+epochColumns+` FROM epochs WHERE asset = $1 AND epoch_id = $2`, asset, id))
	if err != nil {
		return e, notFound(err, fmt.Sprintf("get epoch %s/%d", asset, id))
	}
	return e, nil
}

func (l *Ledger) ListEpochs(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Epoch, error) {
	q := newListQuery(`SELECT `+epochColumns+` FROM epochs WHERE asset = $1`, asset)
	q.timeRange("start_ts", opts)
	q.page("epoch_id DESC", opts)
	rows, err := l.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list epochs %s: %w", asset, err)
	}
	return collect(rows, scanEpoch, "list epochs")
}

func (l *Ledger) ListEpochsByStatus(ctx context.Context, statuses ...domain.EpochStatus) ([]domain.Epoch, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := l.pool.Query(ctx,
		`SELECT `+epochColumns+` FROM epochs WHERE status = ANY($1) ORDER BY asset, epoch_id`, names)
	if err != nil {
		return nil, fmt.Errorf("postgres: list epochs by status: %w", err)
	}
	return collect(rows, scanEpoch, "list epochs by status")
}

func (l *Ledger) GetBet(ctx context.Context, user, asset string, epochID uint64) (domain.Bet, error) {
	b, err := scanBet(l.pool.QueryRow(ctx, `
		SELECT `+betColumns+` FROM bets WHERE asset = $1 AND epoch_id = $2 AND user_id = $3`,
		asset, epochID, user))
	if err != nil {
		return b, notFound(err, fmt.Sprintf("get bet %s/%d/%s", asset, epochID, user))
	}
	return b, nil
}

func (l *Ledger) ListEpochBets(ctx context.Context, asset string, epochID uint64) ([]domain.Bet, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT `+betColumns+` FROM bets WHERE asset = $1 AND epoch_id = $2 ORDER BY user_id`,
		asset, epochID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets %s/%d: %w", asset, epochID, err)
	}
	return collect(rows, scanBet, "list epoch bets")
}

func (l *Ledger) ListUserBets(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Bet, error) {
	q := newListQuery(`SELECT `+betColumns+` FROM bets WHERE user_id = $1`, user)
	q.timeRange("placed_at", opts)
	q.page("placed_at DESC, asset, epoch_id DESC", opts)
	rows, err := l.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets of %s: %w", user, err)
	}
	return collect(rows, scanBet, "list user bets")
}

func (l *Ledger) Balance(ctx context.Context, acct domain.Account) (uint64, error) {
	var amount uint64
	err := l.pool.QueryRow(ctx, `
		SELECT amount FROM balances WHERE kind = $1 AND owner = $2 AND currency = $3`,
		string(acct.Kind), acct.Owner, acct.Currency).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", acct, err)
	}
	return amount, nil
}

func (l *Ledger) ListBalances(ctx context.Context, kind domain.AccountKind, owner string) ([]domain.Balance, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT currency, amount FROM balances WHERE kind = $1 AND owner = $2 ORDER BY currency`,
		string(kind), owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances %s:%s: %w", kind, owner, err)
	}
	return collect(rows, func(r row) (domain.Balance, error) {
		b := domain.Balance{Account: domain.Account{Kind: kind, Owner: owner}}
		err := r.Scan(&b.Currency, &b.Amount)
		return b, err
	}, "list balances")
}

func (l *Ledger) Events(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE seq > $1 ORDER BY seq LIMIT $2`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	return collect(rows, scanEvent, "list events")
}

func collect[T any](rows pgx.Rows, scan func(row) (T, error), what string) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return out, nil
}

var _ domain.Ledger = (*Ledger)(nil)
