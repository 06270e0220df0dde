package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/pool"
)

// tx implements domain.Tx on one SERIALIZABLE transaction. Every read takes
// a row lock so concurrent writers to the same record queue up behind it.
type tx struct {
	tx pgx.Tx
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: %s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("postgres: %s: %w", what, err)
}

func (t *tx) Config(ctx context.Context) (domain.ProtocolConfig, error) {
	c, err := scanConfig(t.tx.QueryRow(ctx,
		`SELECT `+configColumns+` FROM protocol_config WHERE id FOR UPDATE`))
	if err != nil {
		return c, notFound(err, "get config")
	}
	return c, nil
}

func (t *tx) CreateConfig(ctx context.Context, c domain.ProtocolConfig) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO protocol_config (id, `+configColumns+`)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		c.Admin, c.Treasury, c.FeeBps, c.SettleTip, c.TipCurrency,
		c.CutoffSecs, c.EpochLengthSecs, c.Paused)
	if err != nil {
		return fmt.Errorf("postgres: create config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create config: %w", domain.ErrAlreadyExists)
	}
	return nil
}

func (t *tx) PutConfig(ctx context.Context, c domain.ProtocolConfig) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE protocol_config SET
			admin = $1, treasury = $2, fee_bps = $3, settle_tip = $4, tip_currency = $5,
			cutoff_secs = $6, epoch_length_secs = $7, paused = $8, updated_at = NOW()
		WHERE id`,
		c.Admin, c.Treasury, c.FeeBps, c.SettleTip, c.TipCurrency,
		c.CutoffSecs, c.EpochLengthSecs, c.Paused)
	if err != nil {
		return fmt.Errorf("postgres: put config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: put config: %w", domain.ErrNotFound)
	}
	return nil
}

func (t *tx) Asset(ctx context.Context, symbol string) (domain.AssetConfig, error) {
	a, err := scanAsset(t.tx.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE symbol = $1 FOR UPDATE`, symbol))
	if err != nil {
		return a, notFound(err, "get asset "+symbol)
	}
	return a, nil
}

func (t *tx) PutAsset(ctx context.Context, a domain.AssetConfig) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO assets (`+assetColumns+`) VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			oracle_ref      = EXCLUDED.oracle_ref,
			currency        = EXCLUDED.currency,
			active_epoch_id = EXCLUDED.active_epoch_id,
			updated_at      = NOW()`,
		a.Symbol, a.OracleRef, a.Currency, a.ActiveEpochID)
	if err != nil {
		return fmt.Errorf("postgres: put asset %s: %w", a.Symbol, err)
	}
	return nil
}

func (t *tx) Epoch(ctx context.Context, asset string, id uint64) (domain.Epoch, error) {
	e, err := scanEpoch(t.tx.QueryRow(ctx,
		`SELECT `+epochColumns+` FROM epochs WHERE asset = $1 AND epoch_id = $2 FOR UPDATE`, asset, id))
	if err != nil {
		return e, notFound(err, fmt.Sprintf("get epoch %s/%d", asset, id))
	}
	return e, nil
}

func (t *tx) CreateEpoch(ctx context.Context, e domain.Epoch) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO epochs (`+epochColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (asset, epoch_id) DO NOTHING`, epochArgs(e)...)
	if err != nil {
		return fmt.Errorf("postgres: create epoch %s/%d: %w", e.Asset, e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create epoch %s/%d: %w", e.Asset, e.ID, domain.ErrAlreadyExists)
	}
	return nil
}

func (t *tx) PutEpoch(ctx context.Context, e domain.Epoch) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE epochs SET
			start_ts = $3, cutoff_ts = $4, end_ts = $5, status = $6,
			start_price = $7, start_expo = $8, settle_price = $9, settle_expo = $10,
			winning_side = $11, sum_up = $12, sum_down = $13, currency = $14,
			fee_bps = $15, fee_amount = $16, net_pool = $17, settled_at = $18
		WHERE asset = $1 AND epoch_id = $2`, epochArgs(e)...)
	if err != nil {
		return fmt.Errorf("postgres: put epoch %s/%d: %w", e.Asset, e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: put epoch %s/%d: %w", e.Asset, e.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *tx) Bet(ctx context.Context, user, asset string, epochID uint64) (domain.Bet, error) {
	b, err := scanBet(t.tx.QueryRow(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE asset = $1 AND epoch_id = $2 AND user_id = $3 FOR UPDATE`, asset, epochID, user))
	if err != nil {
		return b, notFound(err, fmt.Sprintf("get bet %s/%d/%s", asset, epochID, user))
	}
	return b, nil
}

func (t *tx) CreateBet(ctx context.Context, b domain.Bet) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO bets (`+betColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (asset, epoch_id, user_id) DO NOTHING`,
		b.User, b.Asset, b.EpochID, string(b.Side), b.Stake, b.Claimed, b.Paid, b.PlacedAt)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s/%d/%s: %w", b.Asset, b.EpochID, b.User, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create bet %s/%d/%s: %w", b.Asset, b.EpochID, b.User, domain.ErrAlreadyExists)
	}
	return nil
}

func (t *tx) PutBet(ctx context.Context, b domain.Bet) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bets SET side = $4, stake = $5, claimed = $6, paid = $7, placed_at = $8
		WHERE user_id = $1 AND asset = $2 AND epoch_id = $3`,
		b.User, b.Asset, b.EpochID, string(b.Side), b.Stake, b.Claimed, b.Paid, b.PlacedAt)
	if err != nil {
		return fmt.Errorf("postgres: put bet %s/%d/%s: %w", b.Asset, b.EpochID, b.User, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: put bet %s/%d/%s: %w", b.Asset, b.EpochID, b.User, domain.ErrNotFound)
	}
	return nil
}

func (t *tx) Balance(ctx context.Context, acct domain.Account) (uint64, error) {
	var amount uint64
	err := t.tx.QueryRow(ctx, `
		SELECT amount FROM balances WHERE kind = $1 AND owner = $2 AND currency = $3 FOR UPDATE`,
		string(acct.Kind), acct.Owner, acct.Currency).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", acct, err)
	}
	return amount, nil
}

func (t *tx) setBalance(ctx context.Context, acct domain.Account, amount uint64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO balances (kind, owner, currency, amount) VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, owner, currency) DO UPDATE SET amount = EXCLUDED.amount`,
		string(acct.Kind), acct.Owner, acct.Currency, amount)
	if err != nil {
		return fmt.Errorf("postgres: set balance %s: %w", acct, err)
	}
	return nil
}

func (t *tx) Transfer(ctx context.Context, from, to domain.Account, amount uint64) error {
	if from.Currency != to.Currency {
		return fmt.Errorf("postgres: transfer %s -> %s: %w", from, to, domain.ErrWrongMint)
	}
	if amount == 0 || from == to {
		return nil
	}
	src, err := t.Balance(ctx, from)
	if err != nil {
		return err
	}
	if src < amount {
		return fmt.Errorf("postgres: transfer %d from %s: %w", amount, from, domain.ErrInsufficientFunds)
	}
	dst, err := t.Balance(ctx, to)
	if err != nil {
		return err
	}
	next, err := pool.Add(dst, amount)
	if err != nil {
		return fmt.Errorf("postgres: transfer %d to %s: %w", amount, to, err)
	}
	if err := t.setBalance(ctx, from, src-amount); err != nil {
		return err
	}
	return t.setBalance(ctx, to, next)
}

func (t *tx) Credit(ctx context.Context, to domain.Account, amount uint64) error {
	cur, err := t.Balance(ctx, to)
	if err != nil {
		return err
	}
	next, err := pool.Add(cur, amount)
	if err != nil {
		return fmt.Errorf("postgres: credit %d to %s: %w", amount, to, err)
	}
	return t.setBalance(ctx, to, next)
}

// Emit takes the next sequence number from the counter row. The row lock
// orders event-producing transactions, so a reader polling by seq never
// skips an event that commits later with a smaller number.
func (t *tx) Emit(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if err := t.tx.QueryRow(ctx,
		`UPDATE event_counter SET last_seq = last_seq + 1 WHERE id RETURNING last_seq`,
	).Scan(&ev.Seq); err != nil {
		return ev, fmt.Errorf("postgres: next event seq: %w", err)
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.Seq, string(ev.Type), ev.Asset, ev.EpochID, ev.Timestamp, []byte(ev.Payload))
	if err != nil {
		return ev, fmt.Errorf("postgres: append event %d: %w", ev.Seq, err)
	}
	return ev, nil
}

// isRetryable reports serialization failures and deadlocks, which Postgres
// resolves by aborting one of the transactions.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

var _ domain.Tx = (*tx)(nil)
