package postgres

import (
	"github.com/alanyoungcy/updownbet/internal/domain"
)

// row is satisfied by pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

const configColumns = `admin, treasury, fee_bps, settle_tip, tip_currency, cutoff_secs, epoch_length_secs, paused`

func scanConfig(r row) (domain.ProtocolConfig, error) {
	var c domain.ProtocolConfig
	err := r.Scan(&c.Admin, &c.Treasury, &c.FeeBps, &c.SettleTip, &c.TipCurrency,
		&c.CutoffSecs, &c.EpochLengthSecs, &c.Paused)
	return c, err
}

const assetColumns = `symbol, oracle_ref, currency, active_epoch_id`

func scanAsset(r row) (domain.AssetConfig, error) {
	var a domain.AssetConfig
	err := r.Scan(&a.Symbol, &a.OracleRef, &a.Currency, &a.ActiveEpochID)
	return a, err
}

const epochColumns = `asset, epoch_id, start_ts, cutoff_ts, end_ts, status,
	start_price, start_expo, settle_price, settle_expo, winning_side,
	sum_up, sum_down, currency, fee_bps, fee_amount, net_pool, settled_at`

func scanEpoch(r row) (domain.Epoch, error) {
	var (
		e      domain.Epoch
		status string
		winner string
	)
	err := r.Scan(&e.Asset, &e.ID, &e.StartTs, &e.CutoffTs, &e.EndTs, &status,
		&e.StartPrice, &e.StartExpo, &e.SettlePrice, &e.SettleExpo, &winner,
		&e.SumUp, &e.SumDown, &e.Currency, &e.FeeBps, &e.FeeAmount, &e.NetPool, &e.SettledAt)
	e.Status = domain.EpochStatus(status)
	e.WinningSide = domain.WinningSide(winner)
	return e, err
}

func epochArgs(e domain.Epoch) []any {
	return []any{
		e.Asset, e.ID, e.StartTs, e.CutoffTs, e.EndTs, string(e.Status),
		e.StartPrice, e.StartExpo, e.SettlePrice, e.SettleExpo, string(e.WinningSide),
		e.SumUp, e.SumDown, e.Currency, e.FeeBps, e.FeeAmount, e.NetPool, e.SettledAt,
	}
}

const betColumns = `user_id, asset, epoch_id, side, stake, claimed, paid, placed_at`

func scanBet(r row) (domain.Bet, error) {
	var (
		b    domain.Bet
		side string
	)
	err := r.Scan(&b.User, &b.Asset, &b.EpochID, &side, &b.Stake, &b.Claimed, &b.Paid, &b.PlacedAt)
	b.Side = domain.Side(side)
	return b, err
}

const eventColumns = `seq, type, asset, epoch_id, ts, payload`

func scanEvent(r row) (domain.Event, error) {
	var (
		ev      domain.Event
		typ     string
		payload []byte
	)
	err := r.Scan(&ev.Seq, &typ, &ev.Asset, &ev.EpochID, &ev.Timestamp, &payload)
	ev.Type = domain.EventType(typ)
	ev.Payload = payload
	return ev, err
}
