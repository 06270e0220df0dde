package domain

import (
	"encoding/json"
	"fmt"
)

// EventType names a market notification.
type EventType string

const (
	EventEpochCreated EventType = "epoch_created"
	EventBetPlaced    EventType = "bet_placed"
	EventEpochLocked  EventType = "epoch_locked"
	EventEpochSettled EventType = "epoch_settled"
	EventEpochInvalid EventType = "epoch_invalid"
	EventClaimed      EventType = "claimed"
	EventRefunded     EventType = "refunded"
	EventTipSkipped   EventType = "tip_skipped"
	EventDeposited    EventType = "deposited"
	EventAssetUpdated EventType = "asset_updated"
	EventPauseChanged EventType = "pause_changed"
)

// Event is one committed notification. Seq is assigned by the ledger and is
// strictly increasing.
type Event struct {
	Seq       uint64          `json:"seq"`
	Type      EventType       `json:"type"`
	Asset     string          `json:"asset,omitempty"`
	EpochID   uint64          `json:"epoch_id,omitempty"`
	Timestamp int64           `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an unsequenced event.
func NewEvent(typ EventType, asset string, epochID uint64, ts int64, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("domain: marshal %s payload: %w", typ, err)
	}
	return Event{Type: typ, Asset: asset, EpochID: epochID, Timestamp: ts, Payload: raw}, nil
}

type EpochCreatedPayload struct {
	Asset    string `json:"asset"`
	EpochID  uint64 `json:"epoch_id"`
	StartTs  int64  `json:"start"`
	CutoffTs int64  `json:"cutoff"`
	EndTs    int64  `json:"end"`
}

type BetPlacedPayload struct {
	User    string `json:"user"`
	Asset   string `json:"asset"`
	EpochID uint64 `json:"epoch_id"`
	Side    Side   `json:"side"`
	Amount  uint64 `json:"amount"`
	Ts      int64  `json:"ts"`
}

type EpochLockedPayload struct {
	Asset   string `json:"asset"`
	EpochID uint64 `json:"epoch_id"`
	Ts      int64  `json:"ts"`
	SumUp   uint64 `json:"sum_up"`
	SumDown uint64 `json:"sum_down"`
}

type EpochSettledPayload struct {
	Asset       string      `json:"asset"`
	EpochID     uint64      `json:"epoch_id"`
	Price       int64       `json:"price"`
	Expo        int32       `json:"expo"`
	WinningSide WinningSide `json:"winning_side"`
	Fee         uint64      `json:"fee"`
	NetPool     uint64      `json:"net_pool"`
	Ts          int64       `json:"ts"`
}

type EpochInvalidPayload struct {
	Asset   string `json:"asset"`
	EpochID uint64 `json:"epoch_id"`
	Reason  string `json:"reason"`
	Ts      int64  `json:"ts"`
}

type ClaimedPayload struct {
	User    string `json:"user"`
	Asset   string `json:"asset"`
	EpochID uint64 `json:"epoch_id"`
	Payout  uint64 `json:"payout"`
	Ts      int64  `json:"ts"`
}

type RefundedPayload struct {
	User    string `json:"user"`
	Asset   string `json:"asset"`
	EpochID uint64 `json:"epoch_id"`
	Amount  uint64 `json:"amount"`
	Ts      int64  `json:"ts"`
}

type TipSkippedPayload struct {
	Asset     string `json:"asset"`
	EpochID   uint64 `json:"epoch_id"`
	Recipient string `json:"recipient"`
	Tip       uint64 `json:"tip"`
	Available uint64 `json:"available"`
	Ts        int64  `json:"ts"`
}

type DepositedPayload struct {
	Account Account `json:"account"`
	Amount  uint64  `json:"amount"`
	Ts      int64   `json:"ts"`
}

type AssetUpdatedPayload struct {
	Asset     string `json:"asset"`
	OracleRef string `json:"oracle_ref"`
	Currency  string `json:"currency"`
}

type PauseChangedPayload struct {
	Paused bool  `json:"paused"`
	Ts     int64 `json:"ts"`
}
