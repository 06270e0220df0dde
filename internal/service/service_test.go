package service_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/service"
)

func TestCreateEpochOnGrid(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)

	e := h.open()
	assert.Equal(t, uint64(1000), e.ID)
	assert.Equal(t, genesis, e.StartTs)
	assert.Equal(t, genesis+epochLen-cutoffSecs, e.CutoffTs)
	assert.Equal(t, genesis+epochLen, e.EndTs)
	assert.Equal(t, domain.StatusOpen, e.Status)
	assert.Equal(t, testCurrency, e.Currency)

	asset, err := h.ledger.GetAsset(h.ctx, testAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), asset.ActiveEpochID)

	_, err = h.epochs.CreateEpoch(h.ctx, testAsset)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 1, h.events.count(domain.EventEpochCreated))

	_, err = h.epochs.CreateEpoch(h.ctx, "ABCDEFGHIJKLMNOPQ")
	assert.ErrorIs(t, err, domain.ErrAssetSymbolTooLong)
}

func TestWorkedExamplePayout(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 1_000)
	h.fund("bob", 1_000)
	h.fund("carol", 1_000)
	h.open()

	require.NoError(t, h.bet("alice", domain.SideUp, 120))
	require.NoError(t, h.bet("bob", domain.SideUp, 480))
	require.NoError(t, h.bet("carol", domain.SideDown, 400))

	e, err := h.ledger.GetEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), e.SumUp)
	assert.Equal(t, uint64(400), e.SumDown)
	assert.Equal(t, uint64(1000), h.escrow())

	settled, err := h.closeWith(6_500_000_000_000, 6_510_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettled, settled.Status)
	assert.Equal(t, domain.WinningUp, settled.WinningSide)
	assert.Equal(t, uint64(20), settled.FeeAmount)
	assert.Equal(t, uint64(980), settled.NetPool)
	assert.Equal(t, int64(6_510_000_000_000), settled.SettlePrice)
	assert.Equal(t, int32(-8), settled.SettleExpo)
	assert.Equal(t, uint64(20), h.treasury())

	bet, err := h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(196), bet.Paid)
	assert.True(t, bet.Claimed)
	assert.Equal(t, uint64(1_000-120+196), h.userBalance("alice"))

	bet, err = h.claims.Claim(h.ctx, "bob", testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(784), bet.Paid)

	_, err = h.claims.Claim(h.ctx, "carol", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrNotWinner)
	assert.Zero(t, h.escrow())
}

func TestPoolConservation(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.open()

	stakes := map[string]uint64{"a": 7, "b": 13, "c": 1, "d": 999, "e": 42}
	var want uint64
	i := 0
	for user, stake := range stakes {
		h.fund(user, stake)
		side := domain.SideUp
		if i%2 == 1 {
			side = domain.SideDown
		}
		require.NoError(t, h.bet(user, side, stake))
		want += stake
		i++
	}

	e, err := h.ledger.GetEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, want, e.SumUp+e.SumDown)
	assert.Equal(t, want, h.escrow())

	bets, err := h.ledger.ListEpochBets(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Len(t, bets, len(stakes))
}

func TestPlaceBetRejectionOrder(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 100)
	h.open()

	t.Run("zero amount before any transfer", func(t *testing.T) {
		err := h.bet("nobody", domain.SideUp, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidBetAmount)
	})

	t.Run("unknown side", func(t *testing.T) {
		err := h.bet("alice", domain.Side("sideways"), 10)
		assert.ErrorIs(t, err, domain.ErrInvalidSide)
		assert.Equal(t, "InvalidSide", domain.ErrorCode(err))
	})

	t.Run("unfunded user", func(t *testing.T) {
		err := h.bet("nobody", domain.SideUp, 10)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("wrong currency", func(t *testing.T) {
		_, err := h.bets.PlaceBet(h.ctx, service.PlaceBetRequest{
			User: "alice", Asset: testAsset, EpochID: 1000, Side: domain.SideUp, Amount: 10, Currency: "SOL",
		})
		assert.ErrorIs(t, err, domain.ErrWrongMint)
	})

	t.Run("unknown epoch", func(t *testing.T) {
		_, err := h.bets.PlaceBet(h.ctx, service.PlaceBetRequest{
			User: "alice", Asset: testAsset, EpochID: 999, Side: domain.SideUp, Amount: 10,
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("after cutoff before end", func(t *testing.T) {
		h.clock.Set(genesis + epochLen - cutoffSecs)
		err := h.bet("alice", domain.SideUp, 10)
		assert.ErrorIs(t, err, domain.ErrBettingClosed)
		h.clock.Set(genesis + 10)
	})

	t.Run("paused wins over everything", func(t *testing.T) {
		require.NoError(t, h.admin.SetPaused(h.ctx, "admin", true))
		err := h.bet("alice", domain.SideUp, 0)
		assert.ErrorIs(t, err, domain.ErrPaused)
		require.NoError(t, h.admin.SetPaused(h.ctx, "admin", false))
	})

	t.Run("locked epoch", func(t *testing.T) {
		h.clock.Set(genesis + epochLen - cutoffSecs)
		_, err := h.epochs.LockEpoch(h.ctx, testAsset, 1000)
		require.NoError(t, err)
		h.clock.Set(genesis + 10)
		err = h.bet("alice", domain.SideUp, 10)
		assert.ErrorIs(t, err, domain.ErrInvalidEpochStatus)
	})

	assert.Equal(t, uint64(100), h.userBalance("alice"))
	assert.Zero(t, h.escrow())
	assert.Zero(t, h.events.count(domain.EventBetPlaced))
}

func TestOneBetPerUserPerEpoch(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 100)
	h.open()

	require.NoError(t, h.bet("alice", domain.SideUp, 10))
	err := h.bet("alice", domain.SideDown, 20)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	e, err := h.ledger.GetEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), e.SumUp)
	assert.Zero(t, e.SumDown)
	assert.Equal(t, uint64(90), h.userBalance("alice"))
}

func TestPoolOverflowLeavesSumsUnchanged(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("whale", math.MaxUint64-10)
	h.fund("minnow", 20)
	h.open()

	require.NoError(t, h.bet("whale", domain.SideUp, math.MaxUint64-10))
	err := h.bet("minnow", domain.SideUp, 20)
	assert.ErrorIs(t, err, domain.ErrOverflow)

	e, err := h.ledger.GetEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64-10), e.SumUp)
	assert.Equal(t, uint64(20), h.userBalance("minnow"))
	_, err = h.ledger.GetBet(h.ctx, "minnow", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockEpoch(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 50)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideDown, 50))

	_, err := h.epochs.LockEpoch(h.ctx, testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrNotYetCutoff)

	h.clock.Set(genesis + epochLen - cutoffSecs)
	first, err := h.epochs.LockEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLocked, first.Status)

	second, err := h.epochs.LockEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.events.count(domain.EventEpochLocked))

	var payload domain.EpochLockedPayload
	for _, ev := range h.events.events {
		if ev.Type == domain.EventEpochLocked {
			require.NoError(t, jsonUnmarshal(ev.Payload, &payload))
		}
	}
	assert.Equal(t, uint64(50), payload.SumDown)
}

func TestCloseEpochIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.SettleTip = 5
	cfg.TipCurrency = "SOL"
	h := newHarness(t, cfg, service.OutcomeStartVsEnd)
	require.NoError(t, h.admin.Deposit(h.ctx, "admin", domain.ReserveAccount(testAsset, "SOL"), 100))
	h.fund("alice", 100)
	h.fund("bob", 100)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 100))
	require.NoError(t, h.bet("bob", domain.SideDown, 100))

	first, err := h.closeWith(100, 90)
	require.NoError(t, err)
	assert.Equal(t, domain.WinningDown, first.WinningSide)
	eventsAfterFirst := len(h.events.types())
	treasury := h.treasury()
	tip := h.balance(domain.UserAccount("keeper", "SOL"))
	assert.Equal(t, uint64(5), tip)

	second, err := h.closeWith(100, 200)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, h.events.types(), eventsAfterFirst)
	assert.Equal(t, treasury, h.treasury())
	assert.Equal(t, tip, h.balance(domain.UserAccount("keeper", "SOL")))
}

func TestCloseEpochBeforeEnd(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.open()
	h.clock.Set(genesis + epochLen - 1)
	_, err := h.settlement.CloseEpoch(h.ctx, service.CloseEpochRequest{Asset: testAsset, EpochID: 1000})
	assert.ErrorIs(t, err, domain.ErrNotYetEnded)
}

func TestCloseEpochOracleMismatch(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.open()
	h.clock.Set(genesis + epochLen)
	_, err := h.settlement.CloseEpoch(h.ctx, service.CloseEpochRequest{
		Asset: testAsset, EpochID: 1000, OracleRef: "0xdeadbeef",
	})
	assert.ErrorIs(t, err, domain.ErrOracleAccountMismatch)
}

func TestCloseEpochTransientOracleError(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.open()
	h.oracle.err = errors.New("connection refused")
	h.clock.Set(genesis + epochLen)

	_, err := h.settlement.CloseEpoch(h.ctx, service.CloseEpochRequest{Asset: testAsset, EpochID: 1000})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidPrice)

	e, err := h.ledger.GetEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, e.Status)
}

func TestInvalidOracleMakesEpochRefundable(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 100)
	h.fund("bob", 100)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 60))
	require.NoError(t, h.bet("bob", domain.SideDown, 40))

	h.clock.Set(genesis + epochLen)
	e, err := h.settlement.CloseEpoch(h.ctx, service.CloseEpochRequest{Asset: testAsset, EpochID: 1000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, e.Status)
	assert.Equal(t, domain.WinningNone, e.WinningSide)
	assert.Zero(t, h.treasury())
	assert.Equal(t, 1, h.events.count(domain.EventEpochInvalid))

	_, err = h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrEpochInvalid)
	assert.ErrorIs(t, err, domain.ErrInvalidEpochStatus)

	_, err = h.epochs.LockEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	e, err = h.ledger.GetEpoch(h.ctx, testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, e.Status)

	bet, err := h.claims.Refund(h.ctx, "alice", testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), bet.Paid)
	assert.Equal(t, uint64(100), h.userBalance("alice"))

	_, err = h.claims.Refund(h.ctx, "alice", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	_, err = h.claims.Refund(h.ctx, "bob", testAsset, 1000)
	require.NoError(t, err)
	assert.Zero(t, h.escrow())
}

func TestTieSettlesWithoutWinner(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 100)
	h.fund("bob", 100)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 100))
	require.NoError(t, h.bet("bob", domain.SideDown, 100))

	// 1.00 at expo -2 equals 1.0000 at expo -4.
	h.oracle.set(genesis, 100, -2)
	h.oracle.set(genesis+epochLen, 10_000, -4)
	h.clock.Set(genesis + epochLen)
	e, err := h.settlement.CloseEpoch(h.ctx, service.CloseEpochRequest{Asset: testAsset, EpochID: 1000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettled, e.Status)
	assert.Equal(t, domain.WinningNone, e.WinningSide)
	assert.Zero(t, e.FeeAmount)
	assert.Equal(t, uint64(200), e.NetPool)

	_, err = h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrNotWinner)

	_, err = h.claims.Refund(h.ctx, "bob", testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), h.userBalance("bob"))
}

func TestRefundRejectedForDecidedEpoch(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 100)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 100))

	_, err := h.claims.Refund(h.ctx, "alice", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrInvalidEpochStatus)

	_, err = h.closeWith(100, 101)
	require.NoError(t, err)
	_, err = h.claims.Refund(h.ctx, "alice", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrInvalidEpochStatus)
}

func TestClaimExactlyOnce(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 100)
	h.fund("bob", 100)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 100))
	require.NoError(t, h.bet("bob", domain.SideDown, 100))

	_, err := h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrInvalidEpochStatus)

	_, err = h.closeWith(100, 120)
	require.NoError(t, err)

	bet, err := h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(196), bet.Paid)
	balance := h.userBalance("alice")

	_, err = h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, balance, h.userBalance("alice"))
	assert.Equal(t, 1, h.events.count(domain.EventClaimed))

	_, err = h.claims.Claim(h.ctx, "carol", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClaimUsesSettlementSnapshot(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 600)
	h.fund("bob", 400)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 600))
	require.NoError(t, h.bet("bob", domain.SideDown, 400))
	_, err := h.closeWith(100, 120)
	require.NoError(t, err)

	require.NoError(t, h.admin.SetFeeBps(h.ctx, "admin", 5_000))

	bet, err := h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(980), bet.Paid)
}

func TestTipSkippedWhenReserveIsShort(t *testing.T) {
	cfg := testConfig()
	cfg.SettleTip = 50
	cfg.TipCurrency = "SOL"
	h := newHarness(t, cfg, service.OutcomeStartVsEnd)
	require.NoError(t, h.admin.Deposit(h.ctx, "admin", domain.ReserveAccount(testAsset, "SOL"), 10))
	h.fund("alice", 100)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 100))

	e, err := h.closeWith(100, 110)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettled, e.Status)
	assert.Equal(t, 1, h.events.count(domain.EventTipSkipped))
	assert.Zero(t, h.balance(domain.UserAccount("keeper", "SOL")))
	assert.Equal(t, uint64(10), h.balance(domain.ReserveAccount(testAsset, "SOL")))

	var payload domain.TipSkippedPayload
	for _, ev := range h.events.events {
		if ev.Type == domain.EventTipSkipped {
			require.NoError(t, jsonUnmarshal(ev.Payload, &payload))
		}
	}
	assert.Equal(t, "keeper", payload.Recipient)
	assert.Equal(t, uint64(50), payload.Tip)
	assert.Equal(t, uint64(10), payload.Available)
}

func TestTipComesFromReserveNotEscrow(t *testing.T) {
	cfg := testConfig()
	cfg.SettleTip = 5
	cfg.TipCurrency = testCurrency
	h := newHarness(t, cfg, service.OutcomeStartVsEnd)
	require.NoError(t, h.admin.Deposit(h.ctx, "admin", domain.ReserveAccount(testAsset, testCurrency), 20))
	h.fund("alice", 600)
	h.fund("bob", 400)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 600))
	require.NoError(t, h.bet("bob", domain.SideDown, 400))

	e, err := h.closeWith(100, 110)
	require.NoError(t, err)
	assert.Equal(t, uint64(980), e.NetPool)
	assert.Equal(t, uint64(5), h.balance(domain.UserAccount("keeper", testCurrency)))
	assert.Equal(t, uint64(15), h.balance(domain.ReserveAccount(testAsset, testCurrency)))
	assert.Equal(t, uint64(980), h.escrow(), "stakes minus fee only")
	assert.Zero(t, h.events.count(domain.EventTipSkipped))

	// The sole winner takes the whole net pool.
	_, err = h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(980), h.userBalance("alice"))
	assert.Zero(t, h.escrow())
}

func TestFullFeeLeavesNothingToClaim(t *testing.T) {
	cfg := testConfig()
	cfg.FeeBps = 10_000
	h := newHarness(t, cfg, service.OutcomeStartVsEnd)
	h.fund("alice", 300)
	h.fund("bob", 200)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 300))
	require.NoError(t, h.bet("bob", domain.SideDown, 200))

	e, err := h.closeWith(100, 110)
	require.NoError(t, err)
	assert.Equal(t, domain.WinningUp, e.WinningSide)
	assert.Equal(t, uint64(500), e.FeeAmount)
	assert.Zero(t, e.NetPool)
	assert.Equal(t, uint64(500), h.treasury())
	assert.Zero(t, h.escrow())

	_, err = h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	require.ErrorIs(t, err, domain.ErrZeroWinningPool)
	assert.Zero(t, h.userBalance("alice"))
	assert.Zero(t, h.events.count(domain.EventClaimed))

	b, err := h.ledger.GetBet(h.ctx, "alice", testAsset, 1000)
	require.NoError(t, err)
	assert.False(t, b.Claimed, "a failed claim writes nothing")
}

func TestOneSidedPoolStillPaysFee(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 1_000)
	h.open()
	require.NoError(t, h.bet("alice", domain.SideUp, 1_000))

	e, err := h.closeWith(100, 90)
	require.NoError(t, err)
	assert.Equal(t, domain.WinningDown, e.WinningSide)
	assert.Equal(t, uint64(20), h.treasury())
	assert.Equal(t, uint64(980), h.escrow())

	_, err = h.claims.Claim(h.ctx, "alice", testAsset, 1000)
	assert.ErrorIs(t, err, domain.ErrNotWinner)
}

func TestSignRule(t *testing.T) {
	tests := []struct {
		name   string
		price  int64
		status domain.EpochStatus
		winner domain.WinningSide
	}{
		{"positive", 5, domain.StatusSettled, domain.WinningUp},
		{"negative", -5, domain.StatusSettled, domain.WinningDown},
		{"zero", 0, domain.StatusInvalid, domain.WinningNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig(), service.OutcomeSign)
			h.open()
			h.oracle.set(genesis+epochLen, tt.price, 0)
			h.clock.Set(genesis + epochLen)
			e, err := h.settlement.CloseEpoch(h.ctx, service.CloseEpochRequest{Asset: testAsset, EpochID: 1000})
			require.NoError(t, err)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.winner, e.WinningSide)
		})
	}
}

func TestParseOutcomeRule(t *testing.T) {
	r, err := service.ParseOutcomeRule("")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeStartVsEnd, r)

	r, err = service.ParseOutcomeRule(" SIGN ")
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSign, r)

	_, err = service.ParseOutcomeRule("median")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestEventsAreSequencedAndOnlyCommittedOnesDelivered(t *testing.T) {
	h := newHarness(t, testConfig(), service.OutcomeStartVsEnd)
	h.fund("alice", 10)
	h.open()
	_ = h.bet("alice", domain.SideUp, 100)
	require.NoError(t, h.bet("alice", domain.SideUp, 10))

	stored, err := h.ledger.Events(h.ctx, 0, 100)
	require.NoError(t, err)
	require.Len(t, stored, len(h.events.events))
	for i, ev := range stored {
		assert.Equal(t, h.events.events[i].Seq, ev.Seq)
		if i > 0 {
			assert.Greater(t, ev.Seq, stored[i-1].Seq)
		}
	}
	assert.Equal(t, 1, h.events.count(domain.EventBetPlaced))
}
