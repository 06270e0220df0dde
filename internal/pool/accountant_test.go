package pool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

func TestSettleWorkedExample(t *testing.T) {
	s, err := Settle(600, 400, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), s.Total)
	assert.Equal(t, uint64(20), s.Fee)
	assert.Equal(t, uint64(980), s.NetPool)

	payout, err := Payout(120, s.NetPool, 600)
	require.NoError(t, err)
	assert.Equal(t, uint64(196), payout)
}

func TestFeeAmountFloors(t *testing.T) {
	tests := []struct {
		total uint64
		bps   uint16
		want  uint64
	}{
		{0, 200, 0},
		{49, 200, 0},
		{50, 200, 1},
		{999, 10_000, 999},
		{12345, 0, 0},
		{math.MaxUint64, 10_000, math.MaxUint64},
		{math.MaxUint64, 5_000, math.MaxUint64 / 2},
	}
	for _, tt := range tests {
		got, err := FeeAmount(tt.total, tt.bps)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "total=%d bps=%d", tt.total, tt.bps)
	}
}

func TestFeeAmountRejectsBpsAboveMax(t *testing.T) {
	_, err := FeeAmount(100, 10_001)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestNetPool(t *testing.T) {
	net, err := NetPool(1000, 250)
	require.NoError(t, err)
	assert.Equal(t, uint64(975), net)
}

func TestPayoutZeroWinningPool(t *testing.T) {
	got, err := Payout(100, 1000, 0)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestPayoutWideIntermediate(t *testing.T) {
	// stake*net overflows 64 bits but the quotient does not.
	stake := uint64(math.MaxUint64 / 2)
	got, err := Payout(stake, math.MaxUint64-1, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, stake-1, got)
}

func TestMulDivOverflow(t *testing.T) {
	_, err := MulDiv(math.MaxUint64, 2, 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)

	_, err = MulDiv(1, 1, 0)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestTotalOverflow(t *testing.T) {
	_, err := Total(math.MaxUint64, 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)

	_, err = Settle(math.MaxUint64, 1, 100)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestPayoutsNeverExceedNetPool(t *testing.T) {
	stakes := []uint64{7, 13, 29, 101, 3}
	var win uint64
	for _, s := range stakes {
		win += s
	}
	settlement, err := Settle(win, 977, 300)
	require.NoError(t, err)

	var paid uint64
	for _, s := range stakes {
		p, err := Payout(s, settlement.NetPool, win)
		require.NoError(t, err)
		paid += p
	}
	assert.LessOrEqual(t, paid, settlement.NetPool)
}
