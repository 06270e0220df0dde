package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" UP ")
	require.NoError(t, err)
	assert.Equal(t, SideUp, s)

	s, err = ParseSide("down")
	require.NoError(t, err)
	assert.Equal(t, SideDown, s)

	_, err = ParseSide("sideways")
	assert.ErrorIs(t, err, ErrInvalidSide)
	assert.Equal(t, "InvalidSide", ErrorCode(err))
}

func TestWinningSideWins(t *testing.T) {
	assert.True(t, WinningUp.Wins(SideUp))
	assert.False(t, WinningUp.Wins(SideDown))
	assert.True(t, WinningDown.Wins(SideDown))
	assert.False(t, WinningNone.Wins(SideUp))
	assert.False(t, WinningNone.Wins(SideDown))
}

func TestProtocolConfigValidate(t *testing.T) {
	valid := ProtocolConfig{
		Admin:           "0xadmin",
		Treasury:        "0xtreasury",
		FeeBps:          200,
		CutoffSecs:      30,
		EpochLengthSecs: 300,
	}
	require.NoError(t, valid.Validate())

	over := valid
	over.FeeBps = 10_001
	assert.ErrorIs(t, over.Validate(), ErrInvalidConfig)

	badCutoff := valid
	badCutoff.CutoffSecs = 300
	assert.ErrorIs(t, badCutoff.Validate(), ErrInvalidConfig)

	tip := valid
	tip.SettleTip = 10
	assert.ErrorIs(t, tip.Validate(), ErrInvalidConfig)
	tip.TipCurrency = "SOL"
	assert.NoError(t, tip.Validate())
}

func TestValidateSymbol(t *testing.T) {
	assert.NoError(t, ValidateSymbol("BTCUSD"))
	assert.NoError(t, ValidateSymbol(strings.Repeat("A", MaxSymbolLen)))
	assert.ErrorIs(t, ValidateSymbol(strings.Repeat("A", MaxSymbolLen+1)), ErrAssetSymbolTooLong)
	assert.ErrorIs(t, ValidateSymbol(""), ErrInvalidConfig)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "EpochInvalid", ErrorCode(ErrEpochInvalid))
	assert.True(t, errors.Is(ErrEpochInvalid, ErrInvalidEpochStatus))
	assert.Equal(t, "InvalidEpochStatus", ErrorCode(fmt.Errorf("claim: %w", ErrInvalidEpochStatus)))
	assert.Equal(t, "BettingClosed", ErrorCode(fmt.Errorf("bet: %w", ErrBettingClosed)))
	assert.Equal(t, "Internal", ErrorCode(errors.New("boom")))
}
