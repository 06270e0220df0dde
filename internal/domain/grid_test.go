package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGridEpochID(t *testing.T) {
	g := Grid{LengthSecs: 300, CutoffSecs: 30}

	var prev uint64
	for ts := int64(0); ts < 5000; ts += 7 {
		id := g.EpochID(ts)
		assert.Equal(t, uint64(ts/300), id)
		start, _, _ := g.Window(id)
		assert.Equal(t, int64(id)*300, start)
		assert.LessOrEqual(t, start, ts)
		assert.GreaterOrEqual(t, id, prev)
		prev = id
	}
}

func TestGridWindow(t *testing.T) {
	g := Grid{LengthSecs: 300, CutoffSecs: 30}
	start, cutoff, end := g.Window(5_700_000)
	assert.Equal(t, int64(1_710_000_000), start)
	assert.Equal(t, int64(1_710_000_270), cutoff)
	assert.Equal(t, int64(1_710_000_300), end)
	assert.Less(t, start, cutoff)
	assert.Less(t, cutoff, end)
}

func TestGridNewEpoch(t *testing.T) {
	g := Grid{LengthSecs: 60, CutoffSecs: 10}
	e := g.NewEpoch(AssetConfig{Symbol: "BTCUSD", Currency: "USDC"}, 125)

	assert.Equal(t, "BTCUSD", e.Asset)
	assert.Equal(t, uint64(2), e.ID)
	assert.Equal(t, int64(120), e.StartTs)
	assert.Equal(t, int64(170), e.CutoffTs)
	assert.Equal(t, int64(180), e.EndTs)
	assert.Equal(t, StatusOpen, e.Status)
	assert.Equal(t, WinningNone, e.WinningSide)
	assert.Equal(t, "USDC", e.Currency)
	assert.Zero(t, e.SumUp+e.SumDown)
}

func TestGridNegativeTimestamp(t *testing.T) {
	assert.Zero(t, Grid{LengthSecs: 60}.EpochID(-5))
}
