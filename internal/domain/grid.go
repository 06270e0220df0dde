package domain

// Grid maps wall-clock seconds onto fixed-length epochs.
type Grid struct {
	LengthSecs uint32
	CutoffSecs uint32
}

// EpochID returns floor(ts / length). Timestamps before the Unix epoch map to
// epoch 0.
func (g Grid) EpochID(ts int64) uint64 {
	if ts < 0 || g.LengthSecs == 0 {
		return 0
	}
	return uint64(ts) / uint64(g.LengthSecs)
}

// Window returns the start, cutoff and end timestamps of epoch id.
func (g Grid) Window(id uint64) (start, cutoff, end int64) {
	start = int64(id * uint64(g.LengthSecs))
	end = start + int64(g.LengthSecs)
	cutoff = end - int64(g.CutoffSecs)
	return start, cutoff, end
}

// NewEpoch builds the Open epoch record for the slot containing now.
func (g Grid) NewEpoch(asset AssetConfig, now int64) Epoch {
	id := g.EpochID(now)
	start, cutoff, end := g.Window(id)
	return Epoch{
		Asset:       asset.Symbol,
		ID:          id,
		StartTs:     start,
		CutoffTs:    cutoff,
		EndTs:       end,
		Status:      StatusOpen,
		WinningSide: WinningNone,
		Currency:    asset.Currency,
	}
}
