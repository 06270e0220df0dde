package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/store/badger"
)

type stubArchive struct {
	epochs map[uint64]domain.Epoch
	bets   map[uint64][]domain.Bet
	err    error
}

func (s *stubArchive) ArchivedEpoch(_ context.Context, _ string, id uint64) (domain.Epoch, []domain.Bet, error) {
	if s.err != nil {
		return domain.Epoch{}, nil, s.err
	}
	e, ok := s.epochs[id]
	if !ok {
		return domain.Epoch{}, nil, domain.ErrNotFound
	}
	return e, s.bets[id], nil
}

func (s *stubArchive) ArchivedEpochIDs(context.Context, string) ([]uint64, error) {
	ids := make([]uint64, 0, len(s.epochs))
	for id := range s.epochs {
		ids = append(ids, id)
	}
	return ids, nil
}

func newMarketMux(t *testing.T, archive ArchiveReader) *http.ServeMux {
	t.Helper()
	ledger, err := badger.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	ctx := context.Background()
	require.NoError(t, ledger.Atomically(ctx, func(tx domain.Tx) error {
		if err := tx.PutAsset(ctx, domain.AssetConfig{Symbol: "BTCUSD", OracleRef: "0xbtc", Currency: "USDC"}); err != nil {
			return err
		}
		return tx.CreateEpoch(ctx, domain.Epoch{Asset: "BTCUSD", ID: 20, Status: domain.StatusOpen, SumUp: 3})
	}))

	h := NewMarketHandler(ledger, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if archive != nil {
		h.WithArchive(archive)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/assets/{symbol}/epochs/{id}", h.GetEpoch)
	mux.HandleFunc("GET /api/assets/{symbol}/epochs/{id}/bets", h.ListEpochBets)
	mux.HandleFunc("GET /api/assets/{symbol}/archive", h.ListArchivedEpochs)
	return mux
}

func get(mux http.Handler, path string, out any) int {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	if out != nil {
		_ = json.Unmarshal(rec.Body.Bytes(), out)
	}
	return rec.Code
}

func TestGetEpochFallsBackToArchive(t *testing.T) {
	archive := &stubArchive{
		epochs: map[uint64]domain.Epoch{
			7: {Asset: "BTCUSD", ID: 7, Status: domain.StatusSettled, WinningSide: domain.WinningUp, SumUp: 10, SumDown: 5},
		},
		bets: map[uint64][]domain.Bet{
			7: {{User: "alice", Asset: "BTCUSD", EpochID: 7, Side: domain.SideUp, Stake: 10}},
		},
	}
	mux := newMarketMux(t, archive)

	var live epochView
	require.Equal(t, http.StatusOK, get(mux, "/api/assets/BTCUSD/epochs/20", &live))
	assert.False(t, live.Archived)
	assert.Equal(t, uint64(3), live.SumUp)

	var old epochView
	require.Equal(t, http.StatusOK, get(mux, "/api/assets/BTCUSD/epochs/7", &old))
	assert.True(t, old.Archived)
	assert.Equal(t, domain.StatusSettled, old.Status)
	assert.Equal(t, "15", old.TotalPool)

	var bets struct{ Bets []domain.Bet }
	require.Equal(t, http.StatusOK, get(mux, "/api/assets/BTCUSD/epochs/7/bets", &bets))
	require.Len(t, bets.Bets, 1)
	assert.Equal(t, "alice", bets.Bets[0].User)

	assert.Equal(t, http.StatusNotFound, get(mux, "/api/assets/BTCUSD/epochs/8", nil))

	var ids struct {
		EpochIDs []uint64 `json:"epoch_ids"`
	}
	require.Equal(t, http.StatusOK, get(mux, "/api/assets/BTCUSD/archive", &ids))
	assert.Equal(t, []uint64{7}, ids.EpochIDs)
	assert.Equal(t, http.StatusNotFound, get(mux, "/api/assets/DOGE/archive", nil))
}

func TestArchiveFailureKeepsLedgerError(t *testing.T) {
	mux := newMarketMux(t, &stubArchive{err: errors.New("s3 down")})
	assert.Equal(t, http.StatusNotFound, get(mux, "/api/assets/BTCUSD/epochs/7", nil))
	assert.Equal(t, http.StatusOK, get(mux, "/api/assets/BTCUSD/epochs/20", nil))
}

func TestArchiveDisabled(t *testing.T) {
	mux := newMarketMux(t, nil)
	assert.Equal(t, http.StatusNotFound, get(mux, "/api/assets/BTCUSD/epochs/7", nil))
	assert.Equal(t, http.StatusNotFound, get(mux, "/api/assets/BTCUSD/archive", nil))
}
