package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// MarketReader is the read side of the ledger used by public endpoints.
type MarketReader interface {
	GetConfig(ctx context.Context) (domain.ProtocolConfig, error)
	GetAsset(ctx context.Context, symbol string) (domain.AssetConfig, error)
	ListAssets(ctx context.Context) ([]domain.AssetConfig, error)
	GetEpoch(ctx context.Context, asset string, id uint64) (domain.Epoch, error)
	ListEpochs(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Epoch, error)
	ListEpochBets(ctx context.Context, asset string, epochID uint64) ([]domain.Bet, error)
	Events(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error)
}

// ArchiveReader reads epochs back from cold storage.
type ArchiveReader interface {
	ArchivedEpoch(ctx context.Context, asset string, epochID uint64) (domain.Epoch, []domain.Bet, error)
	ArchivedEpochIDs(ctx context.Context, asset string) ([]uint64, error)
}

// MarketHandler serves the public, read-only market endpoints.
type MarketHandler struct {
	reader  MarketReader
	archive ArchiveReader // nil when archiving is disabled
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(reader MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{reader: reader, logger: logHandler(logger, "market")}
}

// WithArchive makes epoch reads fall back to archive when the ledger no
// longer has the epoch.
func (h *MarketHandler) WithArchive(archive ArchiveReader) *MarketHandler {
	h.archive = archive
	return h
}

// loadEpoch reads an epoch from the ledger, then from the archive. bets is
// non-nil only for archived epochs.
func (h *MarketHandler) loadEpoch(ctx context.Context, symbol string, id uint64) (domain.Epoch, []domain.Bet, bool, error) {
	e, err := h.reader.GetEpoch(ctx, symbol, id)
	if err == nil || h.archive == nil || !errors.Is(err, domain.ErrNotFound) {
		return e, nil, false, err
	}
	archived, bets, aerr := h.archive.ArchivedEpoch(ctx, symbol, id)
	if aerr != nil {
		if !errors.Is(aerr, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "archive read failed",
				slog.String("asset", symbol),
				slog.Uint64("epoch_id", id),
				slog.String("error", aerr.Error()),
			)
		}
		return domain.Epoch{}, nil, false, err
	}
	return archived, bets, true, nil
}

// epochView adds human-readable prices to an epoch.
type epochView struct {
	domain.Epoch
	StartPriceDisplay  string `json:"start_price_display,omitempty"`
	SettlePriceDisplay string `json:"settle_price_display,omitempty"`
	TotalPool          string `json:"total_pool"`
	Archived           bool   `json:"archived,omitempty"`
}

func newEpochView(e domain.Epoch) epochView {
	v := epochView{
		Epoch:     e,
		TotalPool: decimal.NewFromUint64(e.SumUp).Add(decimal.NewFromUint64(e.SumDown)).String(),
	}
	if e.StartPrice != 0 {
		v.StartPriceDisplay = decimal.New(e.StartPrice, e.StartExpo).String()
	}
	if e.SettlePrice != 0 {
		v.SettlePriceDisplay = decimal.New(e.SettlePrice, e.SettleExpo).String()
	}
	return v
}

func epochViews(epochs []domain.Epoch) []epochView {
	out := make([]epochView, len(epochs))
	for i, e := range epochs {
		out[i] = newEpochView(e)
	}
	return out
}

// GetConfig returns the protocol config.
// GET /api/config
func (h *MarketHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.reader.GetConfig(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "get config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ListAssets returns every registered asset.
// GET /api/assets
func (h *MarketHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.reader.ListAssets(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list assets", err)
		return
	}
	if assets == nil {
		assets = []domain.AssetConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
}

// ListEpochs returns an asset's epochs, newest first.
// GET /api/assets/{symbol}/epochs?limit=50&offset=0
func (h *MarketHandler) ListEpochs(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if _, err := h.reader.GetAsset(r.Context(), symbol); err != nil {
		writeDomainError(w, r, h.logger, "list epochs", err)
		return
	}
	epochs, err := h.reader.ListEpochs(r.Context(), symbol, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list epochs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"epochs": epochViews(epochs)})
}

// GetEpoch returns one epoch.
// GET /api/assets/{symbol}/epochs/{id}
func (h *MarketHandler) GetEpoch(w http.ResponseWriter, r *http.Request) {
	symbol, id, err := epochRef(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "get epoch", err)
		return
	}
	e, _, archived, err := h.loadEpoch(r.Context(), symbol, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get epoch", err)
		return
	}
	v := newEpochView(e)
	v.Archived = archived
	writeJSON(w, http.StatusOK, v)
}

// ListEpochBets returns every bet of one epoch.
// GET /api/assets/{symbol}/epochs/{id}/bets
func (h *MarketHandler) ListEpochBets(w http.ResponseWriter, r *http.Request) {
	symbol, id, err := epochRef(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "list bets", err)
		return
	}
	_, bets, archived, err := h.loadEpoch(r.Context(), symbol, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "list bets", err)
		return
	}
	if !archived {
		bets, err = h.reader.ListEpochBets(r.Context(), symbol, id)
		if err != nil {
			writeDomainError(w, r, h.logger, "list bets", err)
			return
		}
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

// ListArchivedEpochs returns the ids of an asset's archived epochs, newest
// first.
// GET /api/assets/{symbol}/archive
func (h *MarketHandler) ListArchivedEpochs(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if h.archive == nil {
		writeDomainError(w, r, h.logger, "list archive", fmt.Errorf("%w: archive disabled", domain.ErrNotFound))
		return
	}
	if _, err := h.reader.GetAsset(r.Context(), symbol); err != nil {
		writeDomainError(w, r, h.logger, "list archive", err)
		return
	}
	ids, err := h.archive.ArchivedEpochIDs(r.Context(), symbol)
	if err != nil {
		writeDomainError(w, r, h.logger, "list archive", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"epoch_ids": ids})
}

// ListEvents returns committed events after a sequence number.
// GET /api/events?after=0&limit=100
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "after must be an unsigned integer")
			return
		}
		after = n
	}
	limit := parseListOpts(r).Limit
	if q.Get("limit") == "" {
		limit = 100
	}

	events, err := h.reader.Events(r.Context(), after, limit)
	if err != nil {
		writeDomainError(w, r, h.logger, "list events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "next": next})
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
