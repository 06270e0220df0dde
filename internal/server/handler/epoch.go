package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/service"
)

// EpochService opens and locks epochs.
type EpochService interface {
	CreateEpoch(ctx context.Context, symbol string) (domain.Epoch, error)
	LockEpoch(ctx context.Context, symbol string, id uint64) (domain.Epoch, error)
}

// BetService accepts stakes.
type BetService interface {
	PlaceBet(ctx context.Context, req service.PlaceBetRequest) (domain.Bet, error)
}

// SettlementService closes epochs.
type SettlementService interface {
	CloseEpoch(ctx context.Context, req service.CloseEpochRequest) (domain.Epoch, error)
}

// ClaimService pays winners and refunds stakes.
type ClaimService interface {
	Claim(ctx context.Context, user, asset string, epochID uint64) (domain.Bet, error)
	Refund(ctx context.Context, user, asset string, epochID uint64) (domain.Bet, error)
}

// EpochHandler serves the wallet-signed epoch actions.
type EpochHandler struct {
	epochs     EpochService
	bets       BetService
	settlement SettlementService
	claims     ClaimService
	logger     *slog.Logger
}

// NewEpochHandler creates an EpochHandler.
func NewEpochHandler(epochs EpochService, bets BetService, settlement SettlementService, claims ClaimService, logger *slog.Logger) *EpochHandler {
	return &EpochHandler{
		epochs:     epochs,
		bets:       bets,
		settlement: settlement,
		claims:     claims,
		logger:     logHandler(logger, "epoch"),
	}
}

// CreateEpoch opens the current epoch of an asset.
// POST /api/assets/{symbol}/epochs
func (h *EpochHandler) CreateEpoch(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	e, err := h.epochs.CreateEpoch(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeDomainError(w, r, h.logger, "create epoch", err)
		return
	}
	writeJSON(w, http.StatusCreated, newEpochView(e))
}

type placeBetRequest struct {
	Side     string `json:"side"`
	Amount   uint64 `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

// PlaceBet stakes the caller's balance on one side.
// POST /api/assets/{symbol}/epochs/{id}/bets
func (h *EpochHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	symbol, id, err := epochRef(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}
	var body placeBetRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	side, err := domain.ParseSide(body.Side)
	if err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), service.PlaceBetRequest{
		User:     user,
		Asset:    symbol,
		EpochID:  id,
		Side:     side,
		Amount:   body.Amount,
		Currency: body.Currency,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// LockEpoch locks an epoch past its cutoff.
// POST /api/assets/{symbol}/epochs/{id}/lock
func (h *EpochHandler) LockEpoch(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	symbol, id, err := epochRef(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "lock epoch", err)
		return
	}
	e, err := h.epochs.LockEpoch(r.Context(), symbol, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "lock epoch", err)
		return
	}
	writeJSON(w, http.StatusOK, newEpochView(e))
}

type closeEpochRequest struct {
	OracleRef string `json:"oracle_ref,omitempty"`
}

// CloseEpoch settles an ended epoch. The signer receives the tip.
// POST /api/assets/{symbol}/epochs/{id}/close
func (h *EpochHandler) CloseEpoch(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	symbol, id, err := epochRef(r)
	if err != nil {
		writeDomainError(w, r, h.logger, "close epoch", err)
		return
	}
	var body closeEpochRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	e, err := h.settlement.CloseEpoch(r.Context(), service.CloseEpochRequest{
		Asset:     symbol,
		EpochID:   id,
		Caller:    user,
		OracleRef: body.OracleRef,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "close epoch", err)
		return
	}
	writeJSON(w, http.StatusOK, newEpochView(e))
}

// Claim pays out the caller's winning bet.
// POST /api/assets/{symbol}/epochs/{id}/claim
func (h *EpochHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "claim", h.claims.Claim)
}

// Refund returns the caller's stake from an Invalid or tied epoch.
// POST /api/assets/{symbol}/epochs/{id}/refund
func (h *EpochHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "refund", h.claims.Refund)
}

func (h *EpochHandler) settle(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string, string, uint64) (domain.Bet, error)) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	symbol, id, err := epochRef(r)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	bet, err := fn(r.Context(), user, symbol, id)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}
