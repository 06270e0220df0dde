package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// AccountReader lists a wallet's bets and balances.
type AccountReader interface {
	ListUserBets(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Bet, error)
	ListBalances(ctx context.Context, kind domain.AccountKind, owner string) ([]domain.Balance, error)
}

// AccountHandler serves the caller's own records.
type AccountHandler struct {
	reader AccountReader
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(reader AccountReader, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{reader: reader, logger: logHandler(logger, "account")}
}

// MyBets lists the caller's bets, newest first.
// GET /api/me/bets
func (h *AccountHandler) MyBets(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	bets, err := h.reader.ListUserBets(r.Context(), user, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list bets", err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "bets": bets})
}

// MyBalances lists the caller's balances in every currency.
// GET /api/me/balances
func (h *AccountHandler) MyBalances(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	balances, err := h.reader.ListBalances(r.Context(), domain.AccountUser, user)
	if err != nil {
		writeDomainError(w, r, h.logger, "list balances", err)
		return
	}
	if balances == nil {
		balances = []domain.Balance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "balances": balances})
}
