package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// AdminService performs admin-only operations. Authorization against the
// stored admin happens inside the service.
type AdminService interface {
	Initialize(ctx context.Context, cfg domain.ProtocolConfig) error
	SetAssetFeed(ctx context.Context, caller, symbol, oracleRef, currency string) (domain.AssetConfig, error)
	SetPaused(ctx context.Context, caller string, paused bool) error
	SetFeeBps(ctx context.Context, caller string, feeBps uint16) error
	Deposit(ctx context.Context, caller string, acct domain.Account, amount uint64) error
}

// AdminHandler serves /api/admin.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logHandler(logger, "admin")}
}

// Initialize writes the protocol config. The signer becomes the admin unless
// the body names one, in which case it must be the signer.
// POST /api/admin/initialize
func (h *AdminHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var cfg domain.ProtocolConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if cfg.Admin == "" {
		cfg.Admin = user
	}
	if !sameWallet(cfg.Admin, user) {
		writeError(w, http.StatusForbidden, domain.ErrorCode(domain.ErrUnauthorized), "admin must be the signer")
		return
	}
	cfg.Admin = user
	cfg.Paused = false
	if err := h.admin.Initialize(r.Context(), cfg); err != nil {
		writeDomainError(w, r, h.logger, "initialize", err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

type assetRequest struct {
	OracleRef string `json:"oracle_ref"`
	Currency  string `json:"currency"`
}

// SetAsset registers or updates an asset's oracle binding.
// PUT /api/admin/assets/{symbol}
func (h *AdminHandler) SetAsset(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var body assetRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	asset, err := h.admin.SetAssetFeed(r.Context(), user, r.PathValue("symbol"), body.OracleRef, body.Currency)
	if err != nil {
		writeDomainError(w, r, h.logger, "set asset", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// Pause stops betting.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Unpause resumes betting.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *AdminHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.admin.SetPaused(r.Context(), user, paused); err != nil {
		writeDomainError(w, r, h.logger, "set paused", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

type feeRequest struct {
	FeeBps uint16 `json:"fee_bps"`
}

// SetFee changes the fee applied to future settlements.
// PUT /api/admin/fee
func (h *AdminHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var body feeRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if err := h.admin.SetFeeBps(r.Context(), user, body.FeeBps); err != nil {
		writeDomainError(w, r, h.logger, "set fee", err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type depositRequest struct {
	Kind     domain.AccountKind `json:"kind"`
	Owner    string             `json:"owner"`
	Currency string             `json:"currency"`
	Amount   uint64             `json:"amount"`
}

// Deposit credits a user balance or an asset's tip reserve.
// POST /api/admin/deposits
func (h *AdminHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var body depositRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if body.Kind == "" {
		body.Kind = domain.AccountUser
	}
	acct := domain.Account{Kind: body.Kind, Owner: canonicalOwner(body.Owner), Currency: body.Currency}
	if err := h.admin.Deposit(r.Context(), user, acct, body.Amount); err != nil {
		writeDomainError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"account": acct, "deposited": body.Amount})
}
