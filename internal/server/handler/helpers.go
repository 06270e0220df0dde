package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps err onto a status and its stable code. Unknown
// errors are logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	code := domain.ErrorCode(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, status, code, op+" failed")
		return
	}
	writeError(w, status, code, err.Error())
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrInvalidEpochStatus),
		errors.Is(err, domain.ErrBettingClosed),
		errors.Is(err, domain.ErrNotYetCutoff),
		errors.Is(err, domain.ErrNotYetEnded),
		errors.Is(err, domain.ErrPaused),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidBetAmount),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrWrongMint),
		errors.Is(err, domain.ErrAssetSymbolTooLong),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrOracleAccountMismatch),
		errors.Is(err, domain.ErrNotWinner),
		errors.Is(err, domain.ErrZeroWinningPool),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidSide):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidPrice):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON body, rejecting unknown fields. An empty body
// leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// epochRef reads {symbol} and {id} from the path.
func epochRef(r *http.Request) (string, uint64, error) {
	symbol := r.PathValue("symbol")
	if err := domain.ValidateSymbol(symbol); err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: epoch id %q", domain.ErrInvalidConfig, r.PathValue("id"))
	}
	return symbol, id, nil
}

// caller returns the verified wallet or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr, ok := middleware.WalletFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrorCode(domain.ErrUnauthorized), "wallet signature required")
	}
	return addr, ok
}

// canonicalOwner lowercases wallet addresses so they match verified
// identities. Other owners, such as asset symbols, pass through.
func canonicalOwner(owner string) string {
	if common.IsHexAddress(owner) && strings.HasPrefix(owner, "0x") {
		return strings.ToLower(owner)
	}
	return owner
}

func sameWallet(a, b string) bool {
	return strings.EqualFold(a, b)
}
