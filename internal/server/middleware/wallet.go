package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/updownbet/internal/crypto"
	"github.com/alanyoungcy/updownbet/internal/domain"
)

// maxSignedBody bounds the request body read for signature checks.
const maxSignedBody = 1 << 20

type walletKey struct{}

// WalletFromContext returns the verified wallet address of the request.
func WalletFromContext(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(walletKey{}).(string)
	return addr, ok && addr != ""
}

// WithWallet stores a verified wallet address in ctx.
func WithWallet(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, walletKey{}, addr)
}

// SignatureVerifier recovers the wallet that signed a request.
type SignatureVerifier interface {
	Verify(method, path, claimed, tsHeader, sigHex string, body []byte) (string, error)
}

// Wallet returns middleware that requires a valid personal_sign signature
// over the request. The body is buffered and handed on unchanged. When guard
// is set, each signed write is accepted once; GET and HEAD may repeat.
func Wallet(v SignatureVerifier, guard domain.ReplayGuard, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "read body failed", "BadRequest")
				return
			}
			if len(body) > maxSignedBody {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", "BadRequest")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			addr, err := v.Verify(
				r.Method,
				r.URL.Path,
				r.Header.Get(crypto.HeaderAddress),
				r.Header.Get(crypto.HeaderTimestamp),
				r.Header.Get(crypto.HeaderSignature),
				body,
			)
			if err != nil {
				logger.DebugContext(r.Context(), "wallet signature rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				msg := "invalid wallet signature"
				if errors.Is(err, crypto.ErrStaleRequest) {
					msg = "stale wallet signature"
				}
				writeJSONError(w, http.StatusUnauthorized, msg, domain.ErrorCode(domain.ErrUnauthorized))
				return
			}
			if guard != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
				if !firstUse(w, r, guard, addr, body, logger) {
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithWallet(r.Context(), addr)))
		})
	}
}

// firstUse records the signed request with guard and writes the rejection
// when it was seen before. An unavailable guard fails closed.
func firstUse(w http.ResponseWriter, r *http.Request, guard domain.ReplayGuard, addr string, body []byte, logger *slog.Logger) bool {
	ts, err := strconv.ParseInt(r.Header.Get(crypto.HeaderTimestamp), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid wallet signature", domain.ErrorCode(domain.ErrUnauthorized))
		return false
	}
	first, err := guard.FirstUse(r.Context(), crypto.ReplayKey(addr, r.Method, r.URL.Path, ts, body))
	if err != nil {
		logger.ErrorContext(r.Context(), "replay guard unavailable",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSONError(w, http.StatusServiceUnavailable, "signature check unavailable", "Unavailable")
		return false
	}
	if !first {
		logger.WarnContext(r.Context(), "replayed wallet signature",
			slog.String("path", r.URL.Path),
			slog.String("wallet", addr),
		)
		writeJSONError(w, http.StatusUnauthorized, "replayed wallet signature", domain.ErrorCode(crypto.ErrReplayedRequest))
		return false
	}
	return true
}
