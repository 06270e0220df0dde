package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

var (
	// ErrBadSignature means the signature is malformed or signed by
	// another wallet.
	ErrBadSignature = fmt.Errorf("%w: bad wallet signature", domain.ErrUnauthorized)
	// ErrStaleRequest means the signed timestamp is outside the allowed skew.
	ErrStaleRequest = fmt.Errorf("%w: stale wallet signature", domain.ErrUnauthorized)
	// ErrReplayedRequest means the exact signed request was already accepted.
	ErrReplayedRequest = fmt.Errorf("%w: replayed wallet signature", domain.ErrUnauthorized)
)

// DefaultMaxSkew is the accepted clock difference when none is configured.
const DefaultMaxSkew = 5 * time.Minute

// Verifier checks personal_sign request signatures.
type Verifier struct {
	maxSkew time.Duration
	now     func() time.Time
}

// NewVerifier creates a Verifier accepting timestamps within maxSkew of now.
func NewVerifier(maxSkew time.Duration, now func() time.Time) *Verifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{maxSkew: maxSkew, now: now}
}

// MaxSkew returns the accepted clock difference.
func (v *Verifier) MaxSkew() time.Duration {
	return v.maxSkew
}

// Verify recovers the signer of a request and checks it against the claimed
// address. It returns the canonical address of the signer.
func (v *Verifier) Verify(method, path, claimed, tsHeader, sigHex string, body []byte) (string, error) {
	if !common.IsHexAddress(claimed) {
		return "", fmt.Errorf("%w: invalid address %q", ErrBadSignature, claimed)
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid timestamp", ErrBadSignature)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew > v.maxSkew || skew < -v.maxSkew {
		return "", ErrStaleRequest
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		return "", fmt.Errorf("%w: signature must be 65 hex bytes", ErrBadSignature)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(RequestDigest(method, path, ts, body), sig)
	if err != nil {
		return "", errors.Join(ErrBadSignature, err)
	}

	signer := ethcrypto.PubkeyToAddress(*pub)
	if signer != common.HexToAddress(claimed) {
		return "", ErrBadSignature
	}
	return CanonicalAddress(signer), nil
}
