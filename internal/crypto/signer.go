package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Wallet request headers.
const (
	HeaderAddress   = "X-Wallet-Address"
	HeaderSignature = "X-Wallet-Signature"
	HeaderTimestamp = "X-Wallet-Timestamp"
)

// Signer signs API requests with a secp256k1 wallet key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the wallet identity in canonical form.
func (s *Signer) Address() string {
	return CanonicalAddress(s.address)
}

// SignRequest signs the request message and returns the hex signature with
// v in {27,28}, as personal_sign wallets produce it.
func (s *Signer) SignRequest(method, path string, ts int64, body []byte) (string, error) {
	sig, err := ethcrypto.Sign(RequestDigest(method, path, ts, body), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// Sign sets the wallet headers on req. body must be the exact bytes sent.
func (s *Signer) Sign(req *http.Request, ts int64, body []byte) error {
	sig, err := s.SignRequest(req.Method, req.URL.Path, ts, body)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, s.Address())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// RequestMessage is the text a wallet signs for one API request.
func RequestMessage(method, path string, ts int64, body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("updownbet request\n%s %s\n%d\n%x", strings.ToUpper(method), path, ts, sum)
}

// RequestDigest is the EIP-191 personal_sign hash of RequestMessage.
func RequestDigest(method, path string, ts int64, body []byte) []byte {
	return accounts.TextHash([]byte(RequestMessage(method, path, ts, body)))
}

// CanonicalAddress renders an address as lowercase 0x hex, the form used
// for user identities in the ledger.
func CanonicalAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}
