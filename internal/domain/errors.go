package domain

import (
	"errors"
	"fmt"
)

// Market errors. Each one names the precondition an operation violated.
var (
	ErrBettingClosed         = errors.New("betting closed")
	ErrInvalidPrice          = errors.New("invalid oracle price")
	ErrNotWinner             = errors.New("bet is not on the winning side")
	ErrAlreadyClaimed        = errors.New("already claimed")
	ErrWrongMint             = errors.New("currency does not match epoch")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrNotYetCutoff          = errors.New("epoch has not reached cutoff")
	ErrNotYetEnded           = errors.New("epoch has not ended")
	ErrInvalidEpochStatus    = errors.New("invalid epoch status")
	ErrPaused                = errors.New("protocol paused")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidBetAmount      = errors.New("bet amount must be positive")
	ErrAssetSymbolTooLong    = errors.New("asset symbol too long")
	ErrEpochInvalid          = fmt.Errorf("%w: epoch invalid", ErrInvalidEpochStatus)
	ErrZeroWinningPool       = errors.New("winning pool is zero")
	ErrOracleAccountMismatch = errors.New("oracle reference does not match asset")
	ErrInvalidSide           = errors.New("side must be up or down")
)

// Infrastructure errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidConfig     = errors.New("invalid protocol config")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)

var errorCodes = []struct {
	err  error
	code string
}{
	// ErrEpochInvalid must be matched before ErrInvalidEpochStatus.
	{ErrEpochInvalid, "EpochInvalid"},
	{ErrBettingClosed, "BettingClosed"},
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrNotWinner, "NotWinner"},
	{ErrAlreadyClaimed, "AlreadyClaimed"},
	{ErrWrongMint, "WrongMint"},
	{ErrOverflow, "Overflow"},
	{ErrNotYetCutoff, "NotYetCutoff"},
	{ErrNotYetEnded, "NotYetEnded"},
	{ErrInvalidEpochStatus, "InvalidEpochStatus"},
	{ErrPaused, "Paused"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInvalidBetAmount, "InvalidBetAmount"},
	{ErrAssetSymbolTooLong, "AssetSymbolTooLong"},
	{ErrZeroWinningPool, "ZeroWinningPool"},
	{ErrOracleAccountMismatch, "OracleAccountMismatch"},
	{ErrInvalidSide, "InvalidSide"},
	{ErrNotFound, "NotFound"},
	{ErrAlreadyExists, "AlreadyExists"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidConfig, "InvalidConfig"},
	{ErrRateLimited, "RateLimited"},
	{ErrLockHeld, "LockHeld"},
}

// ErrorCode returns the stable code for a domain error, or "Internal" when err
// does not wrap any of them.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "Internal"
}
