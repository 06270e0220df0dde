// Package pool holds the pari-mutuel arithmetic shared by settlement and
// claims. Every function is pure and fails with domain.ErrOverflow instead of
// wrapping.
package pool

import (
	"fmt"
	"math/bits"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

const bpsDenominator = 10_000

// MulDiv returns floor(a*b/d) using a 128-bit intermediate product. It fails
// with ErrOverflow when the quotient does not fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("pool: division by zero: %w", domain.ErrOverflow)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, domain.ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrOverflow
	}
	return sum, nil
}

// Total returns sumUp + sumDown.
func Total(sumUp, sumDown uint64) (uint64, error) {
	return Add(sumUp, sumDown)
}

// FeeAmount returns floor(total * feeBps / 10000).
func FeeAmount(total uint64, feeBps uint16) (uint64, error) {
	if feeBps > bpsDenominator {
		return 0, fmt.Errorf("pool: fee_bps %d: %w", feeBps, domain.ErrInvalidConfig)
	}
	return MulDiv(total, uint64(feeBps), bpsDenominator)
}

// NetPool returns total minus the fee.
func NetPool(total uint64, feeBps uint16) (uint64, error) {
	fee, err := FeeAmount(total, feeBps)
	if err != nil {
		return 0, err
	}
	return total - fee, nil
}

// Payout returns floor(stake * netPool / winningPool), or 0 when the winning
// pool is empty.
func Payout(stake, netPool, winningPool uint64) (uint64, error) {
	if winningPool == 0 {
		return 0, nil
	}
	return MulDiv(stake, netPool, winningPool)
}

// Settlement is the fee split of a closed pool.
type Settlement struct {
	Total   uint64
	Fee     uint64
	NetPool uint64
}

// Settle computes the fee split for the final pool sums.
func Settle(sumUp, sumDown uint64, feeBps uint16) (Settlement, error) {
	total, err := Total(sumUp, sumDown)
	if err != nil {
		return Settlement{}, err
	}
	fee, err := FeeAmount(total, feeBps)
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{Total: total, Fee: fee, NetPool: total - fee}, nil
}
