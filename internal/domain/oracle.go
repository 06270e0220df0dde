package domain

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceReading is one oracle observation in mantissa/exponent form.
type PriceReading struct {
	FeedID      string `json:"feed_id"`
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// Decimal returns price * 10^expo.
func (p PriceReading) Decimal() decimal.Decimal {
	return decimal.New(p.Price, p.Expo)
}

// Oracle supplies settlement prices. PriceAt returns the reading that best
// represents the price at ts within the implementation's staleness window, or
// an error wrapping ErrInvalidPrice when no usable reading exists. Any other
// error is transient and the caller may retry.
type Oracle interface {
	PriceAt(ctx context.Context, ref string, ts int64) (PriceReading, error)
}

// NormalizeFeedID returns ref in lower case with a 0x prefix, the form used
// for cache keys and readings.
func NormalizeFeedID(ref string) string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	return "0x" + strings.TrimPrefix(ref, "0x")
}
