package itchtypes

import "github.com/shopspring/decimal"

// Price4 is a wire price with four implicit fractional digits: the raw
// integer 1234567 represents 123.4567. All core arithmetic uses the raw
// uint32 — Decimal is a presentation-only conversion.
type Price4 uint32

// Price8 is analogous to Price4 with eight implicit fractional digits.
// Used only by the circuit-breaker (MWCB) messages.
type Price8 uint64

var price4Divisor = decimal.New(1, -4)
var price8Divisor = decimal.New(1, -8)

// Decimal renders the price as a base-10 decimal with four fractional
// digits. Never call this from book or decoder logic — it exists purely
// so an external consumer can format a value for display.
func (p Price4) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(p)).Mul(price4Divisor)
}

// Decimal renders the price as a base-10 decimal with eight fractional
// digits.
func (p Price8) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(p)).Mul(price8Divisor)
}

func (p Price4) String() string { return p.Decimal().StringFixed(4) }
func (p Price8) String() string { return p.Decimal().StringFixed(8) }
