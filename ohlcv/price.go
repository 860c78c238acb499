package ohlcv

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is a non-negative fixed-point decimal quantized to 4 fractional
// digits with half-up rounding.
type Price struct {
	d decimal.Decimal
}

const priceScale = 4

// NewPrice quantizes a decimal into a Price, rejecting negative values.
func NewPrice(d decimal.Decimal) (Price, error) {
	if d.IsNegative() {
		return Price{}, fmt.Errorf("price %s is negative: %w", d, ErrDomainViolation)
	}
	return Price{d.Round(priceScale)}, nil
}

// NewPriceFromFloat quantizes a float into a Price.
func NewPriceFromFloat(f float64) (Price, error) {
	return NewPrice(decimal.NewFromFloat(f))
}

// NewPriceFromString parses a decimal string into a Price.
func NewPriceFromString(s string) (Price, error) {
	var d, err = decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parsing price %q: %w", s, err)
	}
	return NewPrice(d)
}

// MustPrice is for tests and compile-time-known prices.
func MustPrice(s string) Price {
	var p, err = NewPriceFromString(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Add returns p + o.
func (p Price) Add(o Price) Price { return Price{p.d.Add(o.d)} }

// Sub returns p - o. The result may be negative and is not itself a
// valid Price for construction purposes; callers compare, they don't store it.
func (p Price) Sub(o Price) Price { return Price{p.d.Sub(o.d)} }

// Cmp returns -1, 0 or +1 comparing p against o.
func (p Price) Cmp(o Price) int { return p.d.Cmp(o.d) }

// IsPositive reports whether p > 0.
func (p Price) IsPositive() bool { return p.d.IsPositive() }

// Float64 returns the nearest float64 representation.
func (p Price) Float64() float64 { return p.d.InexactFloat64() }

// Decimal exposes the underlying quantized decimal.
func (p Price) Decimal() decimal.Decimal { return p.d }

func (p Price) String() string { return p.d.StringFixed(priceScale) }

// MaxPrice returns the larger of a and b.
func MaxPrice(a, b Price) Price {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// MinPrice returns the smaller of a and b.
func MinPrice(a, b Price) Price {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
