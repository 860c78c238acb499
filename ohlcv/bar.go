package ohlcv

import (
	"fmt"

	"github.com/google/uuid"
)

// Bar is one OHLCV observation over a time bucket. Identity is a UUID;
// the OHLC relationship is checked at construction and never again.
type Bar struct {
	ID         uuid.UUID
	Symbol     Symbol
	Timestamp  Timestamp
	Open       Price
	High       Price
	Low        Price
	Close      Price
	Volume     Volume
	TradeCount *int32
	VWAP       *Price
}

// NewBar constructs a Bar, enforcing high >= max(open, close, low),
// low <= min(open, close, high), all prices > 0 and volume >= 0.
func NewBar(symbol Symbol, ts Timestamp, open, high, low, close Price, volume Volume) (*Bar, error) {
	for _, p := range []struct {
		name string
		p    Price
	}{{"open", open}, {"high", high}, {"low", low}, {"close", close}} {
		if !p.p.IsPositive() {
			return nil, fmt.Errorf("bar %s/%s: %s price %s is not positive: %w",
				symbol, ts, p.name, p.p, ErrDomainViolation)
		}
	}
	if high.Cmp(open) < 0 || high.Cmp(close) < 0 || high.Cmp(low) < 0 {
		return nil, fmt.Errorf("bar %s/%s: high %s below open/close/low: %w",
			symbol, ts, high, ErrDomainViolation)
	}
	if low.Cmp(open) > 0 || low.Cmp(close) > 0 || low.Cmp(high) > 0 {
		return nil, fmt.Errorf("bar %s/%s: low %s above open/close/high: %w",
			symbol, ts, low, ErrDomainViolation)
	}
	if volume < 0 {
		return nil, fmt.Errorf("bar %s/%s: negative volume %d: %w",
			symbol, ts, volume, ErrDomainViolation)
	}
	return &Bar{
		ID:        uuid.New(),
		Symbol:    symbol,
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}, nil
}

// Equivalent reports whether two bars carry the same observation,
// ignoring identity. Used to allow exact-duplicate deduplication.
func (b *Bar) Equivalent(o *Bar) bool {
	return b.Symbol == o.Symbol &&
		b.Timestamp.Equal(o.Timestamp) &&
		b.Open.Cmp(o.Open) == 0 &&
		b.High.Cmp(o.High) == 0 &&
		b.Low.Cmp(o.Low) == 0 &&
		b.Close.Cmp(o.Close) == 0 &&
		b.Volume == o.Volume
}
