package ohlcv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testTs(t *testing.T) Timestamp {
	t.Helper()
	return NewTimestamp(time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC))
}

func TestBarConstruction(t *testing.T) {
	var symbol = MustSymbol("aapl")
	require.Equal(t, Symbol("AAPL"), symbol)

	var bar, err = NewBar(symbol, testTs(t),
		MustPrice("185.50"), MustPrice("186.00"), MustPrice("185.25"), MustPrice("185.75"), 1000)
	require.NoError(t, err)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", bar.ID.String())
	require.Equal(t, Volume(1000), bar.Volume)

	// Two constructions of the same observation have distinct identity
	// but are equivalent.
	other, err := NewBar(symbol, testTs(t),
		MustPrice("185.50"), MustPrice("186.00"), MustPrice("185.25"), MustPrice("185.75"), 1000)
	require.NoError(t, err)
	require.NotEqual(t, bar.ID, other.ID)
	require.True(t, bar.Equivalent(other))

	other.Volume = 1001
	require.False(t, bar.Equivalent(other))
}

func TestBarInvariants(t *testing.T) {
	var symbol = MustSymbol("AAPL")
	var cases = []struct {
		name                    string
		open, high, low, close_ string
		volume                  int64
	}{
		{"high below open", "186.00", "185.50", "185.00", "185.25", 100},
		{"high below close", "185.00", "185.50", "184.00", "186.00", 100},
		{"high below low", "185.00", "184.00", "185.00", "184.00", 100},
		{"low above open", "185.00", "186.00", "185.50", "186.00", 100},
		{"low above close", "186.00", "186.00", "185.50", "185.00", 100},
		{"zero open", "0", "186.00", "0", "185.00", 100},
		{"negative volume", "185.00", "186.00", "184.00", "185.00", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var _, err = NewBar(symbol, testTs(t),
				MustPrice(tc.open), MustPrice(tc.high), MustPrice(tc.low), MustPrice(tc.close_),
				Volume(tc.volume))
			require.ErrorIs(t, err, ErrDomainViolation)
		})
	}
}

func TestBarBoundaryEquality(t *testing.T) {
	// high == low == open == close is a legal (flat) bar.
	var bar, err = NewBar(MustSymbol("AAPL"), testTs(t),
		MustPrice("185.00"), MustPrice("185.00"), MustPrice("185.00"), MustPrice("185.00"), 0)
	require.NoError(t, err)
	require.Equal(t, Volume(0), bar.Volume)
}
