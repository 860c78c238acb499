package ohlcv

import "errors"

// ErrDomainViolation marks values that fail a financial-domain invariant:
// malformed symbols, negative prices, or bars whose OHLC relationship is
// inconsistent. Rows carrying such values are dropped, not retried.
var ErrDomainViolation = errors.New("domain violation")
