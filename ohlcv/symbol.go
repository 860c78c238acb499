package ohlcv

import (
	"fmt"
	"strings"
)

// Symbol is a short alphabetic equity identifier, stored uppercased.
type Symbol string

const maxSymbolLen = 10

// NewSymbol validates and uppercases a raw ticker string.
func NewSymbol(raw string) (Symbol, error) {
	if raw == "" {
		return "", fmt.Errorf("symbol must not be empty: %w", ErrDomainViolation)
	}
	if len(raw) > maxSymbolLen {
		return "", fmt.Errorf("symbol %q exceeds %d characters: %w", raw, maxSymbolLen, ErrDomainViolation)
	}
	for _, r := range raw {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return "", fmt.Errorf("symbol %q contains non-alphabetic character %q: %w", raw, r, ErrDomainViolation)
		}
	}
	return Symbol(strings.ToUpper(raw)), nil
}

// MustSymbol is for tests and compile-time-known symbols.
func MustSymbol(raw string) Symbol {
	var s, err = NewSymbol(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Symbol) String() string { return string(s) }
