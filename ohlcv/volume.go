package ohlcv

import "fmt"

// Volume is a non-negative share count.
type Volume int64

// NewVolume rejects negative volumes.
func NewVolume(v int64) (Volume, error) {
	if v < 0 {
		return 0, fmt.Errorf("volume %d is negative: %w", v, ErrDomainViolation)
	}
	return Volume(v), nil
}

// Add returns v + o.
func (v Volume) Add(o Volume) Volume { return v + o }

// Cmp returns -1, 0 or +1 comparing v against o.
func (v Volume) Cmp(o Volume) int {
	switch {
	case v < o:
		return -1
	case v > o:
		return 1
	default:
		return 0
	}
}

func (v Volume) Int64() int64 { return int64(v) }
