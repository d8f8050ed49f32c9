package mathutil

import (
	"errors"
	"fmt"
	"math"
)

var ErrOverflow = errors.New("value exceeds target type capacity")

func Uint64ToUint32(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("value %d overflows uint32: %w", v, ErrOverflow)
	}
	return uint32(v), nil
}

// Uint64ToIndex converts v to a derivation index below limit.
func Uint64ToIndex(v uint64, limit uint32) (uint32, error) {
	if v >= uint64(limit) {
		return 0, fmt.Errorf("index %d must be below %d: %w", v, limit, ErrOverflow)
	}
	return uint32(v), nil
}

func Int64ToInt(v int64) (int, error) {
	if v > math.MaxInt || v < math.MinInt {
		return 0, fmt.Errorf("value %d overflows int: %w", v, ErrOverflow)
	}
	return int(v), nil
}
