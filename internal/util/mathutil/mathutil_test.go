package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64ToUint32(t *testing.T) {
	v, err := Uint64ToUint32(math.MaxUint32)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), v)

	_, err = Uint64ToUint32(math.MaxUint32 + 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestUint64ToIndex(t *testing.T) {
	v, err := Uint64ToIndex(7, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)

	_, err = Uint64ToIndex(8, 8)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestInt64ToInt(t *testing.T) {
	v, err := Int64ToInt(42)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
