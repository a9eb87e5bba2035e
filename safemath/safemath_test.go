package safemath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castkeep/ledgergate/fault"
)

func TestAdd(t *testing.T) {
	got, err := Add(40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	_, err = Add(math.MaxUint64, 1)
	assert.True(t, fault.Is(err, fault.ArithmeticOverflow))

	got, err = Add(math.MaxUint64, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)
}

func TestSub(t *testing.T) {
	got, err := Sub(42, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), got)

	_, err = Sub(0, 1)
	assert.True(t, fault.Is(err, fault.ArithmeticUnderflow))

	got, err = Sub(7, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)
}

func TestMul(t *testing.T) {
	got, err := Mul(6, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)

	_, err = Mul(math.MaxUint64, 2)
	assert.True(t, fault.Is(err, fault.ArithmeticOverflow))

	got, err = Mul(math.MaxUint64, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)
}

func TestDiv(t *testing.T) {
	got, err := Div(42, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)

	_, err = Div(1, 0)
	assert.True(t, fault.Is(err, fault.DivisionByZero))
}

func TestAddInt64(t *testing.T) {
	got, err := AddInt64(-5, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), got)

	_, err = AddInt64(math.MaxInt64, 1)
	assert.True(t, fault.Is(err, fault.ArithmeticOverflow))

	_, err = AddInt64(math.MinInt64, -1)
	assert.True(t, fault.Is(err, fault.ArithmeticUnderflow))
}

func TestSubInt64(t *testing.T) {
	got, err := SubInt64(3, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), got)

	_, err = SubInt64(math.MinInt64, 1)
	assert.True(t, fault.Is(err, fault.ArithmeticUnderflow))

	_, err = SubInt64(math.MaxInt64, -1)
	assert.True(t, fault.Is(err, fault.ArithmeticOverflow))
}

func TestMulInt64(t *testing.T) {
	got, err := MulInt64(-6, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), got)

	got, err = MulInt64(0, math.MinInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	_, err = MulInt64(math.MaxInt64, 2)
	assert.True(t, fault.Is(err, fault.ArithmeticOverflow))

	_, err = MulInt64(math.MinInt64, -1)
	assert.True(t, fault.Is(err, fault.ArithmeticOverflow))
}
