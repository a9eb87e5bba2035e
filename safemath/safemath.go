// Package safemath provides overflow-checked arithmetic for ledger
// quantities.
//
// Business logic must route every balance and counter update through this
// package. Direct unchecked operators on financial quantities silently wrap,
// which turns an insufficient-funds condition into a near-max balance.
package safemath

import (
	"math"
	"math/bits"

	"github.com/castkeep/ledgergate/fault"
)

// Add returns a+b, failing with ArithmeticOverflow instead of wrapping.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fault.New(fault.ArithmeticOverflow, "add %d + %d overflows uint64", a, b)
	}
	return sum, nil
}

// Sub returns a-b, failing with ArithmeticUnderflow instead of wrapping.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fault.New(fault.ArithmeticUnderflow, "sub %d - %d underflows uint64", a, b)
	}
	return diff, nil
}

// Mul returns a*b, failing with ArithmeticOverflow instead of wrapping.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fault.New(fault.ArithmeticOverflow, "mul %d * %d overflows uint64", a, b)
	}
	return lo, nil
}

// Div returns a/b, failing with DivisionByZero when b is zero.
// Unsigned division cannot otherwise fail.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, fault.New(fault.DivisionByZero, "div %d / 0", a)
	}
	return a / b, nil
}

// AddInt64 returns a+b for signed quantities, checked in both directions.
func AddInt64(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, fault.New(fault.ArithmeticOverflow, "add %d + %d overflows int64", a, b)
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, fault.New(fault.ArithmeticUnderflow, "add %d + %d underflows int64", a, b)
	}
	return a + b, nil
}

// SubInt64 returns a-b for signed quantities, checked in both directions.
func SubInt64(a, b int64) (int64, error) {
	if b < 0 && a > math.MaxInt64+b {
		return 0, fault.New(fault.ArithmeticOverflow, "sub %d - %d overflows int64", a, b)
	}
	if b > 0 && a < math.MinInt64+b {
		return 0, fault.New(fault.ArithmeticUnderflow, "sub %d - %d underflows int64", a, b)
	}
	return a - b, nil
}

// MulInt64 returns a*b for signed quantities, checked via division.
func MulInt64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, fault.New(fault.ArithmeticOverflow, "mul %d * %d overflows int64", a, b)
	}
	return prod, nil
}
