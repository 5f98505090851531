package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundFloat rounds half away from zero to the given number of decimal places.
// NaN and infinities are returned unchanged.
func RoundFloat(val float64, places int32) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return val
	}
	return decimal.NewFromFloat(val).Round(places).InexactFloat64()
}

// AlmostEqual compares two floats with an absolute tolerance.
func AlmostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
