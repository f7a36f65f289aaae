package utils

import "math"

// RoundFloat rounds a float64 to a specified number of decimal places.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// WithinTolerance reports whether two values agree within an absolute
// tolerance. This is the single comparison used by every reconciliation path;
// values are never compared with ==.
func WithinTolerance(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// Ptr returns a pointer to v. Null field values are represented as nil
// *float64 throughout, so this shows up anywhere a literal value is supplied.
func Ptr(v float64) *float64 {
	return &v
}
