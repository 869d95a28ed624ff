// Package numeric holds the arithmetic primitives shared by the solver and the
// feed stages. Every ratio in the pipeline goes through SafeDiv so that a zero
// denominator means "no attributable flow" rather than NaN or Inf.
package numeric

import "math"

// SafeDiv returns a/b, or 0 when b is zero or the quotient is not finite.
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	q := a / b
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}

// SafeRecip returns 1/x, or 0 when x is zero.
func SafeRecip(x float64) float64 {
	return SafeDiv(1, x)
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// SumSq accumulates squared absolute errors.
type SumSq float64

// Add folds e into the accumulator.
func (s *SumSq) Add(e float64) { *s += SumSq(e * e) }

// Root returns the root-sum-square of everything added so far.
func (s SumSq) Root() float64 { return math.Sqrt(float64(s)) }

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
