// Package indicator provides technical indicator calculations over price
// series.
//
// Every function maps an input close series to one or more output series of
// identical length, index-aligned with the input. Bars inside an indicator's
// warm-up period carry NaN ("undefined"), never zero or an extrapolated
// value. Consumers must check Defined before using a value; an undefined bar
// means "no signal possible here".
package indicator

import "math"

// Defined reports whether v holds a computed value rather than the
// undefined (warm-up) marker.
func Defined(v float64) bool { return !math.IsNaN(v) }

// undefined returns an all-NaN series of length n.
func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
