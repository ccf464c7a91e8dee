package rule

import "quantengine/internal/indicator"

// CrossUp reports whether a crosses up through b at bar i:
// a[i-1] <= b[i-1] and a[i] > b[i]. False at bar 0 and whenever any of the
// four inputs is undefined.
func CrossUp(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}
	if !indicator.Defined(a[i-1]) || !indicator.Defined(b[i-1]) ||
		!indicator.Defined(a[i]) || !indicator.Defined(b[i]) {
		return false
	}
	return a[i-1] <= b[i-1] && a[i] > b[i]
}

// CrossDown is the symmetric counterpart of CrossUp:
// a[i-1] >= b[i-1] and a[i] < b[i].
func CrossDown(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}
	if !indicator.Defined(a[i-1]) || !indicator.Defined(b[i-1]) ||
		!indicator.Defined(a[i]) || !indicator.Defined(b[i]) {
		return false
	}
	return a[i-1] >= b[i-1] && a[i] < b[i]
}

// CrossUpLevel is CrossUp against a constant level.
func CrossUpLevel(a []float64, level float64, i int) bool {
	if i < 1 || i >= len(a) {
		return false
	}
	if !indicator.Defined(a[i-1]) || !indicator.Defined(a[i]) {
		return false
	}
	return a[i-1] <= level && a[i] > level
}

// CrossDownLevel is CrossDown against a constant level.
func CrossDownLevel(a []float64, level float64, i int) bool {
	if i < 1 || i >= len(a) {
		return false
	}
	if !indicator.Defined(a[i-1]) || !indicator.Defined(a[i]) {
		return false
	}
	return a[i-1] >= level && a[i] < level
}
