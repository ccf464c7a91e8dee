package indicator

// SMA calculates the Simple Moving Average over a rolling window.
// Maintains a running sum for O(1) work per bar.
func SMA(closes []float64, period int) []float64 {
	out := undefined(len(closes))
	if period <= 0 || period > len(closes) {
		return out
	}

	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA calculates the Exponential Moving Average, seeded with the SMA of the
// first period bars. Defined from bar period-1 onward.
func EMA(closes []float64, period int) []float64 {
	out := undefined(len(closes))
	if period <= 0 || period > len(closes) {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}
