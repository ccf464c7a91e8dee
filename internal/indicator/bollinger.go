package indicator

import "math"

// BollingerBands holds the five aligned output series of a Bollinger
// computation. All are undefined until the rolling window fills.
type BollingerBands struct {
	Mid       []float64 // moving average
	Upper     []float64 // mid + k*stddev
	Lower     []float64 // mid - k*stddev
	Bandwidth []float64 // (upper-lower)/mid
	PctB      []float64 // position of close within the band, clipped to [0,1]
}

// Bollinger calculates Bollinger Bands over a rolling window using the
// population standard deviation.
func Bollinger(closes []float64, period int, k float64) BollingerBands {
	n := len(closes)
	bb := BollingerBands{
		Mid:       undefined(n),
		Upper:     undefined(n),
		Lower:     undefined(n),
		Bandwidth: undefined(n),
		PctB:      undefined(n),
	}
	if period <= 0 || period > n {
		return bb
	}

	sum := 0.0
	sumSq := 0.0
	for i, c := range closes {
		sum += c
		sumSq += c * c
		if i >= period {
			old := closes[i-period]
			sum -= old
			sumSq -= old * old
		}
		if i < period-1 {
			continue
		}

		p := float64(period)
		mean := sum / p
		variance := sumSq/p - mean*mean
		if variance < 0 {
			variance = 0 // floating-point residue on constant windows
		}
		std := math.Sqrt(variance)

		upper := mean + k*std
		lower := mean - k*std
		bb.Mid[i] = mean
		bb.Upper[i] = upper
		bb.Lower[i] = lower
		if mean != 0 {
			bb.Bandwidth[i] = (upper - lower) / mean
		}
		bb.PctB[i] = pctB(c, lower, upper)
	}
	return bb
}

// pctB maps close into band position: 0 at the lower band, 1 at the upper,
// clipped outside. A zero-width band yields 0.5.
func pctB(close, lower, upper float64) float64 {
	width := upper - lower
	if width == 0 {
		return 0.5
	}
	v := (close - lower) / width
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
