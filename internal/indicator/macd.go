package indicator

// MACD calculates the Moving Average Convergence Divergence: the MACD line
// (fast EMA − slow EMA), its EMA (signal line), and their difference
// (histogram). The MACD line is defined from bar slow-1; signal and
// histogram need a further signalPeriod-1 bars on top of that.
func MACD(closes []float64, fast, slow, signalPeriod int) (line, signal, hist []float64) {
	n := len(closes)
	line = undefined(n)
	signal = undefined(n)
	hist = undefined(n)
	if fast <= 0 || slow <= 0 || signalPeriod <= 0 || slow > n {
		return line, signal, hist
	}

	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	for i := slow - 1; i < n; i++ {
		line[i] = emaFast[i] - emaSlow[i]
	}

	// Signal line: EMA over the defined portion of the MACD line, seeded
	// with the mean of its first signalPeriod values.
	first := slow - 1
	seedEnd := first + signalPeriod - 1
	if seedEnd >= n {
		return line, signal, hist
	}
	sum := 0.0
	for i := first; i <= seedEnd; i++ {
		sum += line[i]
	}
	signal[seedEnd] = sum / float64(signalPeriod)
	k := 2.0 / float64(signalPeriod+1)
	for i := seedEnd + 1; i < n; i++ {
		signal[i] = line[i]*k + signal[i-1]*(1-k)
	}
	for i := seedEnd; i < n; i++ {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}
