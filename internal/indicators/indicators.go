// Package indicators computes rolling technical columns over a price series.
// Every function returns a new slice aligned with its input; windows shorter
// than n at the start of the series use the rows available.
package indicators

// RollingMax returns the maximum of the last n values at each row.
func RollingMax(values []float64, n int) []float64 {
	return rolling(values, n, func(a, b float64) bool { return a > b })
}

// RollingMin returns the minimum of the last n values at each row.
func RollingMin(values []float64, n int) []float64 {
	return rolling(values, n, func(a, b float64) bool { return a < b })
}

func rolling(values []float64, n int, better func(a, b float64) bool) []float64 {
	out := make([]float64, len(values))
	if n < 1 {
		n = 1
	}
	for i := range values {
		start := max(0, i-n+1)
		best := values[start]
		for _, v := range values[start+1 : i+1] {
			if better(v, best) {
				best = v
			}
		}
		out[i] = best
	}
	return out
}

// SMA returns the simple moving average over the last n values.
func SMA(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	if n < 1 {
		n = 1
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		out[i] = sum / float64(min(i+1, n))
	}
	return out
}

// IsNDayHigh marks rows whose value equals the rolling n-row maximum.
func IsNDayHigh(values []float64, n int) []bool {
	highs := RollingMax(values, n)
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = v == highs[i]
	}
	return out
}

// BreakNDayHigh marks rows whose value exceeds the previous row's rolling
// n-row maximum. Row 0 never breaks.
func BreakNDayHigh(values []float64, n int) []bool {
	highs := RollingMax(values, n)
	out := make([]bool, len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] > highs[i-1]
	}
	return out
}

// BreakNDayLow marks rows whose value falls below the previous row's rolling
// n-row minimum. Row 0 never breaks.
func BreakNDayLow(values []float64, n int) []bool {
	lows := RollingMin(values, n)
	out := make([]bool, len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] < lows[i-1]
	}
	return out
}

// VolumeSurge marks rows whose volume exceeds factor times its n-row average.
func VolumeSurge(volumes []int64, n int, factor float64) []bool {
	vals := make([]float64, len(volumes))
	for i, v := range volumes {
		vals[i] = float64(v)
	}
	avg := SMA(vals, n)
	out := make([]bool, len(volumes))
	for i, v := range vals {
		out[i] = v > avg[i]*factor
	}
	return out
}

// MABullish marks rows where fast > mid > slow moving averages line up.
func MABullish(values []float64, fast, mid, slow int) []bool {
	f, m, s := SMA(values, fast), SMA(values, mid), SMA(values, slow)
	out := make([]bool, len(values))
	for i := range values {
		out[i] = f[i] > m[i] && m[i] > s[i]
	}
	return out
}

// MABearish marks rows where fast < mid < slow moving averages line up.
func MABearish(values []float64, fast, mid, slow int) []bool {
	f, m, s := SMA(values, fast), SMA(values, mid), SMA(values, slow)
	out := make([]bool, len(values))
	for i := range values {
		out[i] = f[i] < m[i] && m[i] < s[i]
	}
	return out
}
