package calc

import "math"

// GrowthRate returns the period-over-period change relative to |prior|.
func GrowthRate(current, prior float64) float64 {
	if prior == 0 {
		return 0
	}
	return (current - prior) / math.Abs(prior)
}

// CAGR returns the compound annual growth rate between two values.
// The second return is false when the rate is undefined (non-positive
// endpoints or zero years).
func CAGR(endingValue, beginningValue float64, years int) (float64, bool) {
	if beginningValue <= 0 || endingValue <= 0 || years <= 0 {
		return 0, false
	}
	return math.Pow(endingValue/beginningValue, 1.0/float64(years)) - 1, true
}

// SeriesCAGR derives CAGR from an oldest-first series.
func SeriesCAGR(series []float64) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	return CAGR(series[len(series)-1], series[0], len(series)-1)
}

// SafeDiv returns numerator/denominator and false when the denominator is zero.
func SafeDiv(numerator, denominator float64) (float64, bool) {
	if denominator == 0 {
		return 0, false
	}
	return numerator / denominator, true
}
