package analysis

import "math"

// SigmaMultiplier is the fixed band width, in standard deviations, of the anomaly rule.
const SigmaMultiplier = 2.0

// meanStd returns the arithmetic mean and the sample standard deviation (n-1).
// ok is false when fewer than two values are given; the mean is still valid for one value.
func meanStd(values []float64) (mean, std float64, ok bool) {
	n := len(values)
	if n == 0 {
		return math.NaN(), math.NaN(), false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, math.NaN(), false
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n-1)), true
}

// OutsideBand reports whether value lies strictly outside [mean-2*std, mean+2*std].
// With std == 0 only an exact match of the mean is inside the band.
func OutsideBand(value, mean, std float64) bool {
	return value > mean+SigmaMultiplier*std || value < mean-SigmaMultiplier*std
}

func ptr[T any](v T) *T {
	return &v
}
