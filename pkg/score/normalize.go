package score

import "math"

// Normalize rescales values to [0, 1] using min-max scaling over the finite
// values. Constant input (including a single value) carries no signal and maps
// to zeros. NaN and infinite values map to 0.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !finite(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	if lo >= hi {
		return out
	}

	span := hi - lo
	for i, v := range values {
		if finite(v) {
			out[i] = (v - lo) / span
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
