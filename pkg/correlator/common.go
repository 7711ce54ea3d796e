package correlator

import (
	"math"

	"github.com/calvan/enf-analysis/pkg/enf"
)

// CheckLengths validates that the candidate fits into the reference.
func CheckLengths(candidate, reference []float64) error {
	if len(candidate) < 2 {
		return enf.InsufficientDataf("the candidate has %d values", len(candidate))
	}
	if len(reference) < len(candidate) {
		return enf.InsufficientDataf("the reference (%d values) is shorter than the candidate (%d values)", len(reference), len(candidate))
	}
	return nil
}

// Centered returns the candidate minus its mean and the square root of the
// sum of squares of the result. It fails if the candidate has no variance
// or contains NaN.
func Centered(candidate []float64) ([]float64, float64, error) {
	var mean float64
	for _, v := range candidate {
		if math.IsNaN(v) {
			return nil, 0, enf.InsufficientDataf("the candidate contains NaN")
		}
		mean += v
	}
	mean /= float64(len(candidate))

	centered := make([]float64, len(candidate))
	var ss float64
	for idx, v := range candidate {
		centered[idx] = v - mean
		ss += centered[idx] * centered[idx]
	}
	if ss == 0 {
		return nil, 0, enf.ErrNumericDegeneracy
	}
	return centered, math.Sqrt(ss), nil
}

// WindowPearson returns the Pearson correlation between the centered
// candidate (with the given norm) and window. It is NaN if the window has
// zero variance or contains NaN.
func WindowPearson(centered []float64, norm float64, window []float64) float64 {
	var mean float64
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))
	if math.IsNaN(mean) {
		return math.NaN()
	}

	var cov, ss float64
	for idx, v := range window {
		d := v - mean
		cov += centered[idx] * d
		ss += d * d
	}
	if ss == 0 {
		return math.NaN()
	}
	return cov / (norm * math.Sqrt(ss))
}

// ArgMax returns the index of the first maximum, skipping NaN values.
// It returns -1 if every value is NaN.
func ArgMax(values []float64) int {
	best := -1
	for idx, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > values[best] {
			best = idx
		}
	}
	return best
}
