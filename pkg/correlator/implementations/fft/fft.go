// Package fft computes all sliding-window correlations at once: the
// cross products come from a single frequency-domain multiplication and
// the window statistics from prefix sums.
//
// Every score carries a rounding bound derived from the window statistics.
// Offsets whose bound reaches the best certain score are re-scored
// directly, so ties resolve exactly as in the direct scan.
package fft

import (
	"context"
	"fmt"
	"math"

	"github.com/calvan/enf-analysis/pkg/correlator"
	"github.com/facebookincubator/go-belt/tool/logger"
	dspfft "github.com/mjibson/go-dsp/fft"
)

const (
	// Tolerance is the least rounding bound of a score.
	Tolerance = 1e-9

	// errorSafety scales the first-order rounding estimates.
	errorSafety = 64

	// minWindowSumOfSquares is the least window sum of squares the prefix
	// sums are trusted with; smaller windows are scored directly.
	minWindowSumOfSquares = 1e-12
)

type Correlator struct{}

var _ correlator.Correlator = (*Correlator)(nil)

func New() *Correlator {
	return &Correlator{}
}

func (*Correlator) Correlate(
	ctx context.Context,
	candidate []float64,
	reference []float64,
) (_ret *correlator.Correlation, _err error) {
	logger.Tracef(ctx, "Correlate")
	defer func() { logger.Tracef(ctx, "/Correlate: %v", _err) }()

	if err := correlator.CheckLengths(candidate, reference); err != nil {
		return nil, err
	}
	centered, norm, err := correlator.Centered(candidate)
	if err != nil {
		return nil, fmt.Errorf("unable to normalize the candidate: %w", err)
	}

	length := len(candidate)
	count := len(reference) - length + 1

	// the correlation is shift-invariant; centering the reference keeps
	// the prefix sums well-conditioned
	var refMean float64
	nanPrefix := make([]int, len(reference)+1)
	for idx, v := range reference {
		nanPrefix[idx+1] = nanPrefix[idx]
		if math.IsNaN(v) {
			nanPrefix[idx+1]++
			continue
		}
		refMean += v
	}
	if valid := len(reference) - nanPrefix[len(reference)]; valid > 0 {
		refMean /= float64(valid)
	}
	shifted := make([]float64, len(reference))
	for idx, v := range reference {
		if math.IsNaN(v) {
			continue
		}
		shifted[idx] = v - refMean
	}

	n := 1
	for n < len(reference)+length-1 {
		n <<= 1
	}
	fref := make([]complex128, n)
	fcand := make([]complex128, n)
	for idx, v := range shifted {
		fref[idx] = complex(v, 0)
	}
	for idx, v := range centered {
		fcand[idx] = complex(v, 0)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	ffref := dspfft.FFT(fref)
	ffcand := dspfft.FFT(fcand)
	for idx := range ffref {
		ffref[idx] *= complex(real(ffcand[idx]), -imag(ffcand[idx]))
	}
	cross := dspfft.IFFT(ffref)

	sum := make([]float64, len(reference)+1)
	sumSq := make([]float64, len(reference)+1)
	for idx, v := range shifted {
		sum[idx+1] = sum[idx] + v
		sumSq[idx+1] = sumSq[idx] + v*v
	}

	log2n := math.Log2(float64(n))
	refNorm := math.Sqrt(sumSq[len(reference)])
	epsilon := math.Nextafter(1, 2) - 1

	scores := make([]float64, count)
	bounds := make([]float64, count)
	for offset := range scores {
		end := offset + length
		if nanPrefix[end] != nanPrefix[offset] {
			scores[offset] = math.NaN()
			continue
		}
		s := sum[end] - sum[offset]
		ss := sumSq[end] - sumSq[offset] - s*s/float64(length)
		windowSq := sumSq[end] - sumSq[offset]
		if ss <= max(minWindowSumOfSquares, errorSafety*epsilon*windowSq) {
			scores[offset] = correlator.WindowPearson(centered, norm, reference[offset:end])
			continue
		}
		scores[offset] = real(cross[offset]) / (norm * math.Sqrt(ss))
		bounds[offset] = scoreBound(epsilon, windowSq, ss, refNorm, log2n)
	}

	best := correlator.ArgMax(scores)
	if best < 0 {
		return &correlator.Correlation{Offset: -1, Scores: scores}, nil
	}

	// the best score that is certain despite the rounding
	threshold := math.Inf(-1)
	for offset, score := range scores {
		if !math.IsNaN(score) {
			threshold = max(threshold, score-bounds[offset])
		}
	}

	// resolve near-ties with the direct computation
	bestExact := math.Inf(-1)
	bestOffset := -1
	for offset, score := range scores {
		if math.IsNaN(score) || score+bounds[offset] < threshold {
			continue
		}
		exact := correlator.WindowPearson(centered, norm, reference[offset:offset+length])
		scores[offset] = exact
		if exact > bestExact {
			bestExact, bestOffset = exact, offset
		}
	}
	return &correlator.Correlation{
		Offset: bestOffset,
		Score:  bestExact,
		Scores: scores,
	}, nil
}

// scoreBound estimates the rounding error of a score computed from prefix
// sums and a frequency-domain cross product. The prefix sums lose
// precision relative to windowSq, the FFT relative to the norm of the
// whole reference.
func scoreBound(
	epsilon float64,
	windowSq float64,
	ss float64,
	refNorm float64,
	log2n float64,
) float64 {
	return Tolerance + errorSafety*epsilon*(windowSq/ss+log2n*refNorm/math.Sqrt(ss))
}
