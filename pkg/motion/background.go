package motion

import (
	"math"
)

const (
	// DefaultLearningRate is how fast the background follows
	// pixels classified as background.
	DefaultLearningRate = 0.05

	// DefaultReplaceRate is how fast foreground pixels are absorbed into
	// the background, so that objects that stopped moving fade out.
	DefaultReplaceRate = 0.01

	// DefaultSigmaThreshold is the deviation (in standard deviations)
	// above which a pixel is foreground.
	DefaultSigmaThreshold = 3.0

	// DefaultMinDeviation is the minimal absolute intensity deviation of
	// a foreground pixel, so that sensor noise on flat areas is ignored.
	DefaultMinDeviation = 15.0

	initialVariance = 25.0
	minVariance     = 4.0
)

// Background is an adaptive per-pixel Gaussian background model.
type Background struct {
	LearningRate   float64
	ReplaceRate    float64
	SigmaThreshold float64
	MinDeviation   float64

	mean     []float64
	variance []float64
}

func NewBackground() *Background {
	return &Background{
		LearningRate:   DefaultLearningRate,
		ReplaceRate:    DefaultReplaceRate,
		SigmaThreshold: DefaultSigmaThreshold,
		MinDeviation:   DefaultMinDeviation,
	}
}

// Apply classifies every value of the plane as foreground (true) or
// background and updates the model. The first call initializes the
// model and reports no foreground.
func (bg *Background) Apply(plane []float64) []bool {
	foreground := make([]bool, len(plane))
	if len(bg.mean) != len(plane) {
		bg.mean = make([]float64, len(plane))
		copy(bg.mean, plane)
		bg.variance = make([]float64, len(plane))
		for idx := range bg.variance {
			bg.variance[idx] = initialVariance
		}
		return foreground
	}

	for idx, v := range plane {
		diff := v - bg.mean[idx]
		deviation := math.Abs(diff)
		rate := bg.LearningRate
		if deviation > bg.MinDeviation && deviation > bg.SigmaThreshold*math.Sqrt(bg.variance[idx]) {
			foreground[idx] = true
			rate = bg.ReplaceRate
		} else {
			bg.variance[idx] = max(minVariance, (1-rate)*bg.variance[idx]+rate*diff*diff)
		}
		bg.mean[idx] += rate * diff
	}
	return foreground
}
