package correlator

import (
	"context"
)

// Correlation is the result of sliding a candidate track over a longer
// reference series.
type Correlation struct {
	// Offset is the reference index where the best window starts.
	Offset int

	// Score is the Pearson correlation at Offset.
	Score float64

	// Scores holds the correlation of every offset in [0, N-L]; NaN where
	// undefined.
	Scores []float64
}

type Correlator interface {
	// Correlate computes the Pearson correlation between the candidate
	// and every window of the reference of the same length. Among equal
	// scores the lowest offset wins.
	Correlate(
		ctx context.Context,
		candidate []float64,
		reference []float64,
	) (*Correlation, error)
}

/* for easier copy&paste:

func () Correlate(
	ctx context.Context,
	candidate []float64,
	reference []float64,
) (*correlator.Correlation, error) {
}

*/
