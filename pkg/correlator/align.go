package correlator

import (
	"context"
	"fmt"
	"math"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// Align correlates the candidate against the reference and places the
// candidate, shifted by bias, at the best offset of a reference-sized
// series (NaN elsewhere).
func Align(
	ctx context.Context,
	c Correlator,
	candidate []float64,
	reference []float64,
	bias float64,
) (_ret *enf.AlignmentResult, _err error) {
	logger.Tracef(ctx, "Align")
	defer func() { logger.Tracef(ctx, "/Align: %v", _err) }()

	correlation, err := c.Correlate(ctx, candidate, reference)
	if err != nil {
		return nil, fmt.Errorf("unable to correlate: %w", err)
	}
	if correlation.Offset < 0 {
		return nil, fmt.Errorf("%w: no window of the reference has a defined correlation", enf.ErrNumericDegeneracy)
	}

	aligned := make([]float64, len(reference))
	for idx := range aligned {
		aligned[idx] = math.NaN()
	}
	for idx, v := range candidate {
		aligned[correlation.Offset+idx] = v + bias
	}

	result := &enf.AlignmentResult{
		Offset:       correlation.Offset,
		Score:        enf.Round4(correlation.Score),
		Correlations: correlation.Scores,
		Reference:    append([]float64(nil), reference...),
		Aligned:      aligned,
	}
	logger.Debugf(ctx, "alignment: %s", result)
	return result, nil
}
