package reference

import (
	"fmt"
	"time"

	"github.com/calvan/enf-analysis/pkg/interpolation"
)

// Resample puts the series onto a regular grid of the given step, starting
// at the first timestamp truncated to the step. Samples within one step are
// averaged; empty steps are interpolated between their neighbors.
func Resample(s *Series, step time.Duration) (*Series, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive: got %v", step)
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("the series is empty")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start := s.Times[0].Truncate(step)
	count := int(s.Times[len(s.Times)-1].Sub(start)/step) + 1

	sums := make([]float64, count)
	counts := make([]int, count)
	for idx, t := range s.Times {
		bucket := int(t.Sub(start) / step)
		sums[bucket] += s.Values[idx]
		counts[bucket]++
	}

	result := &Series{
		Times:  make([]time.Time, count),
		Values: make([]float64, count),
	}
	missing := make([]bool, count)
	for bucket := range result.Values {
		result.Times[bucket] = start.Add(time.Duration(bucket) * step)
		if counts[bucket] == 0 {
			missing[bucket] = true
			continue
		}
		result.Values[bucket] = sums[bucket] / float64(counts[bucket])
	}
	interpolation.Fill(result.Values, missing, 0, interpolation.NewLinear())
	return result, nil
}
