package interpolation

type linear struct{}

// NewLinear returns an interpolator that draws a straight line between
// the neighboring values, or holds the only available neighbor.
func NewLinear() Interpolator {
	return &linear{}
}

func (linear) Interpolate(before, after []float64, gapLen int) []float64 {
	result := make([]float64, gapLen)
	switch {
	case len(before) == 0 && len(after) == 0:
		return result
	case len(before) == 0:
		for i := range result {
			result[i] = after[0]
		}
		return result
	case len(after) == 0:
		for i := range result {
			result[i] = before[len(before)-1]
		}
		return result
	}
	v0 := before[len(before)-1]
	v1 := after[0]
	for i := 0; i < gapLen; i++ {
		t := float64(i+1) / float64(gapLen+1)
		result[i] = (1-t)*v0 + t*v1
	}
	return result
}
