// Package interpolation fills the samples of frames that could not be
// decoded, so that every intensity series keeps one value per frame index.
package interpolation

type Interpolator interface {
	// Interpolate returns gapLen values that continue "before" and lead
	// into "after". Either side may be empty.
	Interpolate(before, after []float64, gapLen int) []float64
}

// Fill replaces every run of missing values in place. The context passed
// to the interpolator is limited to maxContext values on each side
// (0 means unlimited). It returns the amount of filled values.
func Fill(
	values []float64,
	missing []bool,
	maxContext int,
	interpolator Interpolator,
) int {
	filled := 0
	for start := 0; start < len(values); start++ {
		if !missing[start] {
			continue
		}
		end := start
		for end < len(values) && missing[end] {
			end++
		}

		before := values[:start]
		if maxContext > 0 && len(before) > maxContext {
			before = before[len(before)-maxContext:]
		}
		afterEnd := end
		for afterEnd < len(values) && !missing[afterEnd] {
			afterEnd++
		}
		after := values[end:afterEnd]
		if maxContext > 0 && len(after) > maxContext {
			after = after[:maxContext]
		}

		copy(values[start:end], interpolator.Interpolate(before, after, end-start))
		filled += end - start
		start = end
	}
	return filled
}
