package enf

import (
	"fmt"
	"math"
)

// FrequencyTrack is a sequence of per-analysis-frame frequency estimates in Hz.
type FrequencyTrack []float64

// Aggregate selects which per-region statistic is used.
type Aggregate int

const (
	AggregateUndefined = Aggregate(iota)
	AggregateMean
	AggregateMedian
)

func (a Aggregate) String() string {
	switch a {
	case AggregateUndefined:
		return "undefined"
	case AggregateMean:
		return "mean"
	case AggregateMedian:
		return "median"
	default:
		return fmt.Sprintf("unknown_aggregate_%d", int(a))
	}
}

// ParseAggregate is the inverse of Aggregate.String.
func ParseAggregate(s string) (Aggregate, error) {
	switch s {
	case "mean":
		return AggregateMean, nil
	case "median":
		return AggregateMedian, nil
	default:
		return AggregateUndefined, Configurationf("unknown aggregate %q", s)
	}
}

// RegionIntensitySeries is the [region, frame] buffer of intensities.
// Row r of Mean and Median belongs to region IDs[r].
type RegionIntensitySeries struct {
	IDs    []int
	Mean   [][]float32
	Median [][]float32
}

// Frames returns the amount of frames accumulated in the series.
func (s *RegionIntensitySeries) Frames() int {
	if s == nil || len(s.Mean) == 0 {
		return 0
	}
	return len(s.Mean[0])
}

// Regions returns the amount of regions in the series.
func (s *RegionIntensitySeries) Regions() int {
	if s == nil {
		return 0
	}
	return len(s.IDs)
}

// Matrix returns a float64 copy of the requested statistic.
func (s *RegionIntensitySeries) Matrix(aggregate Aggregate) ([][]float64, error) {
	var rows [][]float32
	switch aggregate {
	case AggregateMean:
		rows = s.Mean
	case AggregateMedian:
		rows = s.Median
	default:
		return nil, Configurationf("unsupported aggregate %v", aggregate)
	}
	result := make([][]float64, len(rows))
	for idx, row := range rows {
		result[idx] = make([]float64, len(row))
		for col, v := range row {
			result[idx][col] = float64(v)
		}
	}
	return result, nil
}

// Select returns a series that contains only the rows of the given region IDs.
func (s *RegionIntensitySeries) Select(ids []int) *RegionIntensitySeries {
	wanted := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	result := &RegionIntensitySeries{}
	for idx, id := range s.IDs {
		if _, ok := wanted[id]; !ok {
			continue
		}
		result.IDs = append(result.IDs, id)
		result.Mean = append(result.Mean, s.Mean[idx])
		result.Median = append(result.Median, s.Median[idx])
	}
	return result
}

// RegionScore is the correlation of one candidate track against the
// representative track.
type RegionScore struct {
	Index       int
	Correlation float64
}

// QualitySummary describes how consistent the candidate tracks are.
type QualitySummary struct {
	Max    float64
	Mean   float64
	Median float64
	TopTwo float64

	// Ranking lists scored candidates, best first.
	Ranking []RegionScore
}

func (q QualitySummary) String() string {
	return fmt.Sprintf(
		"max: %.4f, mean: %.4f, median: %.4f, corr(top_two): %.4f",
		q.Max, q.Mean, q.Median, q.TopTwo,
	)
}

// AlignmentResult is the outcome of sliding a candidate track over
// a reference series.
type AlignmentResult struct {
	Offset int
	Score  float64

	// Correlations holds the score for every evaluated offset.
	Correlations []float64

	// Reference is a copy of the reference values.
	Reference []float64

	// Aligned has the length of Reference; it is NaN everywhere except
	// [Offset, Offset+len(candidate)), where it holds the re-biased candidate.
	Aligned []float64
}

func (r AlignmentResult) String() string {
	return fmt.Sprintf("max_correlation: %.4f, offset: %d", r.Score, r.Offset)
}

// Round4 rounds to 4 decimal places, the precision reported by summaries.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
