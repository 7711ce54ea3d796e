// Package reference handles the grid frequency series recorded by grid
// operators, which extracted ENF tracks are matched against.
package reference

import (
	"fmt"
	"sort"
	"time"

	"github.com/calvan/enf-analysis/pkg/enf"
)

const (
	// DefaultMargin is the amount of samples kept on both sides when the
	// reference is cut around the recording time.
	DefaultMargin = 30

	// DefaultStep is the nominal resolution of a reference series.
	DefaultStep = time.Second
)

// Series is a time-indexed sequence of grid frequencies in ascending time
// order.
type Series struct {
	Times  []time.Time
	Values []float64
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}

func (s *Series) Validate() error {
	if len(s.Times) != len(s.Values) {
		return fmt.Errorf("there are %d timestamps, but %d values", len(s.Times), len(s.Values))
	}
	for idx := 1; idx < len(s.Times); idx++ {
		if !s.Times[idx].After(s.Times[idx-1]) {
			return fmt.Errorf("the timestamps are not strictly ascending at index %d: %v after %v", idx, s.Times[idx], s.Times[idx-1])
		}
	}
	return nil
}

// IndexOf returns the index of the sample recorded exactly at t.
func (s *Series) IndexOf(t time.Time) (int, bool) {
	idx := sort.Search(len(s.Times), func(i int) bool {
		return !s.Times[i].Before(t)
	})
	if idx >= len(s.Times) || !s.Times[idx].Equal(t) {
		return idx, false
	}
	return idx, true
}

// Slice returns the part of the series that starts margin samples before t
// and ends margin samples after t+length samples. The bounds are clamped to
// the series.
func (s *Series) Slice(t time.Time, length int, margin int) (*Series, error) {
	idx, ok := s.IndexOf(t)
	if !ok {
		return nil, fmt.Errorf("%w: no reference sample at %v", enf.ErrReferenceDataMissing, t)
	}
	start := max(idx-margin, 0)
	end := min(idx+length+margin, s.Len())
	return &Series{
		Times:  s.Times[start:end],
		Values: s.Values[start:end],
	}, nil
}

// Range returns the samples within [from, to).
func (s *Series) Range(from, to time.Time) *Series {
	start, _ := s.IndexOf(from)
	end, _ := s.IndexOf(to)
	return &Series{
		Times:  s.Times[start:end],
		Values: s.Values[start:end],
	}
}

// MatchingDiff returns the amount of seconds between the matched reference
// timestamp and the recording time of the video (shifted by the seconds
// skipped at its start).
func MatchingDiff(recordedAt time.Time, matched time.Time, skipSeconds int) int {
	videoTime := recordedAt.Add(time.Duration(skipSeconds) * time.Second)
	return int(matched.Sub(videoTime).Round(time.Second) / time.Second)
}
