// Package quality scores how consistently a set of candidate frequency
// tracks follows a common signal.
package quality

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/facebookincubator/go-belt/tool/logger"
	"gonum.org/v1/gonum/stat"
)

const (
	// MinScoredRegions is the amount of scored tracks needed to compare
	// the two best ones.
	MinScoredRegions = 2

	// ENFPresenceThreshold is the median correlation below which a video
	// probably carries no ENF.
	ENFPresenceThreshold = 0.6
)

// Representative returns the element-wise mean of the tracks, ignoring NaN
// values. A column without any value is NaN.
func Representative(tracks [][]float64) []float64 {
	if len(tracks) == 0 {
		return nil
	}
	result := make([]float64, len(tracks[0]))
	for col := range result {
		var sum float64
		count := 0
		for _, track := range tracks {
			v := track[col]
			if math.IsNaN(v) {
				continue
			}
			sum += v
			count++
		}
		if count == 0 {
			result[col] = math.NaN()
			continue
		}
		result[col] = sum / float64(count)
	}
	return result
}

// Compute correlates every track against the representative track and
// summarizes the result. Tracks with zero variance are left out.
func Compute(
	ctx context.Context,
	tracks [][]float64,
) (_ret *enf.QualitySummary, _err error) {
	logger.Tracef(ctx, "Compute")
	defer func() { logger.Tracef(ctx, "/Compute: %v", _err) }()

	if len(tracks) == 0 {
		return nil, enf.InsufficientDataf("no candidate tracks")
	}
	length := len(tracks[0])
	for idx, track := range tracks {
		if len(track) != length {
			return nil, fmt.Errorf("track %d has length %d, expected %d", idx, len(track), length)
		}
	}
	if length < 2 {
		return nil, enf.InsufficientDataf("the tracks have only %d values", length)
	}

	representative := Representative(tracks)

	var ranking []enf.RegionScore
	for idx, track := range tracks {
		if stat.Variance(track, nil) == 0 {
			logger.Debugf(ctx, "track %d has zero variance, excluding it: %v", idx, enf.ErrNumericDegeneracy)
			continue
		}
		corr := stat.Correlation(track, representative, nil)
		if math.IsNaN(corr) {
			logger.Debugf(ctx, "track %d has an undefined correlation, excluding it", idx)
			continue
		}
		ranking = append(ranking, enf.RegionScore{
			Index:       idx,
			Correlation: corr,
		})
	}
	if len(ranking) < MinScoredRegions {
		return nil, enf.InsufficientDataf("only %d of %d tracks could be scored", len(ranking), len(tracks))
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Correlation > ranking[j].Correlation
	})

	correlations := make([]float64, len(ranking))
	for idx, score := range ranking {
		correlations[idx] = score.Correlation
	}
	topTwo := stat.Correlation(tracks[ranking[0].Index], tracks[ranking[1].Index], nil)

	result := &enf.QualitySummary{
		Max:     enf.Round4(correlations[0]),
		Mean:    enf.Round4(stat.Mean(correlations, nil)),
		Median:  enf.Round4(median(correlations)),
		TopTwo:  enf.Round4(topTwo),
		Ranking: ranking,
	}
	logger.Debugf(ctx, "quality: %s", result)
	return result, nil
}

// median of values sorted in descending order.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// HasENF tells whether the summary suggests that the video carries ENF.
func HasENF(summary *enf.QualitySummary) bool {
	return summary != nil && summary.Median >= ENFPresenceThreshold
}
