// Package pearson slides the candidate over the reference and computes the
// Pearson correlation of every window directly.
//
// The offset range is split into contiguous partitions that are scanned
// concurrently; every partition writes only its own part of the scores.
package pearson

import (
	"context"
	"fmt"
	"runtime"

	"github.com/calvan/enf-analysis/pkg/correlator"
	"github.com/facebookincubator/go-belt/tool/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// MinPartitionSize is the smallest amount of offsets worth a goroutine.
	MinPartitionSize = 1024

	progressInterval = 10000
)

type Correlator struct {
	Workers int
}

var _ correlator.Correlator = (*Correlator)(nil)

// New returns a correlator that uses up to workers goroutines
// (runtime.NumCPU() if workers <= 0).
func New(workers int) *Correlator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Correlator{
		Workers: workers,
	}
}

func (c *Correlator) Correlate(
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
	scores := make([]float64, len(reference)-length+1)

	partitions := c.Workers
	if maxPartitions := (len(scores) + MinPartitionSize - 1) / MinPartitionSize; partitions > maxPartitions {
		partitions = maxPartitions
	}
	partitionSize := (len(scores) + partitions - 1) / partitions

	var g errgroup.Group
	for start := 0; start < len(scores); start += partitionSize {
		end := min(start+partitionSize, len(scores))
		g.Go(func() error {
			for offset := start; offset < end; offset++ {
				if (offset-start)%progressInterval == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
					if start == 0 {
						logger.Tracef(ctx, "correlate: %d/%d", offset, end)
					}
				}
				scores[offset] = correlator.WindowPearson(centered, norm, reference[offset:offset+length])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := correlator.ArgMax(scores)
	result := &correlator.Correlation{
		Offset: best,
		Scores: scores,
	}
	if best >= 0 {
		result.Score = scores[best]
	}
	return result, nil
}
