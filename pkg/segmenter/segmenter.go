package segmenter

import (
	"context"

	"github.com/calvan/enf-analysis/pkg/frame"
)

// Segmenter partitions a frame into regions. Every pixel belongs to exactly
// one region; region IDs are dense and start at 1 (0 means "no region").
type Segmenter interface {
	Segment(ctx context.Context, f *frame.Frame) (*Segmentation, error)
}
