// Package whole treats the entire frame as a single region.
package whole

import (
	"context"
	"fmt"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/segmenter"
)

type Segmenter struct{}

var _ segmenter.Segmenter = (*Segmenter)(nil)

func New() *Segmenter {
	return &Segmenter{}
}

func (s *Segmenter) Segment(
	ctx context.Context,
	f *frame.Frame,
) (*segmenter.Segmentation, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	labels := make([]int32, f.PixelCount())
	for idx := range labels {
		labels[idx] = 1
	}
	return segmenter.NewSegmentation(f.Width, f.Height, labels, 0)
}
