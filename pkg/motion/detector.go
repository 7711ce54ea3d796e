package motion

import (
	"context"
	"fmt"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/segmenter"
	"github.com/facebookincubator/go-belt/tool/logger"
)

const (
	// DefaultThreshold is the fraction of moving pixels above which
	// a region becomes unsteady.
	DefaultThreshold = 0.2
)

// Detector flags regions whose content changes. Once flagged, a region
// stays flagged.
type Detector struct {
	Threshold float64

	subtractor   Subtractor
	segmentation *segmenter.Segmentation
	mask         *SteadinessMask
	firstFrame   *frame.Frame
	foreground   []bool
	counts       []int
}

// NewDetector returns a detector that takes over the subtractor (a
// GaussianSubtractor if nil); Close releases it.
func NewDetector(
	threshold float64,
	subtractor Subtractor,
) (*Detector, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("motion threshold must be within (0, 1]: got %v", threshold)
	}
	if subtractor == nil {
		subtractor = NewGaussianSubtractor()
	}
	return &Detector{
		Threshold:  threshold,
		subtractor: subtractor,
	}, nil
}

func (d *Detector) Close() error {
	return d.subtractor.Close()
}

// FirstFrame initializes the background model and the steadiness mask.
func (d *Detector) FirstFrame(
	ctx context.Context,
	f *frame.Frame,
	segmentation *segmenter.Segmentation,
) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid frame: %w", err)
	}
	if segmentation.Width != f.Width || segmentation.Height != f.Height {
		return fmt.Errorf("segmentation size %dx%d does not match the frame size %dx%d", segmentation.Width, segmentation.Height, f.Width, f.Height)
	}
	d.firstFrame = f.Clone()
	d.segmentation = segmentation
	d.mask = NewSteadinessMask(segmentation.Count())
	d.counts = make([]int, segmentation.Count()+1)
	foreground, err := d.subtractor.Apply(ctx, f)
	if err != nil {
		return fmt.Errorf("unable to initialize the background model: %w", err)
	}
	d.foreground = foreground
	logger.Infof(ctx, "regions: %d, region size: %d, motion threshold: %v", segmentation.Count(), segmentation.RegionSize, d.Threshold)
	return nil
}

// Initialized returns true after FirstFrame succeeded.
func (d *Detector) Initialized() bool {
	return d.mask != nil
}

// Observe updates the background model with the frame and flags regions
// with too many moving pixels. It does nothing before FirstFrame.
func (d *Detector) Observe(
	ctx context.Context,
	f *frame.Frame,
) error {
	if !d.Initialized() {
		return nil
	}
	if f.Width != d.segmentation.Width || f.Height != d.segmentation.Height {
		return fmt.Errorf("frame size %dx%d does not match the segmentation size %dx%d", f.Width, f.Height, d.segmentation.Width, d.segmentation.Height)
	}

	foreground, err := d.subtractor.Apply(ctx, f)
	if err != nil {
		return fmt.Errorf("unable to subtract the background: %w", err)
	}
	if len(foreground) != len(d.segmentation.Labels) {
		return fmt.Errorf("the foreground mask has %d values, expected %d", len(foreground), len(d.segmentation.Labels))
	}
	d.foreground = foreground

	for idx := range d.counts {
		d.counts[idx] = 0
	}
	moving := false
	for idx, isForeground := range d.foreground {
		if !isForeground {
			continue
		}
		d.counts[d.segmentation.Labels[idx]]++
		moving = true
	}
	if !moving {
		return nil
	}

	for id := 1; id < len(d.counts); id++ {
		fraction := float64(d.counts[id]) / float64(d.segmentation.Size(id))
		if fraction <= d.Threshold {
			continue
		}
		if d.mask.MarkUnsteady(id) {
			logger.Tracef(ctx, "region %d became unsteady (moving fraction %.3f)", id, fraction)
		}
	}
	return nil
}

// ApplyDisabled marks regions that are excluded for other reasons
// (for example too dark) as unsteady.
func (d *Detector) ApplyDisabled(ids []int) {
	if !d.Initialized() {
		return
	}
	for _, id := range ids {
		d.mask.MarkUnsteady(id)
	}
}

// Mask returns the steadiness mask (nil before FirstFrame).
func (d *Detector) Mask() *SteadinessMask {
	return d.mask
}

func (d *Detector) Segmentation() *segmenter.Segmentation {
	return d.segmentation
}

// ForegroundFrame renders the latest foreground classification as a gray
// frame (255 for moving pixels).
func (d *Detector) ForegroundFrame() *frame.Frame {
	if !d.Initialized() {
		return nil
	}
	result := frame.New(d.segmentation.Width, d.segmentation.Height, 1)
	for idx, isForeground := range d.foreground {
		if isForeground {
			result.Pix[idx] = 255
		}
	}
	return result
}

// SteadyImage renders the first frame with unsteady regions blacked out.
func (d *Detector) SteadyImage(withContours bool) *frame.Frame {
	if !d.Initialized() {
		return nil
	}
	return RenderSteady(d.firstFrame, d.segmentation, d.mask.Snapshot(), withContours)
}

// FirstFrameImage returns a copy of the first frame.
func (d *Detector) FirstFrameImage() *frame.Frame {
	if !d.Initialized() {
		return nil
	}
	return d.firstFrame.Clone()
}
