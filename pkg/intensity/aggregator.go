// Package intensity accumulates per-region brightness over the frames of
// a video.
package intensity

import (
	"context"
	"fmt"
	"math"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/interpolation"
	"github.com/calvan/enf-analysis/pkg/segmenter"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// ThresholdCorrection records that the requested lightness threshold was
// above the brightest pixel of the first frame and was replaced.
type ThresholdCorrection struct {
	Requested float64
	Brightest uint8
	Applied   float64
}

type Aggregator struct {
	// Selection decides whether the first-frame mean or median of a
	// region is compared against the threshold.
	Selection enf.Aggregate

	// BrightPixelsOnly restricts the per-frame statistics to pixels
	// above the threshold. A region without such pixels in a frame
	// falls back to all of its pixels.
	BrightPixelsOnly bool

	// Interpolator fills the values of skipped frames.
	Interpolator interpolation.Interpolator

	requestedThreshold *float64
	threshold          float64
	correction         *ThresholdCorrection

	segmentation *segmenter.Segmentation
	selected     []int
	mean         [][]float32
	median       [][]float32
	missing      []bool
	frames       int
	histogram    [256]int
}

// NewAggregator creates an aggregator. If threshold is nil, the median
// luminance of the first frame is used.
func NewAggregator(
	threshold *float64,
	selection enf.Aggregate,
) (*Aggregator, error) {
	switch selection {
	case enf.AggregateMean, enf.AggregateMedian:
	default:
		return nil, enf.Configurationf("unsupported selection aggregate %v", selection)
	}
	if threshold != nil && (*threshold < 0 || *threshold > 255 || math.IsNaN(*threshold)) {
		return nil, enf.Configurationf("lightness threshold must be within [0, 255]: got %v", *threshold)
	}
	return &Aggregator{
		Selection:          selection,
		BrightPixelsOnly:   true,
		Interpolator:       interpolation.NewLinear(),
		requestedThreshold: threshold,
	}, nil
}

// FirstFrame fixes the region membership and the threshold, selects the
// regions bright enough to be sampled, and records their first values.
func (a *Aggregator) FirstFrame(
	ctx context.Context,
	f *frame.Frame,
	segmentation *segmenter.Segmentation,
) (_err error) {
	logger.Tracef(ctx, "FirstFrame")
	defer func() { logger.Tracef(ctx, "/FirstFrame: %v", _err) }()

	if a.segmentation != nil {
		return fmt.Errorf("the first frame was already processed")
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid frame: %w", err)
	}
	if segmentation.Width != f.Width || segmentation.Height != f.Height {
		return fmt.Errorf("segmentation size %dx%d does not match the frame size %dx%d", segmentation.Width, segmentation.Height, f.Width, f.Height)
	}

	gray := f.Gray()
	brightest, median := maxAndMedian(gray)
	switch {
	case a.requestedThreshold == nil:
		a.threshold = median
	case float64(brightest) < *a.requestedThreshold:
		a.threshold = median
		a.correction = &ThresholdCorrection{
			Requested: *a.requestedThreshold,
			Brightest: brightest,
			Applied:   median,
		}
		logger.Warnf(ctx, "threshold greater than the brightest spot: threshold: %v, brightest spot: %d; using auto threshold %v", *a.requestedThreshold, brightest, median)
	default:
		a.threshold = *a.requestedThreshold
	}
	logger.Debugf(ctx, "using threshold %v", a.threshold)

	a.segmentation = segmentation
	for _, id := range segmentation.IDs() {
		mean, median := a.regionStats(gray, segmentation.Members(id), false)
		value := mean
		if a.Selection == enf.AggregateMedian {
			value = median
		}
		if value > a.threshold {
			a.selected = append(a.selected, id)
		}
	}
	a.mean = make([][]float32, len(a.selected))
	a.median = make([][]float32, len(a.selected))
	logger.Debugf(ctx, "selected %d of %d regions", len(a.selected), segmentation.Count())

	a.appendFrame(gray)
	return nil
}

// NextFrame appends the values of the selected regions.
func (a *Aggregator) NextFrame(
	ctx context.Context,
	f *frame.Frame,
) error {
	if a.segmentation == nil {
		return fmt.Errorf("the first frame was not processed yet")
	}
	if f.Width != a.segmentation.Width || f.Height != a.segmentation.Height {
		return fmt.Errorf("frame size %dx%d does not match the segmentation size %dx%d", f.Width, f.Height, a.segmentation.Width, a.segmentation.Height)
	}
	a.appendFrame(f.Gray())
	return nil
}

// SkipFrame appends a placeholder for a frame that could not be read.
// Placeholders are interpolated by Series.
func (a *Aggregator) SkipFrame(ctx context.Context) error {
	if a.segmentation == nil {
		return fmt.Errorf("the first frame was not processed yet")
	}
	for idx := range a.selected {
		a.mean[idx] = append(a.mean[idx], float32(math.NaN()))
		a.median[idx] = append(a.median[idx], float32(math.NaN()))
	}
	a.missing = append(a.missing, true)
	a.frames++
	return nil
}

func (a *Aggregator) appendFrame(gray []uint8) {
	for idx, id := range a.selected {
		mean, median := a.regionStats(gray, a.segmentation.Members(id), a.BrightPixelsOnly)
		a.mean[idx] = append(a.mean[idx], float32(mean))
		a.median[idx] = append(a.median[idx], float32(median))
	}
	a.missing = append(a.missing, false)
	a.frames++
}

func (a *Aggregator) regionStats(gray []uint8, members []int, brightOnly bool) (float64, float64) {
	if brightOnly {
		mean, median, ok := a.histogramStats(gray, members, a.threshold)
		if ok {
			return mean, median
		}
	}
	mean, median, _ := a.histogramStats(gray, members, -1)
	return mean, median
}

func (a *Aggregator) histogramStats(gray []uint8, members []int, above float64) (float64, float64, bool) {
	clear(a.histogram[:])
	var (
		sum   int
		count int
	)
	for _, idx := range members {
		v := gray[idx]
		if float64(v) <= above {
			continue
		}
		a.histogram[v]++
		sum += int(v)
		count++
	}
	if count == 0 {
		return 0, 0, false
	}
	return float64(sum) / float64(count), histogramMedian(&a.histogram, count), true
}

// histogramMedian returns the median of count values; for an even count
// it is the average of the two middle values.
func histogramMedian(histogram *[256]int, count int) float64 {
	lowerRank := (count - 1) / 2
	upperRank := count / 2
	lower, upper := -1, -1
	seen := 0
	for v, n := range histogram {
		if n == 0 {
			continue
		}
		seen += n
		if lower < 0 && seen > lowerRank {
			lower = v
		}
		if seen > upperRank {
			upper = v
			break
		}
	}
	return (float64(lower) + float64(upper)) / 2
}

func maxAndMedian(gray []uint8) (uint8, float64) {
	var histogram [256]int
	var brightest uint8
	for _, v := range gray {
		histogram[v]++
		if v > brightest {
			brightest = v
		}
	}
	return brightest, math.Floor(histogramMedian(&histogram, len(gray)))
}

// Threshold returns the threshold in effect (valid after FirstFrame).
func (a *Aggregator) Threshold() float64 {
	return a.threshold
}

// Correction returns non-nil if the requested threshold was replaced.
func (a *Aggregator) Correction() *ThresholdCorrection {
	return a.correction
}

// Frames returns the amount of processed (including skipped) frames.
func (a *Aggregator) Frames() int {
	return a.frames
}

// SelectedIDs returns the IDs of the sampled regions in ascending order.
func (a *Aggregator) SelectedIDs() []int {
	result := make([]int, len(a.selected))
	copy(result, a.selected)
	return result
}

// DisabledIDs returns the IDs of the regions that are not sampled.
func (a *Aggregator) DisabledIDs() []int {
	if a.segmentation == nil {
		return nil
	}
	selected := make(map[int]struct{}, len(a.selected))
	for _, id := range a.selected {
		selected[id] = struct{}{}
	}
	var result []int
	for _, id := range a.segmentation.IDs() {
		if _, ok := selected[id]; ok {
			continue
		}
		result = append(result, id)
	}
	return result
}

// Series returns a copy of the accumulated values of the given regions
// (all selected regions if ids is nil). Skipped frames are interpolated.
func (a *Aggregator) Series(ids []int) *enf.RegionIntensitySeries {
	full := &enf.RegionIntensitySeries{
		IDs:    a.SelectedIDs(),
		Mean:   make([][]float32, len(a.selected)),
		Median: make([][]float32, len(a.selected)),
	}
	for idx := range a.selected {
		full.Mean[idx] = a.fill(a.mean[idx])
		full.Median[idx] = a.fill(a.median[idx])
	}
	if ids == nil {
		return full
	}
	return full.Select(ids)
}

func (a *Aggregator) fill(row []float32) []float32 {
	values := make([]float64, len(row))
	for idx, v := range row {
		values[idx] = float64(v)
	}
	interpolation.Fill(values, a.missing, 0, a.Interpolator)
	result := make([]float32, len(values))
	for idx, v := range values {
		result[idx] = float32(v)
	}
	return result
}
