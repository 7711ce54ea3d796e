// Package videoprocessor runs the sequential per-frame part of the
// analysis: segmentation of the first frame, motion detection and
// intensity accumulation.
package videoprocessor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/intensity"
	"github.com/calvan/enf-analysis/pkg/interpolation"
	"github.com/calvan/enf-analysis/pkg/motion"
	"github.com/calvan/enf-analysis/pkg/segmenter"
	"github.com/facebookincubator/go-belt/tool/logger"
)

const (
	DefaultProgressInterval = 50
)

type Config struct {
	Segmenter segmenter.Segmenter

	// LightnessThreshold is nil for the automatic (median) threshold.
	LightnessThreshold *float64

	// Selection is the first-frame statistic compared to the threshold.
	Selection enf.Aggregate

	// MotionThreshold is the moving fraction above which a region is
	// dropped; zero disables motion detection.
	MotionThreshold float64

	// StartFrame and EndFrame limit the processed frame indexes to
	// [StartFrame, EndFrame); EndFrame zero means until the end.
	StartFrame int
	EndFrame   int

	// Interpolator fills the values of unreadable frames; linear if nil.
	Interpolator interpolation.Interpolator

	// ProgressInterval is the amount of frames between progress messages.
	ProgressInterval int

	// OnPreview receives motion-free preview images while processing.
	// It is called from the processing loop.
	OnPreview       func(*frame.Frame)
	PreviewInterval time.Duration
}

func (cfg Config) Validate() error {
	if cfg.Segmenter == nil {
		return enf.Configurationf("no segmenter defined")
	}
	if cfg.MotionThreshold < 0 || cfg.MotionThreshold > 1 {
		return enf.Configurationf("motion threshold must be within [0, 1]: got %v", cfg.MotionThreshold)
	}
	if cfg.StartFrame < 0 || (cfg.EndFrame != 0 && cfg.EndFrame <= cfg.StartFrame) {
		return enf.Configurationf("invalid frame range [%d, %d)", cfg.StartFrame, cfg.EndFrame)
	}
	return nil
}

type Result struct {
	Info frame.Info

	Segmentation *segmenter.Segmentation

	// RegionStates is indexed by region ID-1; nil if motion detection is
	// disabled.
	RegionStates []motion.RegionState

	// Series contains the regions that are selected and steady.
	Series *enf.RegionIntensitySeries

	// MeanPerFrame is the mean luminance of every whole frame.
	MeanPerFrame []float64

	Threshold  float64
	Correction *intensity.ThresholdCorrection

	// FirstIndex is the index of the first processed frame.
	FirstIndex int

	// Frames is the amount of processed frames, including the skipped ones.
	Frames int

	// Skipped is the amount of unreadable frames that were interpolated.
	Skipped int

	// Truncated is true if processing was interrupted.
	Truncated bool

	FirstFrame  *frame.Frame
	SteadyImage *frame.Frame
}

type processor struct {
	Config
	info frame.Info

	aggregator *intensity.Aggregator
	detector   *motion.Detector
	preview    <-chan *frame.Frame

	segmentation *segmenter.Segmentation
	firstIndex   int
	meanPerFrame []float64
	missing      []bool
	skipped      int
}

// Process reads the source until the end (or EndFrame). If ctx is
// cancelled, the result of the frames processed so far is returned together
// with the error.
func Process(
	ctx context.Context,
	src frame.Source,
	cfg Config,
) (_ret *Result, _err error) {
	logger.Tracef(ctx, "Process")
	defer func() { logger.Tracef(ctx, "/Process: %v", _err) }()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.Interpolator == nil {
		cfg.Interpolator = interpolation.NewLinear()
	}

	info, err := src.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get the information about the source: %w", err)
	}
	aggregator, err := intensity.NewAggregator(cfg.LightnessThreshold, cfg.Selection)
	if err != nil {
		return nil, err
	}
	aggregator.Interpolator = cfg.Interpolator
	p := &processor{
		Config:     cfg,
		info:       info,
		aggregator: aggregator,
	}
	if cfg.MotionThreshold > 0 {
		subtractor := motion.NewSubtractor(ctx)
		p.detector, err = motion.NewDetector(cfg.MotionThreshold, subtractor)
		if err != nil {
			subtractor.Close()
			return nil, enf.Configurationf("%v", err)
		}
		defer p.detector.Close()
	}

	previewCtx, cancelPreview := context.WithCancel(ctx)
	defer cancelPreview()

	for {
		if err := ctx.Err(); err != nil {
			if p.segmentation == nil {
				return nil, err
			}
			logger.Warnf(ctx, "interrupted after %d frames", p.aggregator.Frames())
			return p.result(true), fmt.Errorf("interrupted after %d frames: %w", p.aggregator.Frames(), err)
		}

		idx, f, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return p.finish(ctx)
		case errors.Is(err, frame.ErrUnreadable):
			if idx < cfg.StartFrame {
				continue
			}
			if cfg.EndFrame > 0 && idx >= cfg.EndFrame {
				return p.finish(ctx)
			}
			if err := p.skipFrame(ctx, idx); err != nil {
				return nil, err
			}
			continue
		case err != nil:
			return nil, fmt.Errorf("unable to read frame %d: %w", idx, err)
		}
		if idx < cfg.StartFrame {
			continue
		}
		if cfg.EndFrame > 0 && idx >= cfg.EndFrame {
			return p.finish(ctx)
		}

		if p.segmentation == nil {
			if err := p.firstFrame(ctx, previewCtx, idx, f); err != nil {
				return nil, err
			}
		} else if err := p.nextFrame(ctx, idx, f); err != nil {
			return nil, err
		}
		p.pollPreview()

		if processed := p.aggregator.Frames(); processed%p.ProgressInterval == 0 {
			logger.Debugf(ctx, "processed %d of %d frames", processed, p.info.TotalFrames)
		}
	}
}

func (p *processor) firstFrame(
	ctx context.Context,
	previewCtx context.Context,
	idx int,
	f *frame.Frame,
) error {
	segmentation, err := p.Segmenter.Segment(ctx, f)
	if err != nil {
		return fmt.Errorf("unable to segment frame %d: %w", idx, err)
	}
	if segmentation.Count() == 0 {
		return enf.Configurationf("the segmentation of frame %d has no regions", idx)
	}
	if err := p.aggregator.FirstFrame(ctx, f, segmentation); err != nil {
		return fmt.Errorf("unable to process the first frame: %w", err)
	}
	if p.detector != nil {
		if err := p.detector.FirstFrame(ctx, f, segmentation); err != nil {
			return fmt.Errorf("unable to initialize the motion detector: %w", err)
		}
		p.detector.ApplyDisabled(p.aggregator.DisabledIDs())
		if p.OnPreview != nil {
			p.preview = p.detector.StartPreview(previewCtx, p.PreviewInterval)
		}
	}
	if c := p.aggregator.Correction(); c != nil {
		logger.Warnf(ctx, "the lightness threshold %v was above the brightest pixel %d; replaced with %v", c.Requested, c.Brightest, c.Applied)
	}
	p.segmentation = segmentation
	p.firstIndex = idx
	p.appendMean(f)
	return nil
}

func (p *processor) nextFrame(
	ctx context.Context,
	idx int,
	f *frame.Frame,
) error {
	if p.detector != nil {
		if err := p.detector.Observe(ctx, f); err != nil {
			return fmt.Errorf("unable to detect motion in frame %d: %w", idx, err)
		}
	}
	if err := p.aggregator.NextFrame(ctx, f); err != nil {
		return fmt.Errorf("unable to process frame %d: %w", idx, err)
	}
	p.appendMean(f)
	return nil
}

func (p *processor) skipFrame(
	ctx context.Context,
	idx int,
) error {
	if p.segmentation == nil {
		logger.Warnf(ctx, "unable to read frame %d, looking for the first readable frame", idx)
		return nil
	}
	logger.Warnf(ctx, "unable to read frame %d, it will be interpolated", idx)
	if err := p.aggregator.SkipFrame(ctx); err != nil {
		return err
	}
	p.meanPerFrame = append(p.meanPerFrame, math.NaN())
	p.missing = append(p.missing, true)
	p.skipped++
	return nil
}

func (p *processor) appendMean(f *frame.Frame) {
	var sum int
	gray := f.Gray()
	for _, v := range gray {
		sum += int(v)
	}
	p.meanPerFrame = append(p.meanPerFrame, float64(sum)/float64(len(gray)))
	p.missing = append(p.missing, false)
}

func (p *processor) pollPreview() {
	if p.preview == nil {
		return
	}
	select {
	case img, ok := <-p.preview:
		if !ok {
			p.preview = nil
			return
		}
		p.OnPreview(img)
	default:
	}
}

func (p *processor) finish(ctx context.Context) (*Result, error) {
	if p.segmentation == nil {
		return nil, enf.InsufficientDataf("no readable frames in [%d, %d)", p.StartFrame, p.EndFrame)
	}
	result := p.result(false)
	logger.Debugf(ctx, "processed %d frames (%d skipped), %d of %d regions are usable", result.Frames, result.Skipped, result.Series.Regions(), p.segmentation.Count())
	return result, nil
}

func (p *processor) result(truncated bool) *Result {
	ids := p.aggregator.SelectedIDs()
	result := &Result{
		Info:         p.info,
		Segmentation: p.segmentation,
		Threshold:    p.aggregator.Threshold(),
		Correction:   p.aggregator.Correction(),
		FirstIndex:   p.firstIndex,
		Frames:       p.aggregator.Frames(),
		Skipped:      p.skipped,
		Truncated:    truncated,
	}
	if p.detector != nil {
		ids = p.detector.Mask().SteadyIDs()
		result.RegionStates = p.detector.Mask().Snapshot()
		result.FirstFrame = p.detector.FirstFrameImage()
		result.SteadyImage = p.detector.SteadyImage(true)
	}
	if ids == nil {
		ids = []int{}
	}
	result.Series = p.aggregator.Series(ids)

	result.MeanPerFrame = make([]float64, len(p.meanPerFrame))
	copy(result.MeanPerFrame, p.meanPerFrame)
	interpolation.Fill(result.MeanPerFrame, p.missing, 0, p.Interpolator)
	return result
}
