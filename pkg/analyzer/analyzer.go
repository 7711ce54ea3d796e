// Package analyzer turns per-region intensity series into ENF frequency
// tracks, scores how likely they carry ENF, and aligns them with a
// reference.
package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/calvan/enf-analysis/pkg/bandpass"
	"github.com/calvan/enf-analysis/pkg/correlator"
	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/quality"
	"github.com/calvan/enf-analysis/pkg/stft"
	"github.com/facebookincubator/go-belt/tool/logger"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

type ExtractionMode int

const (
	ExtractionModeUndefined = ExtractionMode(iota)

	// ExtractionModeMean averages the centered region series.
	ExtractionModeMean

	// ExtractionModeDiff averages the frame-to-frame differences of the
	// region series.
	ExtractionModeDiff
)

func (m ExtractionMode) String() string {
	switch m {
	case ExtractionModeUndefined:
		return "undefined"
	case ExtractionModeMean:
		return "mean"
	case ExtractionModeDiff:
		return "diff"
	default:
		return fmt.Sprintf("unknown_%d", int(m))
	}
}

func ParseExtractionMode(s string) (ExtractionMode, error) {
	switch s {
	case "mean", "":
		return ExtractionModeMean, nil
	case "diff":
		return ExtractionModeDiff, nil
	default:
		return ExtractionModeUndefined, enf.Configurationf("unknown extraction mode %q", s)
	}
}

type Analyzer struct {
	Config     Config
	Filter     *bandpass.Filter
	Detection  *stft.Estimator
	Extraction *stft.Estimator
}

func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	expected := cfg.Expected()
	if math.IsNaN(expected) {
		return nil, enf.Configurationf("unable to derive the expected frequency from %v Hz at %v fps", cfg.NetworkFrequency, cfg.SampleRate)
	}

	filter, err := bandpass.Design(cfg.SampleRate, expected, cfg.BandpassHalfWidth, cfg.BandpassOrder)
	if err != nil {
		return nil, fmt.Errorf("unable to design the bandpass: %w", err)
	}
	detection, err := stft.NewEstimator(cfg.SampleRate, cfg.FPS, cfg.DetectionWindow, cfg.FFTSize, expected, cfg.BandpassHalfWidth)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the detection estimator: %w", err)
	}
	extraction, err := stft.NewEstimator(cfg.SampleRate, cfg.FPS, cfg.ExtractionWindow, cfg.FFTSize, expected, cfg.BandpassHalfWidth)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the extraction estimator: %w", err)
	}
	return &Analyzer{
		Config:     cfg,
		Filter:     filter,
		Detection:  detection,
		Extraction: extraction,
	}, nil
}

func (a *Analyzer) filter(signal []float64) []float64 {
	if a.Config.ZeroPhase {
		return a.Filter.ApplyZeroPhase(signal)
	}
	return a.Filter.Apply(signal)
}

// CenterRegions subtracts every row's mean and keeps the rows whose mean
// squared deviation exceeds the floor. It returns the kept rows and their
// indices in the input.
func CenterRegions(intensities [][]float64, varianceFloor float64) ([][]float64, []int) {
	var (
		rows    [][]float64
		indices []int
	)
	for idx, row := range intensities {
		if len(row) == 0 {
			continue
		}
		mean := floats.Sum(row) / float64(len(row))
		centered := make([]float64, len(row))
		var ss float64
		for col, v := range row {
			centered[col] = v - mean
			ss += centered[col] * centered[col]
		}
		if !(ss/float64(len(row)) > varianceFloor) {
			continue
		}
		rows = append(rows, centered)
		indices = append(indices, idx)
	}
	return rows, indices
}

// Detection is the result of scoring the regions of one video.
type Detection struct {
	// Regions are the indices (into the input rows) of the analyzed regions.
	Regions []int

	// Candidates holds one max-frequency track per analyzed region.
	Candidates [][]float64

	// Representative is the element-wise mean of the candidates.
	Representative enf.FrequencyTrack

	Quality *enf.QualitySummary
}

// DetectENF estimates a frequency track per region and scores how well the
// tracks agree. The intensities are indexed [region][frame].
func (a *Analyzer) DetectENF(
	ctx context.Context,
	intensities [][]float64,
) (_ret *Detection, _err error) {
	logger.Tracef(ctx, "DetectENF")
	defer func() { logger.Tracef(ctx, "/DetectENF: %v", _err) }()

	if len(intensities) == 0 {
		logger.Warnf(ctx, "no data present: the intensity buffer is empty")
		return nil, enf.InsufficientDataf("the intensity buffer is empty")
	}

	rows, indices := CenterRegions(intensities, a.Config.VarianceFloor)
	logger.Debugf(ctx, "%d of %d regions are above the variance floor %v", len(rows), len(intensities), a.Config.VarianceFloor)
	if len(rows) < a.Config.MinRegions {
		logger.Warnf(ctx, "not enough regions to compute ENF statistics: %d < %d", len(rows), a.Config.MinRegions)
		return nil, enf.InsufficientDataf("%d regions left, at least %d are required", len(rows), a.Config.MinRegions)
	}

	candidates := make([][]float64, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Config.Workers)
	for idx, row := range rows {
		g.Go(func() error {
			track, err := a.Detection.MaxTrack(gctx, a.filter(row))
			if err != nil {
				return fmt.Errorf("region %d: %w", indices[idx], err)
			}
			candidates[idx] = track
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary, err := quality.Compute(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("unable to score the regions: %w", err)
	}
	for idx := range summary.Ranking {
		summary.Ranking[idx].Index = indices[summary.Ranking[idx].Index]
	}

	logger.Infof(ctx, "potential ENF stats: %s", summary)
	if !quality.HasENF(summary) {
		logger.Warnf(ctx, "there are probably no ENF traces: median %v", summary.Median)
	}
	return &Detection{
		Regions:        indices,
		Candidates:     candidates,
		Representative: quality.Representative(candidates),
		Quality:        summary,
	}, nil
}

// Extraction holds the frequency tracks of an aggregated signal.
type Extraction struct {
	// Signal is the aggregated signal after the bandpass.
	Signal []float64

	*stft.Estimates
}

// ExtractENF aggregates the regions into one signal and estimates its
// frequency tracks.
func (a *Analyzer) ExtractENF(
	ctx context.Context,
	intensities [][]float64,
	mode ExtractionMode,
) (_ret *Extraction, _err error) {
	logger.Tracef(ctx, "ExtractENF(%s)", mode)
	defer func() { logger.Tracef(ctx, "/ExtractENF(%s): %v", mode, _err) }()

	var signal []float64
	switch mode {
	case ExtractionModeMean:
		rows, _ := CenterRegions(intensities, a.Config.VarianceFloor)
		if len(rows) == 0 {
			return nil, enf.InsufficientDataf("no region is above the variance floor %v", a.Config.VarianceFloor)
		}
		signal = meanOfRows(rows)
	case ExtractionModeDiff:
		if len(intensities) == 0 || len(intensities[0]) < 2 {
			return nil, enf.InsufficientDataf("not enough data to differentiate")
		}
		diffs := make([][]float64, len(intensities))
		for idx, row := range intensities {
			diffs[idx] = make([]float64, len(row)-1)
			for col := range diffs[idx] {
				diffs[idx][col] = row[col+1] - row[col]
			}
		}
		signal = meanOfRows(diffs)
	default:
		return nil, enf.Configurationf("unsupported extraction mode %v", mode)
	}
	return a.extract(ctx, signal)
}

// ExtractFromSignal estimates the frequency tracks of a single series (for
// example the mean brightness per frame), after removing its mean.
func (a *Analyzer) ExtractFromSignal(
	ctx context.Context,
	meanPerFrame []float64,
) (*Extraction, error) {
	if len(meanPerFrame) == 0 {
		return nil, enf.InsufficientDataf("the series is empty")
	}
	mean := floats.Sum(meanPerFrame) / float64(len(meanPerFrame))
	signal := make([]float64, len(meanPerFrame))
	for idx, v := range meanPerFrame {
		signal[idx] = v - mean
	}
	return a.extract(ctx, signal)
}

func (a *Analyzer) extract(
	ctx context.Context,
	signal []float64,
) (*Extraction, error) {
	filtered := a.filter(signal)
	estimates, err := a.Extraction.Estimate(ctx, filtered)
	if err != nil {
		return nil, fmt.Errorf("unable to estimate the frequency tracks: %w", err)
	}
	return &Extraction{
		Signal:    filtered,
		Estimates: estimates,
	}, nil
}

// Correlate aligns the track with the reference; the aligned track is
// moved from the expected frequency onto the grid frequency.
func (a *Analyzer) Correlate(
	ctx context.Context,
	c correlator.Correlator,
	track []float64,
	reference []float64,
) (*enf.AlignmentResult, error) {
	return correlator.Align(ctx, c, track, reference, a.Config.Bias())
}

func meanOfRows(rows [][]float64) []float64 {
	result := make([]float64, len(rows[0]))
	for _, row := range rows {
		floats.Add(result, row)
	}
	floats.Scale(1/float64(len(rows)), result)
	return result
}
