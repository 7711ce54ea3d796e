// Package pipeline runs the whole analysis of videos: the per-region
// intensities are extracted (or loaded from the storage), the ENF is
// detected and extracted, and every frequency track is aligned against
// the grid reference. Every step is recorded in a storage.Store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/calvan/enf-analysis/pkg/analyzer"
	"github.com/calvan/enf-analysis/pkg/config"
	"github.com/calvan/enf-analysis/pkg/correlator"
	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/frame/registry"
	"github.com/calvan/enf-analysis/pkg/storage"
	"github.com/calvan/enf-analysis/pkg/videoprocessor"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// SourceOpener opens the video at the path.
type SourceOpener func(ctx context.Context, path string) (frame.Source, error)

type Pipeline struct {
	Config config.Analysis
	Store  *storage.Store

	// RunID is attached to every dataset stored by this pipeline.
	RunID uuid.UUID

	OpenSource SourceOpener

	correlator correlator.Correlator
	mode       analyzer.ExtractionMode
}

func New(
	cfg config.Analysis,
	store *storage.Store,
) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("no storage given")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := cfg.NewCorrelator()
	if err != nil {
		return nil, err
	}
	mode, err := analyzer.ParseExtractionMode(cfg.ExtractionMode)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Config:     cfg,
		Store:      store,
		RunID:      uuid.New(),
		OpenSource: registry.OpenSourceAuto,
		correlator: c,
		mode:       mode,
	}, nil
}

// VideoResult is the outcome of the analysis of one video.
type VideoResult struct {
	Path         string
	Video        storage.Video
	VideoDataset storage.VideoDataset

	// Processing is nil if the intensities were loaded from the storage.
	Processing *videoprocessor.Result

	// Detection is nil for whole-frame analyses and for cached tracks.
	Detection *analyzer.Detection
	Quality   *enf.QualitySummary

	// Reference is the name of the reference file the tracks were
	// correlated with.
	Reference string

	Tracks []TrackResult

	// Err is the reason the video was skipped (or failed).
	Err           error
	FailureReason enf.FailureReason
}

func (r *VideoResult) setErr(err error) {
	r.Err = err
	r.FailureReason = enf.FailureReasonOf(err)
}

// Best returns the track with the highest correlation, or nil.
func (r *VideoResult) Best() *TrackResult {
	var best *TrackResult
	for idx := range r.Tracks {
		t := &r.Tracks[idx]
		if t.Alignment == nil {
			continue
		}
		if best == nil || t.Alignment.Score > best.Alignment.Score {
			best = t
		}
	}
	return best
}

// IsSkip reports whether the error marks a video that was analyzed
// correctly, but cannot be matched.
func IsSkip(err error) bool {
	switch enf.FailureReasonOf(err) {
	case enf.FailureReasonInsufficientData,
		enf.FailureReasonNoENF,
		enf.FailureReasonReferenceDataMissing:
		return true
	}
	return false
}

// intensities are the stored outputs of the video processing.
type intensities struct {
	rows         [][]float64
	regionIDs    []int
	meanPerFrame []float64
}

// ProcessVideo analyzes the video at the path. A video that is skipped
// (see IsSkip) is reported through VideoResult.Err only; any other
// failure is returned as well.
func (p *Pipeline) ProcessVideo(
	ctx context.Context,
	path string,
) (_ret *VideoResult, _err error) {
	logger.Tracef(ctx, "ProcessVideo(%q)", path)
	defer func() { logger.Tracef(ctx, "/ProcessVideo(%q): %v", path, _err) }()

	result := &VideoResult{Path: path}
	data, err := p.loadOrProcess(ctx, path, result)
	if err != nil {
		return p.finish(ctx, result, err)
	}
	return p.finish(ctx, result, p.analyze(ctx, result, data))
}

// AnalyzeDataset repeats the ENF analysis of a stored video dataset.
func (p *Pipeline) AnalyzeDataset(
	ctx context.Context,
	videoDatasetID int64,
) (_ret *VideoResult, _err error) {
	logger.Tracef(ctx, "AnalyzeDataset(%d)", videoDatasetID)
	defer func() { logger.Tracef(ctx, "/AnalyzeDataset(%d): %v", videoDatasetID, _err) }()

	result := &VideoResult{}
	ds, err := p.Store.VideoDataset(ctx, videoDatasetID)
	if err != nil {
		result.setErr(err)
		return result, err
	}
	video, err := p.Store.Video(ctx, ds.VideoID)
	if err != nil {
		result.setErr(err)
		return result, err
	}
	result.Path = video.Filename
	result.Video = *video
	result.VideoDataset = *ds

	data, err := p.loadIntensities(ctx, ds.ID)
	if err != nil {
		result.setErr(err)
		return result, err
	}
	return p.finish(ctx, result, p.analyze(ctx, result, data))
}

func (p *Pipeline) finish(
	ctx context.Context,
	result *VideoResult,
	err error,
) (*VideoResult, error) {
	if err == nil {
		return result, nil
	}
	result.setErr(err)
	if IsSkip(err) {
		logger.Warnf(ctx, "skipping %q: %v", result.Path, err)
		return result, nil
	}
	return result, err
}

// Run processes the videos one after another. The failures of single
// videos do not stop the run; they are collected into the returned error.
func (p *Pipeline) Run(
	ctx context.Context,
	paths []string,
) ([]*VideoResult, error) {
	return p.each(ctx, len(paths), func(idx int) (*VideoResult, error) {
		return p.ProcessVideo(ctx, paths[idx])
	})
}

// RunDatasets repeats the ENF analysis of the given stored video
// datasets (of all of them if ids is empty).
func (p *Pipeline) RunDatasets(
	ctx context.Context,
	ids []int64,
) ([]*VideoResult, error) {
	if len(ids) == 0 {
		datasets, err := p.Store.VideoDatasets(ctx, 0)
		if err != nil {
			return nil, err
		}
		for _, ds := range datasets {
			ids = append(ids, ds.ID)
		}
	}
	return p.each(ctx, len(ids), func(idx int) (*VideoResult, error) {
		return p.AnalyzeDataset(ctx, ids[idx])
	})
}

func (p *Pipeline) each(
	ctx context.Context,
	count int,
	fn func(idx int) (*VideoResult, error),
) ([]*VideoResult, error) {
	var (
		results []*VideoResult
		mErr    *multierror.Error
	)
	for idx := 0; idx < count; idx++ {
		if err := ctx.Err(); err != nil {
			mErr = multierror.Append(mErr, enf.Cancelled(err))
			break
		}
		startedAt := time.Now()
		result, err := fn(idx)
		results = append(results, result)
		logger.Infof(ctx, "%d/%d: %q done in %v: %v", idx+1, count, result.Path, time.Since(startedAt), result.FailureReason)
		if err == nil {
			continue
		}
		mErr = multierror.Append(mErr, fmt.Errorf("%q: %w", result.Path, err))
		if result.FailureReason == enf.FailureReasonCancelled {
			break
		}
	}
	return results, mErr.ErrorOrNil()
}

// loadOrProcess loads the intensities of the video from the storage, or
// processes the video if there are none (or FlushVideoData is set).
func (p *Pipeline) loadOrProcess(
	ctx context.Context,
	path string,
	result *VideoResult,
) (*intensities, error) {
	if !p.Config.FlushVideoData {
		data, err := p.cachedIntensities(ctx, path, result)
		switch {
		case err == nil:
			logger.Infof(ctx, "using the stored intensities of video dataset %d", result.VideoDataset.ID)
			return data, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}
	return p.processVideo(ctx, path, result)
}

func (p *Pipeline) cachedIntensities(
	ctx context.Context,
	path string,
	result *VideoResult,
) (*intensities, error) {
	video, err := p.Store.VideoByFilename(ctx, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	datasets, err := p.Store.VideoDatasets(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	for idx := len(datasets) - 1; idx >= 0; idx-- {
		ds := datasets[idx]
		if ds.Superpixel != p.Config.Superpixel {
			continue
		}
		data, err := p.loadIntensities(ctx, ds.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Video = *video
		result.VideoDataset = ds
		return data, nil
	}
	return nil, fmt.Errorf("no stored intensities of %q: %w", video.Filename, storage.ErrNotFound)
}

func (p *Pipeline) loadIntensities(
	ctx context.Context,
	videoDatasetID int64,
) (*intensities, error) {
	rows, err := p.Store.Artifact(ctx, videoDatasetID, storage.ArtifactMeanPerRegion)
	if err != nil {
		return nil, err
	}
	ids, err := p.Store.Artifact(ctx, videoDatasetID, storage.ArtifactRegionIDs)
	if err != nil {
		return nil, err
	}
	meanPerFrame, err := p.Store.Artifact(ctx, videoDatasetID, storage.ArtifactMeanPerFrame)
	if err != nil {
		return nil, err
	}

	data := &intensities{
		rows:         make([][]float64, rows.Rows),
		regionIDs:    make([]int, len(ids.Values)),
		meanPerFrame: meanPerFrame.Values,
	}
	for idx := range data.rows {
		data.rows[idx] = rows.Row(idx)
	}
	for idx, v := range ids.Values {
		data.regionIDs[idx] = int(v)
	}
	return data, nil
}

func (p *Pipeline) processVideo(
	ctx context.Context,
	path string,
	result *VideoResult,
) (*intensities, error) {
	src, err := p.OpenSource(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", path, err)
	}
	defer src.Close()

	info, err := src.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get the information about %q: %w", path, err)
	}
	recordedAt := info.RecordedAt
	if recordedAt.IsZero() {
		recordedAt, _ = frame.RecordedAtFromName(path)
	}
	if recordedAt.IsZero() {
		logger.Warnf(ctx, "unknown recording time of %q; the matching difference will not be computed", path)
	}

	// a passband the frame rate cannot carry fails before any frame is decoded
	if _, err := analyzer.New(p.Config.Analyzer(info.FPSReal, info.FPS)); err != nil {
		return nil, err
	}

	vpCfg, err := p.Config.VideoProcessor()
	if err != nil {
		return nil, err
	}
	processed, err := videoprocessor.Process(ctx, src, vpCfg)
	if err != nil {
		return nil, err
	}
	result.Processing = processed

	video := storage.Video{
		Filename:          filepath.Base(path),
		Duration:          info.Duration(),
		ExpectedFrequency: p.Config.Analyzer(info.FPSReal, info.FPS).Expected(),
		FPS:               info.FPS,
		FPSReal:           info.FPSReal,
		TotalFrames:       info.TotalFrames,
		Motion:            vpCfg.MotionThreshold > 0,
		RecordedAt:        recordedAt,
	}
	video.ID, err = p.Store.UpsertVideo(ctx, video)
	if err != nil {
		return nil, err
	}
	result.Video = video

	var hint string
	if c := processed.Correction; c != nil {
		hint = fmt.Sprintf("lightness threshold %v is above the brightest spot %d, replaced by %v", c.Requested, c.Brightest, c.Applied)
	}
	ds := storage.VideoDataset{
		VideoID:            video.ID,
		RunID:              p.RunID,
		Superpixel:         p.Config.Superpixel,
		RegionSize:         processed.Segmentation.RegionSize,
		Regions:            processed.Segmentation.Count(),
		SelectedRegions:    processed.Series.Regions(),
		LightnessThreshold: processed.Threshold,
		MotionThreshold:    vpCfg.MotionThreshold,
		StartFrame:         processed.FirstIndex,
		Frames:             processed.Frames,
		SkippedFrames:      processed.Skipped,
		Hint:               hint,
	}
	ds.ID, err = p.Store.AddVideoDataset(ctx, ds)
	if err != nil {
		return nil, err
	}
	result.VideoDataset = ds
	if ds.SelectedRegions == 0 || processed.Frames == 0 {
		return nil, enf.InsufficientDataf("no steady region above the lightness threshold %v in %d frames", processed.Threshold, processed.Frames)
	}

	data := &intensities{
		regionIDs:    processed.Series.IDs,
		meanPerFrame: processed.MeanPerFrame,
	}
	if data.rows, err = processed.Series.Matrix(enf.AggregateMean); err != nil {
		return nil, err
	}
	medians, err := processed.Series.Matrix(enf.AggregateMedian)
	if err != nil {
		return nil, err
	}
	if err := p.saveIntensities(ctx, ds.ID, data, medians); err != nil {
		return nil, err
	}
	logger.Infof(ctx, "stored %d regions of %d frames as video dataset %d", len(data.rows), processed.Frames, ds.ID)
	return data, nil
}

func (p *Pipeline) saveIntensities(
	ctx context.Context,
	videoDatasetID int64,
	data *intensities,
	medians [][]float64,
) error {
	means, err := storage.MatrixFromRows(data.rows)
	if err != nil {
		return err
	}
	medianMatrix, err := storage.MatrixFromRows(medians)
	if err != nil {
		return err
	}
	ids := make([]float64, len(data.regionIDs))
	for idx, id := range data.regionIDs {
		ids[idx] = float64(id)
	}

	var total uint64
	for _, artifact := range []struct {
		name   string
		matrix storage.Matrix
	}{
		{storage.ArtifactMeanPerRegion, means},
		{storage.ArtifactMedianPerRegion, medianMatrix},
		{storage.ArtifactRegionIDs, storage.Vector(ids)},
		{storage.ArtifactMeanPerFrame, storage.Vector(data.meanPerFrame)},
	} {
		n, err := p.Store.SaveArtifact(ctx, videoDatasetID, artifact.name, artifact.matrix)
		if err != nil {
			return err
		}
		total += n
	}
	logger.Debugf(ctx, "stored %d bytes of intensities", total)
	return nil
}
