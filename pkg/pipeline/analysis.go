package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/calvan/enf-analysis/pkg/analyzer"
	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/interpolation"
	"github.com/calvan/enf-analysis/pkg/quality"
	"github.com/calvan/enf-analysis/pkg/reference"
	"github.com/calvan/enf-analysis/pkg/storage"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// Track names one frequency estimate of a video.
type Track string

const (
	// TrackRepresentative is the mean of the per-region max-frequency
	// tracks (superpixel analyses only).
	TrackRepresentative = Track("representative")
	TrackWeighted       = Track("weighted")
	TrackMaxAmplitude   = Track("max_amplitude")
	TrackQuadratic      = Track("quadratic")
)

// Tracks lists every track in the order of correlation.
var Tracks = []Track{
	TrackRepresentative,
	TrackWeighted,
	TrackMaxAmplitude,
	TrackQuadratic,
}

func (t Track) artifactName() string {
	switch t {
	case TrackRepresentative:
		return storage.ArtifactRepresentative
	case TrackWeighted:
		return storage.ArtifactWeighted
	case TrackMaxAmplitude:
		return storage.ArtifactMaxAmplitude
	case TrackQuadratic:
		return storage.ArtifactQuadratic
	default:
		return string(t)
	}
}

// TrackResult is the alignment of one track against the reference.
type TrackResult struct {
	Track Track

	// Values is the track without the skipped leading seconds; gaps
	// are interpolated.
	Values enf.FrequencyTrack

	// Alignment is nil if the correlation failed (see Err).
	Alignment *enf.AlignmentResult

	// MatchedAt is the reference time of the first value of the track.
	MatchedAt time.Time

	// MatchingDiff is the amount of seconds between MatchedAt and the
	// recording time; nil if the recording time is unknown.
	MatchingDiff *int

	ENFDatasetID int64
	Err          error
}

type extraction struct {
	tracks map[Track]enf.FrequencyTrack

	// signal is the filtered aggregate; nil if the tracks were cached.
	signal []float64
}

func (e *extraction) longest() int {
	var result int
	for _, track := range e.tracks {
		result = max(result, len(track))
	}
	return result
}

func (p *Pipeline) newAnalyzer(video storage.Video) (*analyzer.Analyzer, error) {
	cfg := p.Config.Analyzer(video.FPSReal, video.FPS)
	if video.ExpectedFrequency > 0 {
		cfg.ExpectedFrequency = video.ExpectedFrequency
	}
	return analyzer.New(cfg)
}

func (p *Pipeline) analyze(
	ctx context.Context,
	result *VideoResult,
	data *intensities,
) (_err error) {
	logger.Tracef(ctx, "analyze")
	defer func() { logger.Tracef(ctx, "/analyze: %v", _err) }()

	a, err := p.newAnalyzer(result.Video)
	if err != nil {
		return err
	}

	ext, err := p.extract(ctx, a, result, data)
	if err != nil {
		if reason := enf.FailureReasonOf(err); reason != enf.FailureReasonCancelled {
			rec := p.enfDataset(result, TrackRepresentative)
			rec.Comment = fmt.Sprint(p.Config.DetectionWindow)
			rec.FailureReason = reason
			if _, recErr := p.Store.AddENFDataset(ctx, rec); recErr != nil {
				return errors.Join(err, recErr)
			}
		}
		return err
	}
	if ext.signal != nil {
		p.plotExtraction(ctx, a, result, ext)
	}

	ref, name, err := p.loadReference(ctx, result.Video.RecordedAt, ext.longest())
	result.Reference = name
	if err != nil {
		for _, track := range Tracks {
			if _, ok := ext.tracks[track]; !ok {
				continue
			}
			rec := p.enfDataset(result, track)
			rec.CSV = name
			rec.Comment = p.comment(track)
			rec.FailureReason = enf.FailureReasonOf(err)
			if _, recErr := p.Store.AddENFDataset(ctx, rec); recErr != nil {
				return errors.Join(err, recErr)
			}
		}
		return err
	}

	for _, track := range Tracks {
		values, ok := ext.tracks[track]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return enf.Cancelled(err)
		}
		tr, err := p.correlate(ctx, a, result, ref, track, values)
		if err != nil {
			return err
		}
		result.Tracks = append(result.Tracks, *tr)
	}

	if best := result.Best(); best != nil {
		logger.Infof(ctx, "%q: best track %s: %s, matched at %v", result.Path, best.Track, best.Alignment, best.MatchedAt)
	}
	return nil
}

// extract computes the frequency tracks, or loads them from the storage
// unless FlushENFData is set.
func (p *Pipeline) extract(
	ctx context.Context,
	a *analyzer.Analyzer,
	result *VideoResult,
	data *intensities,
) (*extraction, error) {
	if !p.Config.FlushENFData {
		cached, err := p.cachedTracks(ctx, result)
		switch {
		case err == nil:
			logger.Infof(ctx, "using the stored ENF tracks of video dataset %d", result.VideoDataset.ID)
			return cached, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}

	ext := &extraction{tracks: map[Track]enf.FrequencyTrack{}}
	var (
		extracted *analyzer.Extraction
		err       error
	)
	if p.Config.Superpixel {
		detection, err := a.DetectENF(ctx, data.rows)
		if err != nil {
			return nil, err
		}
		result.Detection = detection
		result.Quality = detection.Quality
		if !quality.HasENF(detection.Quality) {
			return nil, fmt.Errorf("%w: median correlation %v is below %v", enf.ErrNoENF, detection.Quality.Median, quality.ENFPresenceThreshold)
		}
		ext.tracks[TrackRepresentative] = detection.Representative
		extracted, err = a.ExtractENF(ctx, data.rows, p.mode)
		if err != nil {
			return nil, err
		}
	} else {
		extracted, err = a.ExtractFromSignal(ctx, data.meanPerFrame)
		if err != nil {
			return nil, err
		}
	}
	ext.signal = extracted.Signal
	ext.tracks[TrackWeighted] = extracted.Weighted
	ext.tracks[TrackMaxAmplitude] = extracted.Max
	ext.tracks[TrackQuadratic] = extracted.Quadratic

	if err := p.saveTracks(ctx, result.VideoDataset.ID, ext); err != nil {
		return nil, err
	}
	return ext, nil
}

func (p *Pipeline) expectedTracks() []Track {
	if p.Config.Superpixel {
		return Tracks
	}
	return Tracks[1:]
}

func (p *Pipeline) cachedTracks(
	ctx context.Context,
	result *VideoResult,
) (*extraction, error) {
	id := result.VideoDataset.ID
	ext := &extraction{tracks: map[Track]enf.FrequencyTrack{}}
	for _, track := range p.expectedTracks() {
		m, err := p.Store.Artifact(ctx, id, track.artifactName())
		if err != nil {
			return nil, err
		}
		ext.tracks[track] = m.Values
	}
	if !p.Config.Superpixel {
		return ext, nil
	}

	records, err := p.Store.ENFDatasets(ctx, id)
	if err != nil {
		return nil, err
	}
	for idx := len(records) - 1; idx >= 0; idx-- {
		if q := records[idx].Quality; q != nil {
			result.Quality = q
			return ext, nil
		}
	}
	return nil, fmt.Errorf("no stored quality of video dataset %d: %w", id, storage.ErrNotFound)
}

func (p *Pipeline) saveTracks(
	ctx context.Context,
	videoDatasetID int64,
	ext *extraction,
) error {
	for track, values := range ext.tracks {
		if _, err := p.Store.SaveArtifact(ctx, videoDatasetID, track.artifactName(), storage.Vector(values)); err != nil {
			return err
		}
	}
	if _, err := p.Store.SaveArtifact(ctx, videoDatasetID, storage.ArtifactFilteredSignal, storage.Vector(ext.signal)); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) enfDataset(result *VideoResult, track Track) storage.ENFDataset {
	return storage.ENFDataset{
		VideoDatasetID: result.VideoDataset.ID,
		RunID:          p.RunID,
		Track:          string(track),
		BandpassOrder:  p.Config.BandpassOrder,
		BandpassWidth:  p.Config.BandpassHalfWidth,
		Quality:        result.Quality,
	}
}

// comment is "<window> <track>", followed by ", <skip seconds>" if any
// seconds are skipped.
func (p *Pipeline) comment(track Track) string {
	window := p.Config.ExtractionWindow
	if track == TrackRepresentative {
		window = p.Config.DetectionWindow
	}
	result := fmt.Sprintf("%d %s", window, track)
	if p.Config.SkipSeconds > 0 {
		result += fmt.Sprintf(", %d", p.Config.SkipSeconds)
	}
	return result
}

// correlate aligns one track and records the outcome. Only storage
// failures are returned; the failure of the correlation itself is kept
// in TrackResult.Err.
func (p *Pipeline) correlate(
	ctx context.Context,
	a *analyzer.Analyzer,
	result *VideoResult,
	ref *reference.Series,
	track Track,
	values enf.FrequencyTrack,
) (*TrackResult, error) {
	tr := &TrackResult{Track: track}
	rec := p.enfDataset(result, track)
	rec.CSV = result.Reference
	rec.Comment = p.comment(track)

	tr.Err = p.align(ctx, a, result, ref, tr, values)
	if tr.Err != nil {
		logger.Warnf(ctx, "unable to align the %s track of %q: %v", track, result.Path, tr.Err)
		rec.FailureReason = enf.FailureReasonOf(tr.Err)
	} else {
		score := enf.Round4(tr.Alignment.Score)
		offset := tr.Alignment.Offset
		rec.MaxCorrelation = &score
		rec.MatchingOffset = &offset
		rec.MatchingDiff = tr.MatchingDiff
		logger.Infof(ctx, "%s: %s, matched at %v (%s)", track, tr.Alignment, tr.MatchedAt, rec.Comment)
	}

	var err error
	tr.ENFDatasetID, err = p.Store.AddENFDataset(ctx, rec)
	if err != nil {
		return nil, err
	}
	if tr.Alignment != nil {
		name := storage.ArtifactCorrelationCurve + "_" + string(track)
		if _, err := p.Store.SaveArtifact(ctx, result.VideoDataset.ID, name, storage.Vector(tr.Alignment.Correlations)); err != nil {
			return nil, err
		}
		p.plotAlignment(ctx, result, tr)
	}
	return tr, nil
}

func (p *Pipeline) align(
	ctx context.Context,
	a *analyzer.Analyzer,
	result *VideoResult,
	ref *reference.Series,
	tr *TrackResult,
	values enf.FrequencyTrack,
) error {
	skip := p.Config.SkipSeconds
	if len(values) <= skip {
		return enf.InsufficientDataf("the %s track has %d values, but %d are skipped", tr.Track, len(values), skip)
	}
	tr.Values = fillGaps(values[skip:])

	alignment, err := a.Correlate(ctx, p.correlator, tr.Values, ref.Values)
	if err != nil {
		return err
	}
	tr.Alignment = alignment
	tr.MatchedAt = ref.Times[alignment.Offset]
	if recordedAt := result.Video.RecordedAt; !recordedAt.IsZero() {
		diff := reference.MatchingDiff(recordedAt, tr.MatchedAt, skip)
		tr.MatchingDiff = &diff
	}
	return nil
}

// fillGaps returns a copy of the track with NaN values interpolated.
func fillGaps(track []float64) enf.FrequencyTrack {
	result := slices.Clone(track)
	missing := make([]bool, len(result))
	for idx, v := range result {
		missing[idx] = math.IsNaN(v)
	}
	interpolation.Fill(result, missing, 0, interpolation.NewLinear())
	return result
}
