// Package storage keeps analysis results in a SQLite database: the
// analyzed videos, the per-run video datasets, the ENF results and the
// numeric artifacts that allow later runs to skip recomputation.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const recordedAtLayout = time.RFC3339

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database and applies migrations.
func Open(
	ctx context.Context,
	path string,
) (_ret *Store, _err error) {
	logger.Tracef(ctx, "Open(%q)", path)
	defer func() { logger.Tracef(ctx, "/Open(%q): %v", path, _err) }()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", path, err)
	}
	// a single connection, so that the pragmas apply to every statement
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to configure %q: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type Video struct {
	ID                int64
	Filename          string
	Duration          time.Duration
	ExpectedFrequency float64
	FPS               int
	FPSReal           float64
	TotalFrames       int
	Motion            bool
	RecordedAt        time.Time
	Hint              string
}

// UpsertVideo stores the video, replacing the record with the same file
// name, and returns its ID.
func (s *Store) UpsertVideo(
	ctx context.Context,
	v Video,
) (int64, error) {
	var recordedAt sql.NullString
	if !v.RecordedAt.IsZero() {
		recordedAt = sql.NullString{String: v.RecordedAt.UTC().Format(recordedAtLayout), Valid: true}
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO videos (
			filename, duration_seconds, expected_frequency, fps, fps_real,
			total_frames, motion, recorded_at, hint
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			duration_seconds = excluded.duration_seconds,
			expected_frequency = excluded.expected_frequency,
			fps = excluded.fps,
			fps_real = excluded.fps_real,
			total_frames = excluded.total_frames,
			motion = excluded.motion,
			recorded_at = excluded.recorded_at,
			hint = excluded.hint
		RETURNING id
	`,
		v.Filename, v.Duration.Seconds(), v.ExpectedFrequency, v.FPS, v.FPSReal,
		v.TotalFrames, v.Motion, recordedAt, v.Hint,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("unable to store video %q: %w", v.Filename, err)
	}
	return id, nil
}

func (s *Store) VideoByFilename(
	ctx context.Context,
	filename string,
) (*Video, error) {
	return s.video(ctx, `WHERE filename = ?`, filename)
}

func (s *Store) Video(
	ctx context.Context,
	id int64,
) (*Video, error) {
	return s.video(ctx, `WHERE id = ?`, id)
}

func (s *Store) video(
	ctx context.Context,
	where string,
	arg any,
) (*Video, error) {
	var (
		v          Video
		duration   float64
		recordedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, duration_seconds, expected_frequency, fps, fps_real,
			total_frames, motion, recorded_at, hint
		FROM videos `+where, arg,
	).Scan(
		&v.ID, &v.Filename, &duration, &v.ExpectedFrequency, &v.FPS, &v.FPSReal,
		&v.TotalFrames, &v.Motion, &recordedAt, &v.Hint,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load video %v: %w", arg, err)
	}
	v.Duration = time.Duration(duration * float64(time.Second))
	if recordedAt.Valid {
		v.RecordedAt, err = time.Parse(recordedAtLayout, recordedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid recording time %q of video %v: %w", recordedAt.String, arg, err)
		}
	}
	return &v, nil
}

// VideoDataset describes one pass over a video: how the regions were
// formed and which of them were kept. Its ID is the experiment ID of the
// artifacts of that pass.
type VideoDataset struct {
	ID                 int64
	VideoID            int64
	RunID              uuid.UUID
	Superpixel         bool
	RegionSize         int
	Regions            int
	SelectedRegions    int
	LightnessThreshold float64
	MotionThreshold    float64
	StartFrame         int
	Frames             int
	SkippedFrames      int
	Hint               string
}

func (s *Store) AddVideoDataset(
	ctx context.Context,
	d VideoDataset,
) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO video_datasets (
			video_id, run_id, superpixel, region_size, regions, selected_regions,
			lightness_threshold, motion_threshold, start_frame, frames, skipped_frames, hint
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.VideoID, d.RunID.String(), d.Superpixel, d.RegionSize, d.Regions, d.SelectedRegions,
		d.LightnessThreshold, d.MotionThreshold, d.StartFrame, d.Frames, d.SkippedFrames, d.Hint,
	)
	if err != nil {
		return 0, fmt.Errorf("unable to store the dataset of video %d: %w", d.VideoID, err)
	}
	return result.LastInsertId()
}

const videoDatasetColumns = `id, video_id, run_id, superpixel, region_size, regions, selected_regions,
	lightness_threshold, motion_threshold, start_frame, frames, skipped_frames, hint`

func scanVideoDataset(row interface{ Scan(...any) error }) (*VideoDataset, error) {
	var (
		d     VideoDataset
		runID string
	)
	err := row.Scan(
		&d.ID, &d.VideoID, &runID, &d.Superpixel, &d.RegionSize, &d.Regions, &d.SelectedRegions,
		&d.LightnessThreshold, &d.MotionThreshold, &d.StartFrame, &d.Frames, &d.SkippedFrames, &d.Hint,
	)
	if err != nil {
		return nil, err
	}
	d.RunID, err = uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run ID %q of video dataset %d: %w", runID, d.ID, err)
	}
	return &d, nil
}

func (s *Store) VideoDataset(
	ctx context.Context,
	id int64,
) (*VideoDataset, error) {
	d, err := scanVideoDataset(s.db.QueryRowContext(ctx,
		`SELECT `+videoDatasetColumns+` FROM video_datasets WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video dataset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load video dataset %d: %w", id, err)
	}
	return d, nil
}

// VideoDatasets returns the datasets of the video (of all videos if
// videoID is zero), oldest first.
func (s *Store) VideoDatasets(
	ctx context.Context,
	videoID int64,
) ([]VideoDataset, error) {
	query := `SELECT ` + videoDatasetColumns + ` FROM video_datasets`
	var args []any
	if videoID != 0 {
		query += ` WHERE video_id = ?`
		args = append(args, videoID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query video datasets: %w", err)
	}
	defer rows.Close()

	var result []VideoDataset
	for rows.Next() {
		d, err := scanVideoDataset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ENFDataset is the outcome of one frequency track of a video dataset.
// Quality is nil if the detection failed; the alignment fields are nil
// if no correlation was done.
type ENFDataset struct {
	ID             int64
	VideoDatasetID int64
	RunID          uuid.UUID
	Track          string
	BandpassOrder  int
	BandpassWidth  float64
	Quality        *enf.QualitySummary
	MaxCorrelation *float64
	MatchingOffset *int
	MatchingDiff   *int
	CSV            string
	Comment        string
	FailureReason  enf.FailureReason
}

func (s *Store) AddENFDataset(
	ctx context.Context,
	e ENFDataset,
) (int64, error) {
	var pMax, pMean, pMedian, pTopTwo sql.NullFloat64
	if e.Quality != nil {
		pMax = sql.NullFloat64{Float64: e.Quality.Max, Valid: true}
		pMean = sql.NullFloat64{Float64: e.Quality.Mean, Valid: true}
		pMedian = sql.NullFloat64{Float64: e.Quality.Median, Valid: true}
		pTopTwo = sql.NullFloat64{Float64: e.Quality.TopTwo, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO enf_datasets (
			video_dataset_id, run_id, track, bandpass_order, bandpass_width,
			p_max, p_mean, p_median, p_top_two,
			max_correlation, matching_offset, matching_diff, csv, comment, failure_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.VideoDatasetID, e.RunID.String(), e.Track, e.BandpassOrder, e.BandpassWidth,
		pMax, pMean, pMedian, pTopTwo,
		e.MaxCorrelation, e.MatchingOffset, e.MatchingDiff, e.CSV, e.Comment, string(e.FailureReason),
	)
	if err != nil {
		return 0, fmt.Errorf("unable to store the ENF dataset of video dataset %d: %w", e.VideoDatasetID, err)
	}
	return result.LastInsertId()
}

// ENFDatasets returns the ENF results of the video dataset, oldest first.
func (s *Store) ENFDatasets(
	ctx context.Context,
	videoDatasetID int64,
) ([]ENFDataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video_dataset_id, run_id, track, bandpass_order, bandpass_width,
			p_max, p_mean, p_median, p_top_two,
			max_correlation, matching_offset, matching_diff, csv, comment, failure_reason
		FROM enf_datasets WHERE video_dataset_id = ? ORDER BY id
	`, videoDatasetID)
	if err != nil {
		return nil, fmt.Errorf("unable to query the ENF datasets of video dataset %d: %w", videoDatasetID, err)
	}
	defer rows.Close()

	var result []ENFDataset
	for rows.Next() {
		var (
			e                             ENFDataset
			runID, failureReason          string
			pMax, pMean, pMedian, pTopTwo sql.NullFloat64
			maxCorrelation                sql.NullFloat64
			matchingOffset, matchingDiff  sql.NullInt64
		)
		err := rows.Scan(
			&e.ID, &e.VideoDatasetID, &runID, &e.Track, &e.BandpassOrder, &e.BandpassWidth,
			&pMax, &pMean, &pMedian, &pTopTwo,
			&maxCorrelation, &matchingOffset, &matchingDiff, &e.CSV, &e.Comment, &failureReason,
		)
		if err != nil {
			return nil, err
		}
		if e.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("invalid run ID %q of ENF dataset %d: %w", runID, e.ID, err)
		}
		e.FailureReason = enf.FailureReason(failureReason)
		if pMax.Valid {
			e.Quality = &enf.QualitySummary{
				Max:    pMax.Float64,
				Mean:   pMean.Float64,
				Median: pMedian.Float64,
				TopTwo: pTopTwo.Float64,
			}
		}
		if maxCorrelation.Valid {
			e.MaxCorrelation = &maxCorrelation.Float64
		}
		if matchingOffset.Valid {
			v := int(matchingOffset.Int64)
			e.MatchingOffset = &v
		}
		if matchingDiff.Valid {
			v := int(matchingDiff.Int64)
			e.MatchingDiff = &v
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
