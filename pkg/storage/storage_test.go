package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enf.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)

	version, dirty, err := s.MigrateVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err, "migrations are idempotent")
	defer s.Close()
	version, _, err = s.MigrateVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestVideo(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	v := Video{
		Filename:          "2023-01-05T103000Z.mp4",
		Duration:          90 * time.Second,
		ExpectedFrequency: 10,
		FPS:               30,
		FPSReal:           29.97,
		TotalFrames:       2697,
		Motion:            true,
		RecordedAt:        time.Date(2023, 1, 5, 10, 30, 0, 0, time.UTC),
	}
	id, err := s.UpsertVideo(ctx, v)
	require.NoError(t, err)

	v.Hint = "second pass"
	v.Motion = false
	again, err := s.UpsertVideo(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	loaded, err := s.VideoByFilename(ctx, v.Filename)
	require.NoError(t, err)
	v.ID = id
	assert.Empty(t, cmp.Diff(v, *loaded))

	byID, err := s.Video(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, loaded, byID)

	_, err = s.VideoByFilename(ctx, "missing.mp4")
	assert.True(t, errors.Is(err, ErrNotFound))

	noTime := Video{Filename: "no_time.mp4", FPS: 25, FPSReal: 25}
	_, err = s.UpsertVideo(ctx, noTime)
	require.NoError(t, err)
	loaded, err = s.VideoByFilename(ctx, noTime.Filename)
	require.NoError(t, err)
	assert.True(t, loaded.RecordedAt.IsZero())
}

func TestDatasets(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	videoID, err := s.UpsertVideo(ctx, Video{Filename: "a.mp4", FPS: 30, FPSReal: 30})
	require.NoError(t, err)

	runID := uuid.New()
	d := VideoDataset{
		VideoID:            videoID,
		RunID:              runID,
		Superpixel:         true,
		RegionSize:         40,
		Regions:            120,
		SelectedRegions:    80,
		LightnessThreshold: 120,
		MotionThreshold:    0.2,
		Frames:             900,
		SkippedFrames:      2,
		Hint:               "threshold replaced",
	}
	d.ID, err = s.AddVideoDataset(ctx, d)
	require.NoError(t, err)

	loaded, err := s.VideoDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(d, *loaded))

	all, err := s.VideoDatasets(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]VideoDataset{d}, all))

	_, err = s.VideoDataset(ctx, d.ID+1)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.AddVideoDataset(ctx, VideoDataset{VideoID: videoID + 100, RunID: runID})
	assert.Error(t, err, "the video must exist")

	offset, diff := 1234, -3
	correlation := 0.9876
	records := []ENFDataset{
		{
			VideoDatasetID: d.ID,
			RunID:          runID,
			Track:          "representative",
			BandpassOrder:  8,
			BandpassWidth:  0.2,
			Quality:        &enf.QualitySummary{Max: 0.99, Mean: 0.8, Median: 0.85, TopTwo: 0.97},
			MaxCorrelation: &correlation,
			MatchingOffset: &offset,
			MatchingDiff:   &diff,
			CSV:            "2023-01-05.csv",
			Comment:        "512 representative, 4",
		},
		{
			VideoDatasetID: d.ID,
			RunID:          runID,
			Track:          "representative",
			BandpassOrder:  8,
			BandpassWidth:  0.2,
			Comment:        "512",
			FailureReason:  enf.FailureReasonInsufficientData,
		},
	}
	for idx := range records {
		records[idx].ID, err = s.AddENFDataset(ctx, records[idx])
		require.NoError(t, err)
	}
	loadedENF, err := s.ENFDatasets(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(records, loadedENF))
}

func TestArtifacts(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	m, err := MatrixFromRows([][]float64{{1, 2, 3}, {4, math.NaN(), 6}})
	require.NoError(t, err)
	n, err := s.SaveArtifact(ctx, 7, ArtifactMeanPerRegion, m)
	require.NoError(t, err)
	assert.Equal(t, uint64(6*8), n)

	loaded, err := s.Artifact(ctx, 7, ArtifactMeanPerRegion)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Rows)
	assert.Equal(t, 3, loaded.Cols)
	assert.Equal(t, []float64{1, 2, 3}, loaded.Row(0))
	assert.True(t, math.IsNaN(loaded.Row(1)[1]))

	_, err = s.SaveArtifact(ctx, 7, ArtifactMeanPerRegion, Vector([]float64{5}))
	require.NoError(t, err)
	loaded, err = s.Artifact(ctx, 7, ArtifactMeanPerRegion)
	require.NoError(t, err)
	assert.Equal(t, Vector([]float64{5}), loaded)

	_, err = s.Artifact(ctx, 8, ArtifactMeanPerRegion)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.SaveArtifact(ctx, 7, ArtifactWeighted, Vector([]float64{50.01, 49.99}))
	require.NoError(t, err)
	require.NoError(t, s.DeleteArtifacts(ctx, 7, ArtifactWeighted))
	_, err = s.Artifact(ctx, 7, ArtifactWeighted)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Artifact(ctx, 7, ArtifactMeanPerRegion)
	assert.NoError(t, err)

	require.NoError(t, s.DeleteArtifacts(ctx, 7))
	_, err = s.Artifact(ctx, 7, ArtifactMeanPerRegion)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = MatrixFromRows([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
	_, err = s.SaveArtifact(ctx, 1, "broken", Matrix{Rows: 2, Cols: 2, Values: []float64{1}})
	assert.Error(t, err)
}

func TestArtifacts_Empty(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	empty, err := MatrixFromRows(nil)
	require.NoError(t, err)
	for name, m := range map[string]Matrix{
		ArtifactMeanPerRegion: empty,
		ArtifactRegionIDs:     Vector(nil),
	} {
		n, err := s.SaveArtifact(ctx, 3, name, m)
		require.NoError(t, err, name)
		assert.Zero(t, n)

		loaded, err := s.Artifact(ctx, 3, name)
		require.NoError(t, err, name)
		assert.Equal(t, m.Rows, loaded.Rows)
		assert.Zero(t, loaded.Cols)
		assert.Empty(t, loaded.Values)
	}
}
