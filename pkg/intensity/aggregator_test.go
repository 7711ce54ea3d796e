package intensity

import (
	"context"
	"testing"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/segmenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// columns splits a width x 1 frame into one region per column pair.
func columns(t *testing.T, width int) *segmenter.Segmentation {
	labels := make([]int32, width)
	for idx := range labels {
		labels[idx] = int32(idx / 2)
	}
	seg, err := segmenter.NewSegmentation(width, 1, labels, 2)
	require.NoError(t, err)
	return seg
}

func grayRow(t *testing.T, values ...byte) *frame.Frame {
	f, err := frame.NewGray(len(values), 1, values)
	require.NoError(t, err)
	return f
}

func ptr(v float64) *float64 {
	return &v
}

func TestAggregator_ThresholdAutoCorrection(t *testing.T) {
	ctx := context.Background()
	a, err := NewAggregator(ptr(200), enf.AggregateMean)
	require.NoError(t, err)

	require.NoError(t, a.FirstFrame(ctx, grayRow(t, 10, 20, 30, 40, 50, 100), columns(t, 6)))

	correction := a.Correction()
	require.NotNil(t, correction)
	assert.Equal(t, 200.0, correction.Requested)
	assert.Equal(t, uint8(100), correction.Brightest)
	assert.Equal(t, 35.0, correction.Applied)
	assert.Equal(t, 35.0, a.Threshold())

	// region 2 averages exactly the threshold and is not selected
	assert.Equal(t, []int{3}, a.SelectedIDs())
	assert.Equal(t, []int{1, 2}, a.DisabledIDs())
}

func TestAggregator_ThresholdNotCorrected(t *testing.T) {
	ctx := context.Background()
	a, err := NewAggregator(ptr(100), enf.AggregateMean)
	require.NoError(t, err)
	require.NoError(t, a.FirstFrame(ctx, grayRow(t, 10, 20, 30, 40, 50, 100), columns(t, 6)))
	assert.Nil(t, a.Correction())
	assert.Equal(t, 100.0, a.Threshold())
	assert.Empty(t, a.SelectedIDs())
}

func TestAggregator_AutoThreshold(t *testing.T) {
	ctx := context.Background()
	a, err := NewAggregator(nil, enf.AggregateMedian)
	require.NoError(t, err)
	require.NoError(t, a.FirstFrame(ctx, grayRow(t, 10, 20, 30, 40, 50, 100), columns(t, 6)))
	assert.Nil(t, a.Correction())
	assert.Equal(t, 35.0, a.Threshold())
	assert.Equal(t, []int{3}, a.SelectedIDs())
}

func TestAggregator_Series(t *testing.T) {
	ctx := context.Background()
	a, err := NewAggregator(ptr(25), enf.AggregateMean)
	require.NoError(t, err)

	seg := columns(t, 6)
	require.NoError(t, a.FirstFrame(ctx, grayRow(t, 10, 20, 30, 40, 50, 100), seg))
	assert.Equal(t, []int{2, 3}, a.SelectedIDs())

	require.NoError(t, a.NextFrame(ctx, grayRow(t, 10, 20, 20, 60, 50, 110)))
	require.NoError(t, a.SkipFrame(ctx))
	require.NoError(t, a.NextFrame(ctx, grayRow(t, 10, 20, 30, 40, 70, 90)))
	assert.Equal(t, 4, a.Frames())

	series := a.Series(nil)
	assert.Equal(t, []int{2, 3}, series.IDs)
	assert.Equal(t, 4, series.Frames())
	assert.Equal(t, 2, series.Regions())

	// pixels at or below the threshold are ignored: frame 1 of region 2
	// only has the pixel with value 60
	assert.InDeltaSlice(t, []float32{35, 60, 47.5, 35}, series.Mean[0], 1e-6)
	assert.InDeltaSlice(t, []float32{75, 80, 80, 80}, series.Mean[1], 1e-6)
	assert.InDeltaSlice(t, []float32{35, 60, 47.5, 35}, series.Median[0], 1e-6)

	only := a.Series([]int{3})
	assert.Equal(t, []int{3}, only.IDs)
	assert.Equal(t, series.Mean[1], only.Mean[0])

	matrix, err := series.Matrix(enf.AggregateMean)
	require.NoError(t, err)
	assert.Equal(t, 80.0, matrix[1][1])
}

func TestAggregator_FallbackToAllPixels(t *testing.T) {
	ctx := context.Background()
	a, err := NewAggregator(ptr(25), enf.AggregateMean)
	require.NoError(t, err)
	require.NoError(t, a.FirstFrame(ctx, grayRow(t, 30, 40), columns(t, 2)))
	require.NoError(t, a.NextFrame(ctx, grayRow(t, 10, 20)))
	series := a.Series(nil)
	assert.InDeltaSlice(t, []float32{35, 15}, series.Mean[0], 1e-6)
}

func TestAggregator_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := NewAggregator(ptr(300), enf.AggregateMean)
	assert.ErrorIs(t, err, enf.ErrConfiguration)
	_, err = NewAggregator(nil, enf.AggregateUndefined)
	assert.ErrorIs(t, err, enf.ErrConfiguration)

	a, err := NewAggregator(nil, enf.AggregateMean)
	require.NoError(t, err)
	assert.Error(t, a.NextFrame(ctx, grayRow(t, 1, 2)))
	assert.Error(t, a.SkipFrame(ctx))
	require.NoError(t, a.FirstFrame(ctx, grayRow(t, 1, 2), columns(t, 2)))
	assert.Error(t, a.FirstFrame(ctx, grayRow(t, 1, 2), columns(t, 2)))
	assert.Error(t, a.NextFrame(ctx, grayRow(t, 1, 2, 3)))
}

func TestHistogramMedian(t *testing.T) {
	var h [256]int
	h[3], h[7] = 1, 1
	assert.Equal(t, 5.0, histogramMedian(&h, 2))
	h[7] = 2
	assert.Equal(t, 7.0, histogramMedian(&h, 3))

	brightest, median := maxAndMedian([]uint8{1, 2})
	assert.Equal(t, uint8(2), brightest)
	assert.Equal(t, 1.0, median)
}
