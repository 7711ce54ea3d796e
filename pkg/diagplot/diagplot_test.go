package diagplot

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func alignment() *enf.AlignmentResult {
	reference := make([]float64, 200)
	aligned := make([]float64, 200)
	for idx := range reference {
		reference[idx] = 50 + 0.02*math.Sin(float64(idx)/9)
		aligned[idx] = math.NaN()
	}
	for idx := 100; idx < 130; idx++ {
		aligned[idx] = reference[idx] + 0.001
	}
	correlations := make([]float64, 171)
	for idx := range correlations {
		correlations[idx] = math.Cos(float64(idx-100) / 20)
	}
	correlations[3] = math.NaN()
	return &enf.AlignmentResult{
		Offset:       100,
		Score:        1,
		Correlations: correlations,
		Reference:    reference,
		Aligned:      aligned,
	}
}

func TestSegments(t *testing.T) {
	s := Series{X0: 10, Step: 0.5, Values: []float64{1, math.NaN(), math.NaN(), 2, 3, math.Inf(1)}}
	segs := segments(s)
	require.Len(t, segs, 2)
	assert.Len(t, segs[0], 1)
	assert.Equal(t, 10.0, segs[0][0].X)
	assert.Len(t, segs[1], 2)
	assert.Equal(t, 11.5, segs[1][0].X)

	assert.Empty(t, segments(Series{Values: []float64{math.NaN()}}))
}

func TestPlots(t *testing.T) {
	ctx := context.Background()
	result := alignment()

	tracks, err := Tracks("ENF",
		Series{Name: "weighted", Values: []float64{10, 10.01, math.NaN(), 9.99}},
		Series{Name: "max", Values: []float64{10, 10, 10, 10}},
	)
	require.NoError(t, err)
	correlation, err := Correlation(result)
	require.NoError(t, err)
	window, err := Alignment(result, DefaultAlignmentMargin)
	require.NoError(t, err)
	spectrum, err := Spectrum([]float64{0, 1, 2, 3}, []float64{0, 1, 5, 1}, 1.8, 2.2)
	require.NoError(t, err)

	assert.Equal(t, 80.0, window.X.Min)
	assert.Equal(t, 149.0, window.X.Max)

	var buf bytes.Buffer
	_, err = WritePNG(tracks, &buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))

	dir := t.TempDir()
	for name, p := range map[string]*plot.Plot{
		"correlation.png": correlation,
		"alignment.png":   window,
		"spectrum.png":    spectrum,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(ctx, p, path))
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(b, pngMagic), name)
	}
}

func TestPlots_Invalid(t *testing.T) {
	result := alignment()

	_, err := Correlation(&enf.AlignmentResult{})
	assert.Error(t, err)

	_, err = Alignment(result, -1)
	assert.Error(t, err)

	for idx := range result.Aligned {
		result.Aligned[idx] = math.NaN()
	}
	_, err = Alignment(result, 0)
	assert.Error(t, err)

	_, err = Spectrum([]float64{1, 2}, []float64{1}, 0, 1)
	assert.Error(t, err)
}
