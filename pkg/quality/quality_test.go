package quality

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wave(n int, phase float64) []float64 {
	result := make([]float64, n)
	for idx := range result {
		result[idx] = 10 + 0.01*math.Sin(float64(idx)/5+phase)
	}
	return result
}

func TestCompute(t *testing.T) {
	ctx := context.Background()

	t.Run("identical", func(t *testing.T) {
		track := wave(100, 0)
		summary, err := Compute(ctx, [][]float64{track, track, track, track})
		require.NoError(t, err)
		assert.Equal(t, 1.0, summary.Max)
		assert.Equal(t, 1.0, summary.Mean)
		assert.Equal(t, 1.0, summary.Median)
		assert.Equal(t, 1.0, summary.TopTwo)
		assert.Len(t, summary.Ranking, 4)
		for idx, score := range summary.Ranking {
			// stable order among equal scores
			assert.Equal(t, idx, score.Index)
		}
		assert.True(t, HasENF(summary))
	})

	t.Run("zero variance excluded", func(t *testing.T) {
		track := wave(100, 0)
		flat := make([]float64, 100)
		for idx := range flat {
			flat[idx] = 10
		}
		withFlat, err := Compute(ctx, [][]float64{track, flat, track, track})
		require.NoError(t, err)
		require.Len(t, withFlat.Ranking, 3)
		for _, score := range withFlat.Ranking {
			assert.NotEqual(t, 1, score.Index)
		}
		assert.Equal(t, 1.0, withFlat.Median)
		assert.Equal(t, 1.0, withFlat.Mean)
	})

	t.Run("ranking", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		noise := make([]float64, 100)
		for idx := range noise {
			noise[idx] = 10 + 0.01*rng.NormFloat64()
		}
		tracks := [][]float64{wave(100, 0), noise, wave(100, 0.1), wave(100, 0.05)}
		summary, err := Compute(ctx, tracks)
		require.NoError(t, err)
		require.Len(t, summary.Ranking, 4)
		assert.Equal(t, 1, summary.Ranking[3].Index)
		assert.ElementsMatch(t, []int{0, 2, 3}, []int{
			summary.Ranking[0].Index,
			summary.Ranking[1].Index,
			summary.Ranking[2].Index,
		})
		assert.Less(t, summary.Ranking[3].Correlation, summary.Ranking[2].Correlation)
		assert.Greater(t, summary.TopTwo, 0.9)
		assert.GreaterOrEqual(t, summary.Max, summary.Median)
		for idx := 1; idx < len(summary.Ranking); idx++ {
			assert.GreaterOrEqual(t, summary.Ranking[idx-1].Correlation, summary.Ranking[idx].Correlation)
		}
		expectedMedian := (summary.Ranking[1].Correlation + summary.Ranking[2].Correlation) / 2
		assert.InDelta(t, expectedMedian, summary.Median, 1e-4)
	})

	t.Run("insufficient", func(t *testing.T) {
		flat := make([]float64, 100)
		_, err := Compute(ctx, [][]float64{wave(100, 0), flat})
		assert.ErrorIs(t, err, enf.ErrInsufficientData)
		_, err = Compute(ctx, nil)
		assert.ErrorIs(t, err, enf.ErrInsufficientData)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := Compute(ctx, [][]float64{wave(100, 0), wave(99, 0)})
		assert.Error(t, err)
	})
}

func TestRepresentative(t *testing.T) {
	nan := math.NaN()
	result := Representative([][]float64{
		{1, nan, nan},
		{3, 4, nan},
	})
	assert.Equal(t, 2.0, result[0])
	assert.Equal(t, 4.0, result[1])
	assert.True(t, math.IsNaN(result[2]))
	assert.Nil(t, Representative(nil))
}

func TestHasENF(t *testing.T) {
	assert.False(t, HasENF(nil))
	assert.False(t, HasENF(&enf.QualitySummary{Median: 0.59}))
	assert.True(t, HasENF(&enf.QualitySummary{Median: 0.6}))
}
