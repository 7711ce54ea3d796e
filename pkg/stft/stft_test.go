package stft

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(frequency, sampleRate float64, n int) []float64 {
	result := make([]float64, n)
	for idx := range result {
		result[idx] = math.Sin(2 * math.Pi * frequency * float64(idx) / sampleRate)
	}
	return result
}

func TestConfig(t *testing.T) {
	valid := Config{SampleRate: 30, Hop: 30, WindowLength: 256, FFTSize: 8192, Window: WindowHann}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Config){
		"sample rate": func(c *Config) { c.SampleRate = 0 },
		"hop":         func(c *Config) { c.Hop = 0 },
		"window":      func(c *Config) { c.WindowLength = 20 },
		"fft size":    func(c *Config) { c.FFTSize = 128 },
		"function":    func(c *Config) { c.Window = WindowUndefined },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), enf.ErrConfiguration)
		})
	}

	t.Run("slices", func(t *testing.T) {
		assert.Equal(t, 21, valid.Slices(600))
		assert.Equal(t, 0, valid.Slices(255))
		assert.Equal(t, 10, valid.Slices(256))
	})

	assert.InDelta(t, 30.0/8192, valid.BinWidth(), 1e-12)
	freqs := valid.Frequencies()
	assert.Len(t, freqs, 4097)
	assert.Equal(t, 15.0, freqs[4096])
}

func TestEstimator_Sinusoid(t *testing.T) {
	ctx := context.Background()
	const sampleRate = 30.0
	e, err := NewEstimator(sampleRate, 30, 256, DefaultFFTSize, 10, 0.2)
	require.NoError(t, err)
	binWidth := sampleRate / DefaultFFTSize

	for _, frequency := range []float64{9.9, 10, 10.07} {
		t.Run(fmt.Sprintf("%v_Hz", frequency), func(t *testing.T) {
			signal := sine(frequency, sampleRate, 600)
			estimates, err := e.Estimate(ctx, signal)
			require.NoError(t, err)
			require.Len(t, estimates.Max, 21)
			require.Len(t, estimates.Weighted, 21)
			require.Len(t, estimates.Quadratic, 21)

			for slice, v := range estimates.Max {
				assert.InDelta(t, frequency, v, binWidth, "slice %d", slice)
			}
			// the slices at the edges only see half a window, and the band
			// truncates the main lobe unless the tone is centered
			for slice := 5; slice < 16; slice++ {
				v := estimates.Weighted[slice]
				if frequency == e.Expected {
					assert.InDelta(t, frequency, v, binWidth, "slice %d", slice)
				}
				assert.Greater(t, v, e.Low())
				assert.Less(t, v, e.High())
			}
			for slice, v := range estimates.Quadratic {
				assert.False(t, math.IsNaN(v), "slice %d", slice)
				assert.Greater(t, v, e.Low()-binWidth)
				assert.Less(t, v, e.High()+binWidth)
			}

			maxOnly, err := e.MaxTrack(ctx, signal)
			require.NoError(t, err)
			assert.Equal(t, estimates.Max, maxOnly)
		})
	}
}

func TestEstimator_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := NewEstimator(30, 30, 256, DefaultFFTSize, 14.9, 0.2)
	assert.ErrorIs(t, err, enf.ErrConfiguration)
	_, err = NewEstimator(30, 30, 256, DefaultFFTSize, 10, 0)
	assert.ErrorIs(t, err, enf.ErrConfiguration)
	_, err = NewEstimator(30, 0, 256, DefaultFFTSize, 10, 0.2)
	assert.ErrorIs(t, err, enf.ErrConfiguration)

	e, err := NewEstimator(30, 30, 256, DefaultFFTSize, 10, 0.2)
	require.NoError(t, err)
	_, err = e.Estimate(ctx, make([]float64, 100))
	assert.ErrorIs(t, err, enf.ErrInsufficientData)

	cancelledCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Estimate(cancelledCtx, make([]float64, 600))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEstimator_Silence(t *testing.T) {
	e, err := NewEstimator(30, 30, 256, DefaultFFTSize, 10, 0.2)
	require.NoError(t, err)
	estimates, err := e.Estimate(context.Background(), make([]float64, 300))
	require.NoError(t, err)
	for _, v := range estimates.Weighted {
		assert.True(t, math.IsNaN(v))
	}
}

func TestQuadraticFrequency(t *testing.T) {
	frequencies := []float64{0, 1, 2, 3, 4, 5}

	t.Run("symmetric", func(t *testing.T) {
		magnitudes := []float64{1, 1, 10, 100, 10, 1}
		mPeak := 20 * math.Log10(100)
		assert.InDelta(t, 3+mPeak/8, quadraticFrequency(frequencies, magnitudes, 1, 6, 8), 1e-9)
	})

	t.Run("skewed", func(t *testing.T) {
		magnitudes := []float64{1, 1, 10, 100, 1, 1}
		mPrev, mPeak, mNext := 20.0, 40.0, 0.0
		p := 0.5 * (mPrev - mNext) / (mPrev - 2*mPeak + mNext)
		assert.InDelta(t, 3+(mPeak+p)/8, quadraticFrequency(frequencies, magnitudes, 1, 6, 8), 1e-9)
	})

	t.Run("peak on the band edge", func(t *testing.T) {
		magnitudes := []float64{1, 100, 10, 1, 1, 1}
		assert.Equal(t, 1.0, quadraticFrequency(frequencies, magnitudes, 1, 6, 8))
		magnitudes = []float64{1, 1, 1, 1, 10, 100}
		assert.Equal(t, 5.0, quadraticFrequency(frequencies, magnitudes, 1, 6, 8))
	})

	t.Run("empty band", func(t *testing.T) {
		assert.True(t, math.IsNaN(quadraticFrequency(frequencies, make([]float64, 6), 0, 0, 8)))
	})
}

func TestBandBins(t *testing.T) {
	frequencies := []float64{0, 1, 2, 3, 4, 5}
	first, last := bandBins(frequencies, 1, 4)
	assert.Equal(t, 2, first)
	assert.Equal(t, 4, last)
	first, last = bandBins(frequencies, 1.1, 1.9)
	assert.Equal(t, first, last)
}

func TestSpectrum(t *testing.T) {
	signal := sine(8, 32, 500)
	frequencies, magnitudes, err := Spectrum(signal, 32)
	require.NoError(t, err)
	require.Len(t, frequencies, 257)
	assert.Equal(t, 16.0, frequencies[256])
	assert.InDelta(t, 8, frequencies[argmax(magnitudes)], 32.0/512)

	_, _, err = Spectrum(nil, 32)
	assert.Error(t, err)
}

func TestSpectrogram(t *testing.T) {
	cfg := Config{SampleRate: 30, Hop: 30, WindowLength: 256, FFTSize: 4096, Window: WindowHann}
	s, err := Compute(context.Background(), sine(10, 30, 600), cfg)
	require.NoError(t, err)
	assert.Equal(t, 21, s.Slices())
	for _, v := range s.MaxFrequency() {
		assert.InDelta(t, 10, v, cfg.BinWidth())
	}
	for _, v := range s.WeightedFrequency(9.8, 10.2)[5:16] {
		assert.InDelta(t, 10, v, cfg.BinWidth())
	}
	assert.Len(t, s.QuadraticFrequency(9.8, 10.2), 21)
}

func BenchmarkEstimator_Estimate(b *testing.B) {
	ctx := context.Background()
	e, err := NewEstimator(30, 30, 512, DefaultFFTSize, 10, 0.2)
	require.NoError(b, err)
	for _, seconds := range []int{60, 600} {
		signal := sine(10, 30, seconds*30)
		b.Run(fmt.Sprintf("%ds", seconds), func(b *testing.B) {
			for range b.N {
				_, _ = e.Estimate(ctx, signal)
			}
		})
	}
}
