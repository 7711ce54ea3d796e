package stft

import (
	"context"
	"fmt"
	"math"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// Estimates holds every frequency track derived from one series.
type Estimates struct {
	// Max is the strongest bin of the Hann spectrum over all frequencies.
	Max enf.FrequencyTrack

	// Weighted is the energy-weighted centroid within the passband.
	Weighted enf.FrequencyTrack

	// Quadratic is the parabola-refined peak of the boxcar spectrum
	// within the passband.
	Quadratic enf.FrequencyTrack
}

// Estimator derives frequency tracks around an expected frequency.
type Estimator struct {
	SampleRate   float64
	Hop          int
	WindowLength int
	FFTSize      int

	Expected  float64
	HalfWidth float64
}

func NewEstimator(
	sampleRate float64,
	hop int,
	windowLength int,
	fftSize int,
	expected float64,
	halfWidth float64,
) (*Estimator, error) {
	e := &Estimator{
		SampleRate:   sampleRate,
		Hop:          hop,
		WindowLength: windowLength,
		FFTSize:      fftSize,
		Expected:     expected,
		HalfWidth:    halfWidth,
	}
	if err := e.config(WindowHann).Validate(); err != nil {
		return nil, err
	}
	if halfWidth <= 0 {
		return nil, enf.Configurationf("passband half-width must be positive: got %v", halfWidth)
	}
	if expected-halfWidth <= 0 || expected+halfWidth >= sampleRate/2 {
		return nil, enf.Configurationf("passband %v±%v Hz is outside of (0, %v) Hz", expected, halfWidth, sampleRate/2)
	}
	return e, nil
}

func (e *Estimator) config(w Window) Config {
	return Config{
		SampleRate:   e.SampleRate,
		Hop:          e.Hop,
		WindowLength: e.WindowLength,
		FFTSize:      e.FFTSize,
		Window:       w,
	}
}

func (e *Estimator) Low() float64 {
	return e.Expected - e.HalfWidth
}

func (e *Estimator) High() float64 {
	return e.Expected + e.HalfWidth
}

// MaxTrack returns only the max-magnitude track without keeping the
// spectrogram in memory.
func (e *Estimator) MaxTrack(
	ctx context.Context,
	signal []float64,
) (enf.FrequencyTrack, error) {
	cfg := e.config(WindowHann)
	frequencies := cfg.Frequencies()
	result := make(enf.FrequencyTrack, cfg.Slices(len(signal)))
	err := cfg.forEachSlice(ctx, signal, func(slice int, magnitudes []float64) {
		result[slice] = frequencies[argmax(magnitudes)]
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Estimate computes all frequency tracks of the series.
func (e *Estimator) Estimate(
	ctx context.Context,
	signal []float64,
) (_ret *Estimates, _err error) {
	logger.Tracef(ctx, "Estimate")
	defer func() { logger.Tracef(ctx, "/Estimate: %v", _err) }()

	hann := e.config(WindowHann)
	frequencies := hann.Frequencies()
	first, last := bandBins(frequencies, e.Low(), e.High())
	if first >= last {
		return nil, fmt.Errorf("%w: no FFT bins within %v..%v Hz", enf.ErrConfiguration, e.Low(), e.High())
	}

	slices := hann.Slices(len(signal))
	result := &Estimates{
		Max:       make(enf.FrequencyTrack, slices),
		Weighted:  make(enf.FrequencyTrack, slices),
		Quadratic: make(enf.FrequencyTrack, slices),
	}
	err := hann.forEachSlice(ctx, signal, func(slice int, magnitudes []float64) {
		result.Max[slice] = frequencies[argmax(magnitudes)]
		result.Weighted[slice] = weightedFrequency(frequencies, magnitudes, first, last)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to compute the Hann spectrogram: %w", err)
	}

	err = e.config(WindowBoxcar).forEachSlice(ctx, signal, func(slice int, magnitudes []float64) {
		result.Quadratic[slice] = quadraticFrequency(frequencies, magnitudes, first, last, e.FFTSize)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to compute the boxcar spectrogram: %w", err)
	}

	if nan := countNaN(result.Weighted); nan > 0 {
		logger.Debugf(ctx, "%d of %d slices have no energy within %v..%v Hz", nan, slices, e.Low(), e.High())
	}
	return result, nil
}

func countNaN(values []float64) int {
	count := 0
	for _, v := range values {
		if math.IsNaN(v) {
			count++
		}
	}
	return count
}
