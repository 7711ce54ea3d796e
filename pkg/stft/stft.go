// Package stft computes short-time spectra of intensity series and derives
// per-slice frequency estimates from them.
//
// Segmentation follows the usual zero-boundary convention: the series is
// extended by half a window of zeros on both sides and zero-padded at the
// end to fit a whole number of hops, so slice i is centered at sample
// i*Hop.
package stft

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultFFTSize      = 8192
	DefaultWindowLength = 512
)

type Window int

const (
	WindowUndefined = Window(iota)
	WindowHann
	WindowBoxcar
)

func (w Window) String() string {
	switch w {
	case WindowUndefined:
		return "undefined"
	case WindowHann:
		return "hann"
	case WindowBoxcar:
		return "boxcar"
	default:
		return fmt.Sprintf("unknown_%d", int(w))
	}
}

func (w Window) coefficients(length int) ([]float64, error) {
	switch w {
	case WindowHann:
		return window.Hann(length), nil
	case WindowBoxcar:
		return window.Rectangular(length), nil
	default:
		return nil, enf.Configurationf("unsupported window %v", w)
	}
}

type Config struct {
	// SampleRate is the real frame rate; bin k is at k*SampleRate/FFTSize Hz.
	SampleRate float64

	// Hop is the distance between slices in samples (the nominal frame
	// rate, so that slices are one second apart).
	Hop int

	// WindowLength is the amount of samples per slice.
	WindowLength int

	// FFTSize is the zero-padded transform length.
	FFTSize int

	Window Window
}

func (cfg Config) Validate() error {
	if cfg.SampleRate <= 0 {
		return enf.Configurationf("sample rate must be positive: got %v", cfg.SampleRate)
	}
	if cfg.Hop <= 0 {
		return enf.Configurationf("hop must be positive: got %d", cfg.Hop)
	}
	if cfg.WindowLength < cfg.Hop {
		return enf.Configurationf("window length %d must not be shorter than the hop %d", cfg.WindowLength, cfg.Hop)
	}
	if cfg.FFTSize < cfg.WindowLength {
		return enf.Configurationf("FFT size %d must not be smaller than the window length %d", cfg.FFTSize, cfg.WindowLength)
	}
	if _, err := cfg.Window.coefficients(1); err != nil {
		return err
	}
	return nil
}

// Frequencies returns the frequency in Hz of every one-sided bin.
func (cfg Config) Frequencies() []float64 {
	result := make([]float64, cfg.FFTSize/2+1)
	for k := range result {
		result[k] = float64(k) * cfg.SampleRate / float64(cfg.FFTSize)
	}
	return result
}

// BinWidth returns the distance between neighboring bins in Hz.
func (cfg Config) BinWidth() float64 {
	return cfg.SampleRate / float64(cfg.FFTSize)
}

// Slices returns the amount of slices produced for a series of n samples.
func (cfg Config) Slices(n int) int {
	if n < cfg.WindowLength {
		return 0
	}
	padded := n + 2*(cfg.WindowLength/2)
	if rem := (padded - cfg.WindowLength) % cfg.Hop; rem != 0 {
		padded += cfg.Hop - rem
	}
	return (padded-cfg.WindowLength)/cfg.Hop + 1
}

// forEachSlice calls fn with the one-sided magnitude spectrum of every
// slice. The magnitudes are scaled by the window sum and reused between
// calls.
func (cfg Config) forEachSlice(
	ctx context.Context,
	signal []float64,
	fn func(slice int, magnitudes []float64),
) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(signal) < cfg.WindowLength {
		return enf.InsufficientDataf("the series has %d samples, but the window needs %d", len(signal), cfg.WindowLength)
	}

	coeffs, err := cfg.Window.coefficients(cfg.WindowLength)
	if err != nil {
		return err
	}
	var windowSum float64
	for _, c := range coeffs {
		windowSum += c
	}

	slices := cfg.Slices(len(signal))
	half := cfg.WindowLength / 2
	sample := func(idx int) float64 {
		idx -= half
		if idx < 0 || idx >= len(signal) {
			return 0
		}
		return signal[idx]
	}

	// fourier.FFT keeps internal state and must not be shared between goroutines
	transform := fourier.NewFFT(cfg.FFTSize)
	segment := make([]float64, cfg.FFTSize)
	spectrum := make([]complex128, cfg.FFTSize/2+1)
	magnitudes := make([]float64, cfg.FFTSize/2+1)
	for slice := 0; slice < slices; slice++ {
		if slice%256 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		start := slice * cfg.Hop
		for idx, c := range coeffs {
			segment[idx] = sample(start+idx) * c
		}
		spectrum = transform.Coefficients(spectrum, segment)
		for k, c := range spectrum {
			magnitudes[k] = cmplx.Abs(c) / windowSum
		}
		fn(slice, magnitudes)
	}
	return nil
}

// Spectrogram holds the magnitude spectrum of every slice.
type Spectrogram struct {
	Config      Config
	Frequencies []float64

	// Magnitudes is indexed [slice][bin].
	Magnitudes [][]float64
}

func Compute(
	ctx context.Context,
	signal []float64,
	cfg Config,
) (*Spectrogram, error) {
	result := &Spectrogram{
		Config:      cfg,
		Frequencies: cfg.Frequencies(),
	}
	err := cfg.forEachSlice(ctx, signal, func(slice int, magnitudes []float64) {
		result.Magnitudes = append(result.Magnitudes, append([]float64(nil), magnitudes...))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Spectrogram) Slices() int {
	return len(s.Magnitudes)
}

// MaxFrequency returns the frequency of the strongest bin of every slice,
// searched over the whole spectrum.
func (s *Spectrogram) MaxFrequency() enf.FrequencyTrack {
	result := make(enf.FrequencyTrack, len(s.Magnitudes))
	for slice, magnitudes := range s.Magnitudes {
		result[slice] = s.Frequencies[argmax(magnitudes)]
	}
	return result
}

// WeightedFrequency returns the magnitude-weighted mean frequency of the
// bins strictly inside (low, high) for every slice. A slice without energy
// in the band yields NaN.
func (s *Spectrogram) WeightedFrequency(low, high float64) enf.FrequencyTrack {
	first, last := bandBins(s.Frequencies, low, high)
	result := make(enf.FrequencyTrack, len(s.Magnitudes))
	for slice, magnitudes := range s.Magnitudes {
		result[slice] = weightedFrequency(s.Frequencies, magnitudes, first, last)
	}
	return result
}

// QuadraticFrequency refines the strongest bin inside (low, high) of every
// slice with a parabola through the log magnitudes of the bin and its two
// neighbors. A peak on the first or last bin of the band is returned as is.
func (s *Spectrogram) QuadraticFrequency(low, high float64) enf.FrequencyTrack {
	first, last := bandBins(s.Frequencies, low, high)
	result := make(enf.FrequencyTrack, len(s.Magnitudes))
	for slice, magnitudes := range s.Magnitudes {
		result[slice] = quadraticFrequency(s.Frequencies, magnitudes, first, last, s.Config.FFTSize)
	}
	return result
}

func argmax(values []float64) int {
	best := 0
	for idx, v := range values {
		if v > values[best] {
			best = idx
		}
	}
	return best
}

// bandBins returns the index range [first, last) of the frequencies
// strictly inside (low, high).
func bandBins(frequencies []float64, low, high float64) (int, int) {
	first := len(frequencies)
	last := 0
	for k, f := range frequencies {
		if f <= low || f >= high {
			continue
		}
		if k < first {
			first = k
		}
		last = k + 1
	}
	if first >= last {
		return 0, 0
	}
	return first, last
}

func weightedFrequency(frequencies, magnitudes []float64, first, last int) float64 {
	var sum, weighted float64
	for k := first; k < last; k++ {
		sum += magnitudes[k]
		weighted += magnitudes[k] * frequencies[k]
	}
	if sum == 0 {
		return math.NaN()
	}
	return weighted / sum
}

func quadraticFrequency(frequencies, magnitudes []float64, first, last, fftSize int) float64 {
	if first >= last {
		return math.NaN()
	}
	logMagnitude := func(k int) float64 {
		return 20 * math.Log10(magnitudes[k])
	}
	peak := first
	for k := first; k < last; k++ {
		if magnitudes[k] > magnitudes[peak] {
			peak = k
		}
	}
	if peak == first || peak == last-1 {
		return frequencies[peak]
	}
	mPrev, mPeak, mNext := logMagnitude(peak-1), logMagnitude(peak), logMagnitude(peak+1)
	denominator := mPrev - 2*mPeak + mNext
	if denominator == 0 || math.IsInf(mPeak, 0) || math.IsNaN(denominator) {
		return frequencies[peak]
	}
	p := 0.5 * (mPrev - mNext) / denominator
	return frequencies[peak] + (mPeak+p)/float64(fftSize)
}
