package stft

import (
	"fmt"
	"math"

	"github.com/brettbuddin/fourier"
)

// Spectrum returns the one-sided magnitude spectrum of the whole series,
// zero-padded to the next power of two.
func Spectrum(
	signal []float64,
	sampleRate float64,
) ([]float64, []float64, error) {
	if len(signal) == 0 {
		return nil, nil, fmt.Errorf("the series is empty")
	}
	if sampleRate <= 0 {
		return nil, nil, fmt.Errorf("sample rate must be positive: got %v", sampleRate)
	}

	n := 1
	for n < len(signal) {
		n <<= 1
	}
	coeffs := make([]complex128, n)
	for idx, v := range signal {
		coeffs[idx] = complex(v, 0)
	}
	if err := fourier.Forward(coeffs); err != nil {
		return nil, nil, fmt.Errorf("unable to transform: %w", err)
	}

	frequencies := make([]float64, n/2+1)
	magnitudes := make([]float64, n/2+1)
	for k := range frequencies {
		frequencies[k] = float64(k) * sampleRate / float64(n)
		magnitudes[k] = math.Hypot(real(coeffs[k]), imag(coeffs[k]))
	}
	return frequencies, magnitudes, nil
}
