// Package bandpass designs Butterworth bandpass filters as cascades of
// second-order sections and applies them to sampled series.
package bandpass

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/calvan/enf-analysis/pkg/enf"
)

const (
	// DefaultOrder is the order of the lowpass prototype; the bandpass
	// has twice as many poles.
	DefaultOrder = 8

	// DefaultHalfWidth is the distance in Hz between the center frequency
	// and each band edge.
	DefaultHalfWidth = 0.2
)

// Section is one biquad: H(z) = (B0 + B1/z + B2/z²) / (1 + A1/z + A2/z²).
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Filter is a cascade of second-order sections.
type Filter struct {
	SampleRate float64
	Low        float64
	High       float64
	Order      int
	Sections   []Section
}

// Design returns a Butterworth bandpass of the given order passing
// [center-halfWidth, center+halfWidth]. It fails with enf.ErrConfiguration
// if the band is empty, starts at or below zero, or reaches the Nyquist
// frequency.
func Design(
	sampleRate float64,
	center float64,
	halfWidth float64,
	order int,
) (*Filter, error) {
	if sampleRate <= 0 {
		return nil, enf.Configurationf("sample rate must be positive: got %v", sampleRate)
	}
	if order <= 0 {
		return nil, enf.Configurationf("filter order must be positive: got %d", order)
	}
	if halfWidth <= 0 {
		return nil, enf.Configurationf("passband half-width must be positive: got %v", halfWidth)
	}
	low, high := center-halfWidth, center+halfWidth
	nyquist := sampleRate / 2
	if low <= 0 {
		return nil, enf.Configurationf("the lower band edge %v Hz must be above zero", low)
	}
	if high >= nyquist {
		return nil, enf.Configurationf("the upper band edge %v Hz must be below the Nyquist frequency %v Hz", high, nyquist)
	}

	// prewarped analog band edges
	fs2 := 2 * sampleRate
	w1 := fs2 * math.Tan(math.Pi*low/sampleRate)
	w2 := fs2 * math.Tan(math.Pi*high/sampleRate)
	bw := w2 - w1
	wo := math.Sqrt(w1 * w2)

	var zPoles [][2]complex128
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		p := cmplx.Exp(complex(0, theta))
		if imag(p) < -1e-12 {
			// the conjugate pole produces the conjugate sections
			continue
		}

		pLP := p * complex(bw/2, 0)
		d := cmplx.Sqrt(pLP*pLP - complex(wo*wo, 0))
		q1, q2 := bilinear(pLP+d, fs2), bilinear(pLP-d, fs2)

		if math.Abs(imag(p)) <= 1e-12 {
			// a real prototype pole yields a single section
			zPoles = append(zPoles, [2]complex128{q1, q2})
			continue
		}
		zPoles = append(zPoles,
			[2]complex128{q1, cmplx.Conj(q1)},
			[2]complex128{q2, cmplx.Conj(q2)},
		)
	}

	f := &Filter{
		SampleRate: sampleRate,
		Low:        low,
		High:       high,
		Order:      order,
		Sections:   make([]Section, len(zPoles)),
	}
	for idx, poles := range zPoles {
		sum := poles[0] + poles[1]
		prod := poles[0] * poles[1]
		f.Sections[idx] = Section{
			B0: 1, B1: 0, B2: -1,
			A1: -real(sum),
			A2: real(prod),
		}
	}

	// unity gain at the center of the band
	omega0 := 2 * math.Atan(wo/fs2)
	gain := cmplx.Abs(f.Response(omega0))
	if gain == 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		return nil, fmt.Errorf("%w: unable to normalize the filter gain (%v)", enf.ErrNumericDegeneracy, gain)
	}
	perSection := math.Pow(gain, -1/float64(len(f.Sections)))
	for idx := range f.Sections {
		s := &f.Sections[idx]
		s.B0 *= perSection
		s.B1 *= perSection
		s.B2 *= perSection
	}
	return f, nil
}

func bilinear(p complex128, fs2 float64) complex128 {
	return (complex(fs2, 0) + p) / (complex(fs2, 0) - p)
}

// Response returns the complex frequency response at the normalized
// angular frequency omega (radians per sample).
func (f *Filter) Response(omega float64) complex128 {
	z1 := cmplx.Exp(complex(0, -omega))
	z2 := z1 * z1
	h := complex(1, 0)
	for _, s := range f.Sections {
		num := complex(s.B0, 0) + complex(s.B1, 0)*z1 + complex(s.B2, 0)*z2
		den := 1 + complex(s.A1, 0)*z1 + complex(s.A2, 0)*z2
		h *= num / den
	}
	return h
}

// Gain returns the magnitude of the response at the given frequency in Hz.
func (f *Filter) Gain(frequency float64) float64 {
	return cmplx.Abs(f.Response(2 * math.Pi * frequency / f.SampleRate))
}

// Apply filters the series forward in time (causal) and returns a new slice.
func (f *Filter) Apply(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	f.filterInPlace(out)
	return out
}

// ApplyZeroPhase filters the series forward and backward, which cancels
// the phase shift and squares the magnitude response. The series is
// extended by odd reflection at both ends to reduce edge transients.
func (f *Filter) ApplyZeroPhase(in []float64) []float64 {
	n := len(in)
	if n == 0 {
		return []float64{}
	}
	padLen := 3 * (2*len(f.Sections) + 1)
	if padLen > n-1 {
		padLen = n - 1
	}

	ext := make([]float64, n+2*padLen)
	for idx := 0; idx < padLen; idx++ {
		ext[idx] = 2*in[0] - in[padLen-idx]
		ext[n+padLen+idx] = 2*in[n-1] - in[n-2-idx]
	}
	copy(ext[padLen:], in)

	f.filterInPlace(ext)
	reverse(ext)
	f.filterInPlace(ext)
	reverse(ext)

	out := make([]float64, n)
	copy(out, ext[padLen:padLen+n])
	return out
}

// filterInPlace runs the cascade in transposed direct form II.
func (f *Filter) filterInPlace(values []float64) {
	for _, s := range f.Sections {
		var z1, z2 float64
		for idx, x := range values {
			y := s.B0*x + z1
			z1 = s.B1*x - s.A1*y + z2
			z2 = s.B2*x - s.A2*y
			values[idx] = y
		}
	}
}

func reverse(values []float64) {
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
}

func (f *Filter) String() string {
	return fmt.Sprintf("butterworth(order=%d, %.3f..%.3f Hz @ %.3f Hz)", f.Order, f.Low, f.High, f.SampleRate)
}
