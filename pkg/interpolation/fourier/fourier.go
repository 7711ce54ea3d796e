// Package fourier fills gaps in intensity series by extrapolating the
// dominant tones of the neighboring samples. Brightness of artificially
// lit scenes is dominated by the (aliased) lamp flicker, which a few
// sinusoids describe well.
package fourier

import (
	"math"

	"github.com/brettbuddin/fourier"
	"github.com/calvan/enf-analysis/pkg/interpolation"
)

const (
	// MaxContext is the maximal amount of samples taken from each side.
	MaxContext = 256

	// MinContext is the minimal amount of samples needed on each side;
	// with less context the gap is filled linearly.
	MinContext = 16

	// PeakFactor is how far a spectral peak must stand above the mean
	// magnitude to be treated as a tone.
	PeakFactor = 3.0

	// MaxTones limits the amount of tones extrapolated per side.
	MaxTones = 4
)

type Interpolator struct {
	fallback interpolation.Interpolator
}

var _ interpolation.Interpolator = (*Interpolator)(nil)

func New() *Interpolator {
	return &Interpolator{
		fallback: interpolation.NewLinear(),
	}
}

type tone struct {
	omega float64 // radians per sample
	a, b  float64 // cos and sin amplitudes
}

// Interpolate projects the tones found before the gap forward and the
// tones found after the gap backward, corrects both projections to meet
// the boundary samples exactly, and blends them with a smoothstep weight.
func (i *Interpolator) Interpolate(before, after []float64, gapLen int) []float64 {
	if len(before) < MinContext || len(after) < MinContext {
		return i.fallback.Interpolate(before, after, gapLen)
	}
	n := largestPowerOfTwo(min(len(before), len(after), MaxContext))
	windowBefore := before[len(before)-n:]
	windowAfter := after[:n]

	// forward[0] reconstructs the last sample before the gap,
	// backward[gapLen] reconstructs the first sample after it.
	forward := synthesize(windowBefore, n-1, gapLen+1)
	backward := synthesize(windowAfter, -gapLen, gapLen+1)

	forwardOffset := windowBefore[n-1] - forward[0]
	backwardOffset := windowAfter[0] - backward[gapLen]

	result := make([]float64, gapLen)
	for idx := range result {
		t := float64(idx+1) / float64(gapLen+1)
		w := t * t * (3 - 2*t)
		result[idx] = (1-w)*(forward[idx+1]+forwardOffset) + w*(backward[idx]+backwardOffset)
	}
	return result
}

func largestPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

// synthesize fits tones to the window (sample t of the window is at time t)
// and evaluates mean+tones at times start..start+count-1.
func synthesize(window []float64, start, count int) []float64 {
	n := len(window)
	var mean float64
	for _, v := range window {
		mean += v
	}
	mean /= float64(n)

	residual := make([]float64, n)
	for t, v := range window {
		residual[t] = v - mean
	}

	var tones []tone
	for _, omega := range findTones(residual) {
		tn := fitTone(residual, omega)
		for t := range residual {
			residual[t] -= tn.a*math.Cos(omega*float64(t)) + tn.b*math.Sin(omega*float64(t))
		}
		tones = append(tones, tn)
	}

	result := make([]float64, count)
	for idx := range result {
		t := float64(start + idx)
		v := mean
		for _, tn := range tones {
			v += tn.a*math.Cos(tn.omega*t) + tn.b*math.Sin(tn.omega*t)
		}
		result[idx] = v
	}
	return result
}

// findTones returns the angular frequencies of the strongest spectral peaks,
// refined between bins by a parabola through the log magnitudes of the
// Hann-windowed spectrum.
func findTones(samples []float64) []float64 {
	n := len(samples)
	coeffs := make([]complex128, n)
	for t, v := range samples {
		hann := 0.5 - 0.5*math.Cos(2*math.Pi*float64(t)/float64(n))
		coeffs[t] = complex(v*hann, 0)
	}
	if err := fourier.Forward(coeffs); err != nil {
		return nil
	}

	half := n / 2
	magnitudes := make([]float64, half+1)
	var avg float64
	for k := range magnitudes {
		magnitudes[k] = math.Hypot(real(coeffs[k]), imag(coeffs[k]))
		avg += magnitudes[k]
	}
	avg /= float64(len(magnitudes))

	type peak struct {
		k         int
		magnitude float64
	}
	var peaks []peak
	for k := 1; k < half; k++ {
		m := magnitudes[k]
		if m > avg*PeakFactor && m > magnitudes[k-1] && m >= magnitudes[k+1] {
			peaks = append(peaks, peak{k, m})
		}
	}
	// strongest first
	for a := 1; a < len(peaks); a++ {
		for b := a; b > 0 && peaks[b].magnitude > peaks[b-1].magnitude; b-- {
			peaks[b], peaks[b-1] = peaks[b-1], peaks[b]
		}
	}
	if len(peaks) > MaxTones {
		peaks = peaks[:MaxTones]
	}

	result := make([]float64, 0, len(peaks))
	for _, p := range peaks {
		l := math.Log(magnitudes[p.k-1] + 1e-300)
		c := math.Log(magnitudes[p.k] + 1e-300)
		r := math.Log(magnitudes[p.k+1] + 1e-300)
		delta := 0.0
		if denom := l - 2*c + r; denom != 0 {
			delta = 0.5 * (l - r) / denom
		}
		result = append(result, 2*math.Pi*(float64(p.k)+delta)/float64(n))
	}
	return result
}

// fitTone finds the least-squares amplitudes of cos(omega*t) and
// sin(omega*t) in the samples.
func fitTone(samples []float64, omega float64) tone {
	var scc, sss, scs, sxc, sxs float64
	for t, v := range samples {
		c := math.Cos(omega * float64(t))
		s := math.Sin(omega * float64(t))
		scc += c * c
		sss += s * s
		scs += c * s
		sxc += v * c
		sxs += v * s
	}
	det := scc*sss - scs*scs
	if det == 0 {
		return tone{omega: omega}
	}
	return tone{
		omega: omega,
		a:     (sxc*sss - sxs*scs) / det,
		b:     (sxs*scc - sxc*scs) / det,
	}
}
