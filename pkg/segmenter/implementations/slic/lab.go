package slic

import (
	"math"

	"github.com/calvan/enf-analysis/pkg/frame"
)

// D65 white point
const (
	whiteX = 0.950456
	whiteZ = 1.088754
)

var srgbToLinear [256]float64

func init() {
	for i := range srgbToLinear {
		v := float64(i) / 255
		if v <= 0.04045 {
			srgbToLinear[i] = v / 12.92
		} else {
			srgbToLinear[i] = math.Pow((v+0.055)/1.055, 2.4)
		}
	}
}

func labF(t float64) float64 {
	if t > 0.008856 {
		return math.Cbrt(t)
	}
	return 7.787*t + 16.0/116
}

// toLab converts a frame into the three CIE L*a*b* planes. Gray frames
// have zero chroma.
func toLab(f *frame.Frame) (l, a, b []float64) {
	n := f.PixelCount()
	l = make([]float64, n)
	a = make([]float64, n)
	b = make([]float64, n)
	for idx := 0; idx < n; idx++ {
		if f.Channels == 1 {
			fy := labF(srgbToLinear[f.Pix[idx]])
			l[idx] = 116*fy - 16
			continue
		}
		blue := srgbToLinear[f.Pix[idx*3]]
		green := srgbToLinear[f.Pix[idx*3+1]]
		red := srgbToLinear[f.Pix[idx*3+2]]

		x := (0.412453*red + 0.357580*green + 0.180423*blue) / whiteX
		y := 0.212671*red + 0.715160*green + 0.072169*blue
		z := (0.019334*red + 0.119193*green + 0.950227*blue) / whiteZ

		fx, fy, fz := labF(x), labF(y), labF(z)
		l[idx] = 116*fy - 16
		a[idx] = 500 * (fx - fy)
		b[idx] = 200 * (fy - fz)
	}
	return
}
