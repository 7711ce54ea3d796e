package enf

import (
	"math"
)

const (
	// NominalFrequencyEurope is the nominal grid frequency in Europe.
	NominalFrequencyEurope = 50.0

	// NominalFrequencyAmerica is the nominal grid frequency in North America.
	NominalFrequencyAmerica = 60.0
)

// AliasFrequency returns the frequency at which the light flicker of
// a grid running at networkFrequency shows up in a video sampled at
// sampleRate frames per second.
//
// Lamps flicker at twice the grid frequency. When that exceeds the
// Nyquist frequency of the video, the flicker folds back into
// [0, sampleRate/2]; the result is rounded to 0.01 Hz.
func AliasFrequency(networkFrequency, sampleRate float64) float64 {
	if sampleRate <= 0 || networkFrequency <= 0 {
		return math.NaN()
	}
	light := networkFrequency * 2
	if sampleRate/2 >= light {
		return light
	}
	k := 1.0
	for math.Abs(light-k*sampleRate) >= sampleRate/2 {
		k++
	}
	return math.Round(math.Abs(light-k*sampleRate)*100) / 100
}
