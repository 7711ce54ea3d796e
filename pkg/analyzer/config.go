package analyzer

import (
	"runtime"

	"github.com/calvan/enf-analysis/pkg/bandpass"
	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/stft"
)

const (
	DefaultMinRegions    = 4
	DefaultVarianceFloor = 0.01
)

type Config struct {
	// NetworkFrequency is the nominal grid frequency (50 or 60 Hz).
	NetworkFrequency float64

	// SampleRate is the real frame rate of the video.
	SampleRate float64

	// FPS is the nominal frame rate; it is the STFT hop, so that slices
	// are one second apart.
	FPS int

	// ExpectedFrequency is the frequency the ENF appears at in the video.
	// If zero, it is derived from NetworkFrequency and SampleRate.
	ExpectedFrequency float64

	BandpassOrder     int
	BandpassHalfWidth float64

	// ZeroPhase filters forward and backward instead of forward only.
	ZeroPhase bool

	// DetectionWindow is the STFT window of the per-region tracks.
	DetectionWindow int

	// ExtractionWindow is the STFT window of the aggregated signal.
	ExtractionWindow int

	FFTSize int

	// Workers bounds the amount of regions analyzed concurrently.
	Workers int

	// MinRegions is the least amount of regions left after the variance
	// floor for a detection to be attempted.
	MinRegions int

	// VarianceFloor drops regions whose mean squared deviation from their
	// own mean is not above it (e.g. over-exposed regions).
	VarianceFloor float64
}

func DefaultConfig(sampleRate float64, fps int) Config {
	return Config{
		NetworkFrequency:  enf.NominalFrequencyEurope,
		SampleRate:        sampleRate,
		FPS:               fps,
		BandpassOrder:     bandpass.DefaultOrder,
		BandpassHalfWidth: bandpass.DefaultHalfWidth,
		DetectionWindow:   stft.DefaultWindowLength,
		ExtractionWindow:  stft.DefaultWindowLength,
		FFTSize:           stft.DefaultFFTSize,
		Workers:           runtime.NumCPU(),
		MinRegions:        DefaultMinRegions,
		VarianceFloor:     DefaultVarianceFloor,
	}
}

// Expected returns the configured or derived expected ENF frequency.
func (cfg Config) Expected() float64 {
	if cfg.ExpectedFrequency > 0 {
		return cfg.ExpectedFrequency
	}
	return enf.AliasFrequency(cfg.NetworkFrequency, cfg.SampleRate)
}

// Bias is the constant that moves a track observed at the expected
// frequency onto the grid frequency.
func (cfg Config) Bias() float64 {
	return cfg.NetworkFrequency - cfg.Expected()
}

func (cfg Config) Validate() error {
	if cfg.NetworkFrequency <= 0 {
		return enf.Configurationf("network frequency must be positive: got %v", cfg.NetworkFrequency)
	}
	if cfg.SampleRate <= 0 || cfg.FPS <= 0 {
		return enf.Configurationf("frame rate must be positive: got %v (%d)", cfg.SampleRate, cfg.FPS)
	}
	if cfg.Workers <= 0 {
		return enf.Configurationf("the amount of workers must be positive: got %d", cfg.Workers)
	}
	if cfg.MinRegions < 2 {
		return enf.Configurationf("at least 2 regions are needed to score a detection: got %d", cfg.MinRegions)
	}
	if cfg.VarianceFloor < 0 {
		return enf.Configurationf("the variance floor must not be negative: got %v", cfg.VarianceFloor)
	}
	return nil
}
