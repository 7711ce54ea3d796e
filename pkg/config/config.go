// Package config collects every tunable of an analysis run. Values come
// from the defaults, an optional YAML file and command line flags, in
// increasing order of precedence.
package config

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"github.com/calvan/enf-analysis/pkg/analyzer"
	"github.com/calvan/enf-analysis/pkg/bandpass"
	"github.com/calvan/enf-analysis/pkg/correlator"
	"github.com/calvan/enf-analysis/pkg/correlator/implementations/fft"
	"github.com/calvan/enf-analysis/pkg/correlator/implementations/pearson"
	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/interpolation"
	"github.com/calvan/enf-analysis/pkg/interpolation/fourier"
	"github.com/calvan/enf-analysis/pkg/motion"
	"github.com/calvan/enf-analysis/pkg/reference"
	"github.com/calvan/enf-analysis/pkg/segmenter"
	"github.com/calvan/enf-analysis/pkg/segmenter/implementations/slic"
	"github.com/calvan/enf-analysis/pkg/segmenter/implementations/whole"
	"github.com/calvan/enf-analysis/pkg/stft"
	"github.com/calvan/enf-analysis/pkg/videoprocessor"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	CorrelatorPearson = "pearson"
	CorrelatorFFT     = "fft"

	InterpolatorLinear  = "linear"
	InterpolatorFourier = "fourier"

	// DefaultSkipSeconds is the amount of leading seconds of a video
	// excluded from the ENF tracks.
	DefaultSkipSeconds = 4

	// AutoThreshold as the lightness threshold selects the median
	// luminance of the first frame.
	AutoThreshold = -1.0
)

type Analysis struct {
	NetworkFrequency  float64 `yaml:"network_frequency"`
	ExpectedFrequency float64 `yaml:"expected_frequency"`

	BandpassOrder     int     `yaml:"bandpass_order"`
	BandpassHalfWidth float64 `yaml:"bandpass_width"`
	ZeroPhase         bool    `yaml:"zero_phase"`

	DetectionWindow  int    `yaml:"detection_window"`
	ExtractionWindow int    `yaml:"extraction_window"`
	FFTSize          int    `yaml:"nfft"`
	ExtractionMode   string `yaml:"extraction_mode"`

	Workers       int     `yaml:"workers"`
	MinRegions    int     `yaml:"min_regions"`
	VarianceFloor float64 `yaml:"variance_floor"`

	Superpixel        bool    `yaml:"superpixel"`
	RegionSizeDivisor int     `yaml:"region_size_divisor"`
	Compactness       float64 `yaml:"compactness"`
	Iterations        int     `yaml:"iterations"`

	// LightnessThreshold is AutoThreshold or a luminance in [0, 255].
	LightnessThreshold float64 `yaml:"lightness_threshold"`
	Selection          string  `yaml:"selection"`
	MotionThreshold    float64 `yaml:"motion_threshold"`

	StartFrame  int `yaml:"start_frame"`
	EndFrame    int `yaml:"end_frame"`
	SkipSeconds int `yaml:"skip_seconds"`

	// Interpolator fills the intensities of unreadable frames.
	Interpolator string `yaml:"interpolator"`

	Correlator             string `yaml:"correlator"`
	ReferenceDir           string `yaml:"reference_dir"`
	ReferenceFile          string `yaml:"reference_file"`
	ReferenceMargin        int    `yaml:"reference_margin"`
	CorrelateRecordingTime bool   `yaml:"correlate_recording_time_only"`

	StoragePath    string `yaml:"storage_path"`
	PlotDir        string `yaml:"plot_dir"`
	FlushVideoData bool   `yaml:"flush_video_data"`
	FlushENFData   bool   `yaml:"flush_enf_data"`
}

func Default() Analysis {
	return Analysis{
		NetworkFrequency:   enf.NominalFrequencyEurope,
		BandpassOrder:      bandpass.DefaultOrder,
		BandpassHalfWidth:  bandpass.DefaultHalfWidth,
		DetectionWindow:    stft.DefaultWindowLength,
		ExtractionWindow:   stft.DefaultWindowLength,
		FFTSize:            stft.DefaultFFTSize,
		ExtractionMode:     analyzer.ExtractionModeMean.String(),
		Workers:            runtime.NumCPU(),
		MinRegions:         analyzer.DefaultMinRegions,
		VarianceFloor:      analyzer.DefaultVarianceFloor,
		Superpixel:         true,
		RegionSizeDivisor:  slic.DefaultRegionSizeDivisor,
		Compactness:        slic.DefaultRatio,
		Iterations:         slic.DefaultIterations,
		LightnessThreshold: AutoThreshold,
		Selection:          enf.AggregateMean.String(),
		MotionThreshold:    motion.DefaultThreshold,
		SkipSeconds:        DefaultSkipSeconds,
		Interpolator:       InterpolatorLinear,
		Correlator:         CorrelatorPearson,
		ReferenceMargin:    reference.DefaultMargin,
		StoragePath:        "enf.db",
	}
}

// RegisterFlags binds the fields to flags; the current values become the
// flag defaults.
func (cfg *Analysis) RegisterFlags(fs *pflag.FlagSet) {
	fs.Float64Var(&cfg.NetworkFrequency, "network-frequency", cfg.NetworkFrequency, "nominal grid frequency in Hz")
	fs.Float64Var(&cfg.ExpectedFrequency, "expected-frequency", cfg.ExpectedFrequency, "frequency of the ENF in the video; 0 derives it from the frame rate")
	fs.IntVar(&cfg.BandpassOrder, "bandpass-order", cfg.BandpassOrder, "order of the Butterworth bandpass")
	fs.Float64Var(&cfg.BandpassHalfWidth, "bandpass-width", cfg.BandpassHalfWidth, "half-width of the passband in Hz")
	fs.BoolVar(&cfg.ZeroPhase, "zero-phase", cfg.ZeroPhase, "filter forward and backward")
	fs.IntVar(&cfg.DetectionWindow, "detection-window", cfg.DetectionWindow, "STFT window (in frames) of the per-region tracks")
	fs.IntVar(&cfg.ExtractionWindow, "extraction-window", cfg.ExtractionWindow, "STFT window (in frames) of the aggregated signal")
	fs.IntVar(&cfg.FFTSize, "nfft", cfg.FFTSize, "FFT size")
	fs.StringVar(&cfg.ExtractionMode, "extraction-mode", cfg.ExtractionMode, "aggregation of the regions: mean, diff")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "amount of regions analyzed concurrently")
	fs.IntVar(&cfg.MinRegions, "min-regions", cfg.MinRegions, "minimal amount of usable regions")
	fs.Float64Var(&cfg.VarianceFloor, "variance-floor", cfg.VarianceFloor, "regions with a smaller intensity variance are ignored")
	fs.BoolVar(&cfg.Superpixel, "superpixel", cfg.Superpixel, "split the frame into superpixels instead of using the whole frame")
	fs.IntVar(&cfg.RegionSizeDivisor, "region-size-divisor", cfg.RegionSizeDivisor, "region size is min(width, height) divided by this")
	fs.Float64Var(&cfg.Compactness, "compactness", cfg.Compactness, "superpixel compactness within [0, 1]")
	fs.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "superpixel iterations")
	fs.Float64Var(&cfg.LightnessThreshold, "lightness-threshold", cfg.LightnessThreshold, "regions darker than this are ignored; -1 uses the median luminance")
	fs.StringVar(&cfg.Selection, "selection", cfg.Selection, "statistic compared to the lightness threshold: mean, median")
	fs.Float64Var(&cfg.MotionThreshold, "motion-threshold", cfg.MotionThreshold, "moving fraction above which a region is dropped; 0 disables motion detection")
	fs.IntVar(&cfg.StartFrame, "start-frame", cfg.StartFrame, "first frame to process")
	fs.IntVar(&cfg.EndFrame, "end-frame", cfg.EndFrame, "frame to stop at; 0 processes until the end")
	fs.IntVar(&cfg.SkipSeconds, "skip-seconds", cfg.SkipSeconds, "leading seconds excluded from the ENF tracks")
	fs.StringVar(&cfg.Interpolator, "interpolator", cfg.Interpolator, "gap filling of unreadable frames: linear, fourier")
	fs.StringVar(&cfg.Correlator, "correlator", cfg.Correlator, "correlation method: pearson, fft")
	fs.StringVar(&cfg.ReferenceDir, "reference-dir", cfg.ReferenceDir, "directory with the daily reference files")
	fs.StringVar(&cfg.ReferenceFile, "ground-truth", cfg.ReferenceFile, "reference file used instead of the per-day files of --reference-dir")
	fs.IntVar(&cfg.ReferenceMargin, "reference-margin", cfg.ReferenceMargin, "reference seconds around the recording time used with --correlate-recording-time-only")
	fs.BoolVar(&cfg.CorrelateRecordingTime, "correlate-recording-time-only", cfg.CorrelateRecordingTime, "correlate only around the recording time of the video")
	fs.StringVar(&cfg.StoragePath, "storage", cfg.StoragePath, "path to the results database")
	fs.StringVar(&cfg.PlotDir, "plot-dir", cfg.PlotDir, "directory for diagnostic plots; empty disables plotting")
	fs.BoolVar(&cfg.FlushVideoData, "flush-video-data", cfg.FlushVideoData, "recompute the intensities instead of loading the stored ones")
	fs.BoolVar(&cfg.FlushENFData, "flush-enf-data", cfg.FlushENFData, "recompute the ENF tracks instead of loading the stored ones")
}

// LoadFile reads the YAML file into cfg. Flags of fs that were set
// explicitly keep their values.
func (cfg *Analysis) LoadFile(path string, fs *pflag.FlagSet) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read the configuration file: %w", err)
	}

	changed := map[string]string{}
	if fs != nil {
		fs.Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: unable to parse %q: %v", enf.ErrConfiguration, path, err)
	}

	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("unable to restore flag --%s: %w", name, err)
		}
	}
	return nil
}

func (cfg Analysis) Validate() error {
	if cfg.NetworkFrequency <= 0 {
		return enf.Configurationf("network frequency must be positive: got %v", cfg.NetworkFrequency)
	}
	if cfg.ExpectedFrequency < 0 {
		return enf.Configurationf("expected frequency must not be negative: got %v", cfg.ExpectedFrequency)
	}
	if cfg.BandpassOrder <= 0 || cfg.BandpassHalfWidth <= 0 {
		return enf.Configurationf("invalid bandpass order %d or width %v", cfg.BandpassOrder, cfg.BandpassHalfWidth)
	}
	if cfg.DetectionWindow <= 0 || cfg.ExtractionWindow <= 0 {
		return enf.Configurationf("STFT windows must be positive: got %d and %d", cfg.DetectionWindow, cfg.ExtractionWindow)
	}
	if cfg.FFTSize < max(cfg.DetectionWindow, cfg.ExtractionWindow) {
		return enf.Configurationf("FFT size %d is smaller than the STFT windows", cfg.FFTSize)
	}
	if _, err := analyzer.ParseExtractionMode(cfg.ExtractionMode); err != nil {
		return err
	}
	if _, err := enf.ParseAggregate(cfg.Selection); err != nil {
		return err
	}
	if cfg.Workers <= 0 {
		return enf.Configurationf("the amount of workers must be positive: got %d", cfg.Workers)
	}
	if cfg.MinRegions < 2 || cfg.VarianceFloor < 0 {
		return enf.Configurationf("invalid minimal amount of regions %d or variance floor %v", cfg.MinRegions, cfg.VarianceFloor)
	}
	if cfg.Superpixel && (cfg.RegionSizeDivisor <= 0 || cfg.Iterations <= 0 || cfg.Compactness < 0 || cfg.Compactness > 1) {
		return enf.Configurationf("invalid superpixel parameters: divisor %d, compactness %v, iterations %d", cfg.RegionSizeDivisor, cfg.Compactness, cfg.Iterations)
	}
	if cfg.LightnessThreshold != AutoThreshold && (cfg.LightnessThreshold < 0 || cfg.LightnessThreshold > 255) {
		return enf.Configurationf("lightness threshold must be within [0, 255] or %v: got %v", AutoThreshold, cfg.LightnessThreshold)
	}
	if cfg.MotionThreshold < 0 || cfg.MotionThreshold > 1 {
		return enf.Configurationf("motion threshold must be within [0, 1]: got %v", cfg.MotionThreshold)
	}
	if cfg.StartFrame < 0 || (cfg.EndFrame != 0 && cfg.EndFrame <= cfg.StartFrame) {
		return enf.Configurationf("invalid frame range [%d, %d)", cfg.StartFrame, cfg.EndFrame)
	}
	if cfg.SkipSeconds < 0 || cfg.ReferenceMargin < 0 {
		return enf.Configurationf("skip seconds and reference margin must not be negative")
	}
	switch cfg.Correlator {
	case CorrelatorPearson, CorrelatorFFT:
	default:
		return enf.Configurationf("unknown correlator %q", cfg.Correlator)
	}
	if _, err := cfg.NewInterpolator(); err != nil {
		return err
	}
	return nil
}

// Threshold returns nil for the automatic threshold.
func (cfg Analysis) Threshold() *float64 {
	if cfg.LightnessThreshold == AutoThreshold {
		return nil
	}
	v := cfg.LightnessThreshold
	return &v
}

func (cfg Analysis) Segmenter() (segmenter.Segmenter, error) {
	if !cfg.Superpixel {
		return whole.New(), nil
	}
	s, err := slic.New(cfg.RegionSizeDivisor, cfg.Compactness, cfg.Iterations)
	if err != nil {
		return nil, enf.Configurationf("%v", err)
	}
	return s, nil
}

func (cfg Analysis) NewCorrelator() (correlator.Correlator, error) {
	switch cfg.Correlator {
	case CorrelatorPearson:
		return pearson.New(cfg.Workers), nil
	case CorrelatorFFT:
		return fft.New(), nil
	default:
		return nil, enf.Configurationf("unknown correlator %q", cfg.Correlator)
	}
}

func (cfg Analysis) Analyzer(sampleRate float64, fps int) analyzer.Config {
	result := analyzer.DefaultConfig(sampleRate, fps)
	result.NetworkFrequency = cfg.NetworkFrequency
	result.ExpectedFrequency = cfg.ExpectedFrequency
	result.BandpassOrder = cfg.BandpassOrder
	result.BandpassHalfWidth = cfg.BandpassHalfWidth
	result.ZeroPhase = cfg.ZeroPhase
	result.DetectionWindow = cfg.DetectionWindow
	result.ExtractionWindow = cfg.ExtractionWindow
	result.FFTSize = cfg.FFTSize
	result.Workers = cfg.Workers
	result.MinRegions = cfg.MinRegions
	result.VarianceFloor = cfg.VarianceFloor
	return result
}

func (cfg Analysis) NewInterpolator() (interpolation.Interpolator, error) {
	switch cfg.Interpolator {
	case InterpolatorLinear:
		return interpolation.NewLinear(), nil
	case InterpolatorFourier:
		return fourier.New(), nil
	default:
		return nil, enf.Configurationf("unknown interpolator %q", cfg.Interpolator)
	}
}

func (cfg Analysis) VideoProcessor() (videoprocessor.Config, error) {
	seg, err := cfg.Segmenter()
	if err != nil {
		return videoprocessor.Config{}, err
	}
	interpolator, err := cfg.NewInterpolator()
	if err != nil {
		return videoprocessor.Config{}, err
	}
	selection, err := enf.ParseAggregate(cfg.Selection)
	if err != nil {
		return videoprocessor.Config{}, err
	}
	return videoprocessor.Config{
		Segmenter:          seg,
		LightnessThreshold: cfg.Threshold(),
		Selection:          selection,
		MotionThreshold:    cfg.MotionThreshold,
		StartFrame:         cfg.StartFrame,
		EndFrame:           cfg.EndFrame,
		Interpolator:       interpolator,
	}, nil
}
