// Package diagplot renders diagnostic charts of an analysis: frequency
// tracks, the correlation curve, the aligned window of the reference and
// the spectrum of the filtered signal.
package diagplot

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/facebookincubator/go-belt/tool/logger"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	DefaultWidth  = 14 * vg.Inch
	DefaultHeight = 6 * vg.Inch

	// DefaultAlignmentMargin is the amount of reference samples shown
	// around the aligned track.
	DefaultAlignmentMargin = 20
)

// Series is a named sequence of values sampled at X0, X0+Step, ...
// NaN values leave gaps.
type Series struct {
	Name   string
	X0     float64
	Step   float64
	Values []float64
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())
	return p
}

// segments splits the series at NaN values.
func segments(s Series) []plotter.XYs {
	step := s.Step
	if step == 0 {
		step = 1
	}
	var (
		result  []plotter.XYs
		current plotter.XYs
	)
	for idx, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if len(current) > 0 {
				result = append(result, current)
				current = nil
			}
			continue
		}
		current = append(current, plotter.XY{X: s.X0 + float64(idx)*step, Y: v})
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

func addSeries(p *plot.Plot, colorIdx int, s Series) error {
	for idx, pts := range segments(s) {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("unable to draw %q: %w", s.Name, err)
		}
		line.Color = plotutil.Color(colorIdx)
		line.Width = vg.Points(1)
		p.Add(line)
		if idx == 0 && s.Name != "" {
			p.Legend.Add(s.Name, line)
		}
	}
	return nil
}

// Tracks plots frequency tracks over time.
func Tracks(
	title string,
	series ...Series,
) (*plot.Plot, error) {
	p := newPlot(title, "Time (s)", "Frequency (Hz)")
	for idx, s := range series {
		if err := addSeries(p, idx, s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Correlation plots the score of every evaluated offset and marks the
// best one.
func Correlation(result *enf.AlignmentResult) (*plot.Plot, error) {
	if len(result.Correlations) == 0 {
		return nil, fmt.Errorf("no correlation values")
	}
	p := newPlot(fmt.Sprintf("Correlation (%s)", result), "Offset (s)", "Pearson correlation")
	if err := addSeries(p, 0, Series{Name: "correlation", Values: result.Correlations}); err != nil {
		return nil, err
	}
	best, err := plotter.NewScatter(plotter.XYs{{X: float64(result.Offset), Y: result.Score}})
	if err != nil {
		return nil, err
	}
	best.Color = plotutil.Color(1)
	p.Add(best)
	p.Legend.Add("best offset", best)
	return p, nil
}

// Alignment plots the reference around the aligned track; margin
// reference samples are kept on both sides.
func Alignment(
	result *enf.AlignmentResult,
	margin int,
) (*plot.Plot, error) {
	if margin < 0 {
		return nil, fmt.Errorf("negative margin %d", margin)
	}
	first, last := -1, -1
	for idx, v := range result.Aligned {
		if math.IsNaN(v) {
			continue
		}
		if first < 0 {
			first = idx
		}
		last = idx
	}
	if first < 0 {
		return nil, fmt.Errorf("the aligned track is empty")
	}
	from := max(first-margin, 0)
	to := min(last+1+margin, len(result.Reference))

	p := newPlot("Alignment", "Reference sample (s)", "Frequency (Hz)")
	if err := addSeries(p, 0, Series{Name: "reference", X0: float64(from), Values: result.Reference[from:to]}); err != nil {
		return nil, err
	}
	if err := addSeries(p, 1, Series{Name: "aligned ENF", X0: float64(from), Values: result.Aligned[from:to]}); err != nil {
		return nil, err
	}
	return p, nil
}

// Spectrum plots the magnitude spectrum and marks the passband.
func Spectrum(
	frequencies []float64,
	magnitudes []float64,
	low float64,
	high float64,
) (*plot.Plot, error) {
	if len(frequencies) != len(magnitudes) || len(frequencies) < 2 {
		return nil, fmt.Errorf("invalid spectrum: %d frequencies and %d magnitudes", len(frequencies), len(magnitudes))
	}
	p := newPlot("Spectrum", "Frequency (Hz)", "Magnitude")
	pts := make(plotter.XYs, len(frequencies))
	var peak float64
	for idx, f := range frequencies {
		pts[idx] = plotter.XY{X: f, Y: magnitudes[idx]}
		peak = max(peak, magnitudes[idx])
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = plotutil.Color(0)
	p.Add(line)
	p.Legend.Add("magnitude", line)

	for _, f := range []float64{low, high} {
		edge, err := plotter.NewLine(plotter.XYs{{X: f, Y: 0}, {X: f, Y: peak}})
		if err != nil {
			return nil, err
		}
		edge.Color = plotutil.Color(1)
		edge.Dashes = plotutil.Dashes(1)
		p.Add(edge)
	}
	return p, nil
}

// Save writes the plot; the format follows the file extension.
func Save(
	ctx context.Context,
	p *plot.Plot,
	path string,
) error {
	if err := p.Save(DefaultWidth, DefaultHeight, path); err != nil {
		return fmt.Errorf("unable to save the plot to %q: %w", path, err)
	}
	logger.Debugf(ctx, "saved plot %q", path)
	return nil
}

// WritePNG renders the plot as PNG into w.
func WritePNG(p *plot.Plot, w io.Writer) (int64, error) {
	wt, err := p.WriterTo(DefaultWidth, DefaultHeight, "png")
	if err != nil {
		return 0, err
	}
	return wt.WriteTo(w)
}
