package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/calvan/enf-analysis/pkg/analyzer"
	"github.com/calvan/enf-analysis/pkg/diagplot"
	"github.com/calvan/enf-analysis/pkg/stft"
	"github.com/facebookincubator/go-belt/tool/logger"
	"gonum.org/v1/plot"
)

// plotDir returns the directory of the plots of the video, creating it;
// empty if plotting is disabled or the directory cannot be created.
func (p *Pipeline) plotDir(ctx context.Context, result *VideoResult) string {
	if p.Config.PlotDir == "" {
		return ""
	}
	name := filepath.Base(result.Video.Filename)
	dir := filepath.Join(p.Config.PlotDir, strings.TrimSuffix(name, filepath.Ext(name)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warnf(ctx, "unable to create the plot directory %q: %v", dir, err)
		return ""
	}
	return dir
}

func (p *Pipeline) savePlot(
	ctx context.Context,
	dir string,
	name string,
	build func() (*plot.Plot, error),
) {
	pl, err := build()
	if err != nil {
		logger.Warnf(ctx, "unable to plot %s: %v", name, err)
		return
	}
	if err := diagplot.Save(ctx, pl, filepath.Join(dir, name+".png")); err != nil {
		logger.Warnf(ctx, "%v", err)
	}
}

func (p *Pipeline) plotExtraction(
	ctx context.Context,
	a *analyzer.Analyzer,
	result *VideoResult,
	ext *extraction,
) {
	dir := p.plotDir(ctx, result)
	if dir == "" {
		return
	}

	p.savePlot(ctx, dir, "tracks", func() (*plot.Plot, error) {
		var series []diagplot.Series
		for _, track := range Tracks {
			if values, ok := ext.tracks[track]; ok {
				series = append(series, diagplot.Series{Name: string(track), Step: 1, Values: values})
			}
		}
		return diagplot.Tracks("ENF tracks of "+result.Video.Filename, series...)
	})
	p.savePlot(ctx, dir, "spectrum", func() (*plot.Plot, error) {
		frequencies, magnitudes, err := stft.Spectrum(ext.signal, a.Config.SampleRate)
		if err != nil {
			return nil, err
		}
		return diagplot.Spectrum(frequencies, magnitudes, a.Extraction.Low(), a.Extraction.High())
	})
}

func (p *Pipeline) plotAlignment(
	ctx context.Context,
	result *VideoResult,
	tr *TrackResult,
) {
	dir := p.plotDir(ctx, result)
	if dir == "" {
		return
	}
	p.savePlot(ctx, dir, string(tr.Track)+"_correlation", func() (*plot.Plot, error) {
		return diagplot.Correlation(tr.Alignment)
	})
	p.savePlot(ctx, dir, string(tr.Track)+"_alignment", func() (*plot.Plot, error) {
		return diagplot.Alignment(tr.Alignment, diagplot.DefaultAlignmentMargin)
	})
}
