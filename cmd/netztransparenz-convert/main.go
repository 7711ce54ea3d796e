package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/calvan/enf-analysis/pkg/reference"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
)

// netztransparenz-convert turns frequency exports of netztransparenz.de
// into the per-day reference files read by enf-analysis.
func main() {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	locationName := pflag.String("location", "Europe/Berlin", "time zone of the timestamps in the exports")
	step := pflag.Duration("step", reference.DefaultStep, "interval of the resampled series")
	pflag.Parse()

	if pflag.NArg() < 2 {
		panic(fmt.Errorf("expected at least two positional arguments: <export-file>... <output-dir>"))
	}
	inputs := pflag.Args()[:pflag.NArg()-1]
	outputDir := pflag.Arg(pflag.NArg() - 1)

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	location, err := time.LoadLocation(*locationName)
	assertNoError(err)

	var parts []*reference.Series
	for _, input := range inputs {
		s, err := readExport(input, location)
		assertNoError(err)
		if s.Len() == 0 {
			logger.Warnf(ctx, "%q contains no samples", input)
			continue
		}
		logger.Debugf(ctx, "%q: %d samples from %v to %v", input, s.Len(), s.Times[0], s.Times[s.Len()-1])
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		panic(fmt.Errorf("no samples found"))
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Times[0].Before(parts[j].Times[0])
	})
	joined := &reference.Series{}
	for _, s := range parts {
		joined.Times = append(joined.Times, s.Times...)
		joined.Values = append(joined.Values, s.Values...)
	}

	resampled, err := reference.Resample(joined, *step)
	assertNoError(err)

	assertNoError(os.MkdirAll(outputDir, 0o755))
	first := resampled.Times[0].UTC().Truncate(24 * time.Hour)
	last := resampled.Times[resampled.Len()-1]
	for day := first; !day.After(last); day = day.Add(24 * time.Hour) {
		s := resampled.Range(day, day.Add(24*time.Hour))
		if s.Len() == 0 {
			continue
		}
		path := filepath.Join(outputDir, reference.FileName(day))
		n, err := writeDay(path, s)
		assertNoError(err)
		logger.Infof(ctx, "%s: %d samples, %d bytes", path, s.Len(), n)
	}
}

func readExport(path string, location *time.Location) (*reference.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := reference.ReadNetztransparenz(f, location)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %q: %w", path, err)
	}
	return s, nil
}

func writeDay(path string, s *reference.Series) (uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	wc := datacounter.NewWriterCounter(f)
	if err := reference.WriteCSV(wc, s); err != nil {
		return 0, fmt.Errorf("unable to write %q: %w", path, err)
	}
	return wc.Count(), f.Close()
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
