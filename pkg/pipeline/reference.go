package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/calvan/enf-analysis/pkg/reference"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// loadReference loads the grid frequencies a recording of length seconds is
// correlated with, and returns the name of the file they come from.
//
// An explicit reference file wins over the per-day files of the
// reference directory. With CorrelateRecordingTime only the samples
// around the recording (plus ReferenceMargin on each side) are kept.
func (p *Pipeline) loadReference(
	ctx context.Context,
	recordedAt time.Time,
	length int,
) (*reference.Series, string, error) {
	cfg := p.Config
	var (
		s    *reference.Series
		name string
		err  error
	)
	switch {
	case cfg.ReferenceFile != "":
		name = filepath.Base(cfg.ReferenceFile)
		s, err = reference.LoadCSV(ctx, cfg.ReferenceFile)
		if err == nil && cfg.CorrelateRecordingTime {
			if recordedAt.IsZero() {
				logger.Warnf(ctx, "unknown recording time; correlating with the whole %q", name)
				break
			}
			s, err = s.Slice(recordedAt, length, cfg.ReferenceMargin)
		}
	case cfg.ReferenceDir == "":
		return nil, "", fmt.Errorf("%w: neither a reference directory nor a reference file is configured", enf.ErrReferenceDataMissing)
	case recordedAt.IsZero():
		return nil, "", fmt.Errorf("%w: the recording time is unknown", enf.ErrReferenceDataMissing)
	default:
		name = reference.FileName(recordedAt)
		if cfg.CorrelateRecordingTime {
			s, err = reference.LoadAround(ctx, cfg.ReferenceDir, recordedAt, length, cfg.ReferenceMargin)
		} else {
			s, err = reference.LoadDays(ctx, cfg.ReferenceDir, recordedAt, recordedAt.Add(time.Duration(length)*reference.DefaultStep))
		}
	}
	if err != nil {
		return nil, name, err
	}
	if s.Len() < length-cfg.SkipSeconds {
		return nil, name, enf.InsufficientDataf("the reference has %d samples, but the tracks have %d", s.Len(), length-cfg.SkipSeconds)
	}
	logger.Debugf(ctx, "correlating with %d samples of %q", s.Len(), name)
	return s, name, nil
}
