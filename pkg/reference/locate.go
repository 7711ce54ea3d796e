package reference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/facebookincubator/go-belt/tool/logger"
)

const dayFileLayout = "2006-01-02"

// FileName returns the name of the file holding the reference of the day
// of t (in UTC).
func FileName(t time.Time) string {
	return t.UTC().Format(dayFileLayout) + ".csv"
}

// Locate returns the path of the reference file covering t.
func Locate(dir string, t time.Time) (string, error) {
	path := filepath.Join(dir, FileName(t))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", enf.ErrReferenceDataMissing, path)
		}
		return "", fmt.Errorf("unable to stat %q: %w", path, err)
	}
	return path, nil
}

// LoadDays loads the per-day files of dir that cover [from, to] and joins
// them into one series.
func LoadDays(
	ctx context.Context,
	dir string,
	from time.Time,
	to time.Time,
) (*Series, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("the end %v is before the start %v", to, from)
	}
	result := &Series{}
	for day := from.UTC().Truncate(24 * time.Hour); !day.After(to); day = day.Add(24 * time.Hour) {
		path, err := Locate(dir, day)
		if err != nil {
			return nil, err
		}
		s, err := LoadCSV(ctx, path)
		if err != nil {
			return nil, err
		}
		result.Times = append(result.Times, s.Times...)
		result.Values = append(result.Values, s.Values...)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("the day files of %q do not join: %w", dir, err)
	}
	logger.Debugf(ctx, "loaded %d reference samples for %v..%v", result.Len(), from, to)
	return result, nil
}

// LoadAround loads the reference of a recording that starts at recordedAt
// and lasts length samples (of DefaultStep), with margin samples on both
// sides.
func LoadAround(
	ctx context.Context,
	dir string,
	recordedAt time.Time,
	length int,
	margin int,
) (*Series, error) {
	marginDuration := time.Duration(margin) * DefaultStep
	s, err := LoadDays(ctx, dir, recordedAt.Add(-marginDuration), recordedAt.Add(time.Duration(length)*DefaultStep+marginDuration))
	if err != nil {
		return nil, err
	}
	return s.Slice(recordedAt, length, margin)
}
