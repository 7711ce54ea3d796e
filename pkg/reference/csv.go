package reference

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/facebookincubator/go-belt/tool/logger"
)

const (
	TimeLayout = "2006-01-02 15:04:05"

	timeColumn      = "time"
	frequencyColumn = "frequency"
)

// LoadCSV reads a reference file.
func LoadCSV(
	ctx context.Context,
	path string,
) (*Series, error) {
	logger.Debugf(ctx, "loading the reference %q", path)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", enf.ErrReferenceDataMissing, err)
		}
		return nil, fmt.Errorf("unable to open %q: %w", path, err)
	}
	defer f.Close()

	s, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read %q: %w", path, err)
	}
	logger.Debugf(ctx, "loaded %d reference samples from %q", s.Len(), path)
	return s, nil
}

// ReadCSV parses comma-separated "time,frequency" rows with a header line.
// Times are in the TimeLayout format and interpreted as UTC.
func ReadCSV(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read the header: %w", err)
	}
	if len(header) < 2 || strings.TrimSpace(header[0]) != timeColumn {
		return nil, fmt.Errorf("unexpected header %q, expected %q", strings.Join(header, ","), timeColumn+",<value>")
	}

	s := &Series{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(record[0]), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: unable to parse the time: %w", line, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: unable to parse the frequency: %w", line, err)
		}
		s.Times = append(s.Times, t)
		s.Values = append(s.Values, v)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteCSV writes the series in the format understood by ReadCSV.
func WriteCSV(w io.Writer, s *Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{timeColumn, frequencyColumn}); err != nil {
		return err
	}
	for idx, t := range s.Times {
		err := cw.Write([]string{
			t.UTC().Format(TimeLayout),
			strconv.FormatFloat(s.Values[idx], 'f', -1, 64),
		})
		if err != nil {
			return fmt.Errorf("unable to write row %d: %w", idx, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
