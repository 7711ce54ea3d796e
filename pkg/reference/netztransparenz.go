package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	netztransparenzDateLayout = "02.01.2006"
	netztransparenzTimeLayout = "15:04:05"

	netztransparenzDateColumn  = 0
	netztransparenzTimeColumn  = 1
	netztransparenzValueColumn = 4
)

// ReadNetztransparenz parses a frequency export of netztransparenz.de:
// semicolon-separated, decimal commas, the date in the first column, the
// start of the interval in the second and the frequency in the fifth.
func ReadNetztransparenz(r io.Reader, location *time.Location) (*Series, error) {
	if location == nil {
		location = time.UTC
	}
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("unable to read the header: %w", err)
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
		if len(record) <= netztransparenzValueColumn {
			if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
				continue
			}
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d", line, netztransparenzValueColumn+1, len(record))
		}

		t, err := time.ParseInLocation(
			netztransparenzDateLayout+" "+netztransparenzTimeLayout,
			strings.TrimSpace(record[netztransparenzDateColumn])+" "+strings.TrimSpace(record[netztransparenzTimeColumn]),
			location,
		)
		if err != nil {
			return nil, fmt.Errorf("line %d: unable to parse the time: %w", line, err)
		}
		value := strings.ReplaceAll(strings.TrimSpace(record[netztransparenzValueColumn]), ",", ".")
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: unable to parse the frequency %q: %w", line, value, err)
		}
		s.Times = append(s.Times, t.UTC())
		s.Values = append(s.Values, v)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
