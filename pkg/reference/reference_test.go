package reference

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calvan/enf-analysis/pkg/enf"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeries(start time.Time, values ...float64) *Series {
	s := &Series{}
	for idx, v := range values {
		s.Times = append(s.Times, start.Add(time.Duration(idx)*time.Second))
		s.Values = append(s.Values, v)
	}
	return s
}

func TestReadCSV(t *testing.T) {
	in := "time,frequency\n" +
		"2022-08-19 00:00:00,50.012\n" +
		"2022-08-19 00:00:01,49.998\n" +
		"2022-08-19 00:00:02,50\n"
	s, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	start := time.Date(2022, 8, 19, 0, 0, 0, 0, time.UTC)
	if diff := cmp.Diff(testSeries(start, 50.012, 49.998, 50), s); diff != "" {
		t.Errorf("unexpected series (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s))
	assert.Equal(t, in, buf.String())

	t.Run("bad header", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("foo,bar\n"))
		assert.Error(t, err)
	})
	t.Run("bad value", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("time,frequency\n2022-08-19 00:00:00,x\n"))
		assert.Error(t, err)
	})
	t.Run("unordered", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("time,frequency\n2022-08-19 00:00:01,50\n2022-08-19 00:00:00,50\n"))
		assert.Error(t, err)
	})
}

func TestReadNetztransparenz(t *testing.T) {
	in := "Datum;von;bis;Zeitzone;Frequenz\n" +
		"19.08.2022;00:00:00;00:00:01;UTC;50,012\n" +
		"19.08.2022;00:00:01;00:00:02;UTC;49,998\n" +
		"\n"
	s, err := ReadNetztransparenz(strings.NewReader(in), nil)
	require.NoError(t, err)
	start := time.Date(2022, 8, 19, 0, 0, 0, 0, time.UTC)
	if diff := cmp.Diff(testSeries(start, 50.012, 49.998), s); diff != "" {
		t.Errorf("unexpected series (-want +got):\n%s", diff)
	}

	_, err = ReadNetztransparenz(strings.NewReader("Datum;von\n19.08.2022;00:00:00\n"), nil)
	assert.Error(t, err)
}

func TestSeries_Slice(t *testing.T) {
	start := time.Date(2022, 8, 19, 10, 0, 0, 0, time.UTC)
	values := make([]float64, 100)
	for idx := range values {
		values[idx] = float64(idx)
	}
	s := testSeries(start, values...)

	sliced, err := s.Slice(start.Add(40*time.Second), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 20, sliced.Len())
	assert.Equal(t, 35.0, sliced.Values[0])
	assert.Equal(t, 54.0, sliced.Values[19])

	clamped, err := s.Slice(start.Add(2*time.Second), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, clamped.Values[0])
	assert.Equal(t, 17, clamped.Len())

	_, err = s.Slice(start.Add(-time.Hour), 10, 5)
	assert.ErrorIs(t, err, enf.ErrReferenceDataMissing)

	r := s.Range(start.Add(10*time.Second), start.Add(13*time.Second))
	assert.Equal(t, []float64{10, 11, 12}, r.Values)
}

func TestMatchingDiff(t *testing.T) {
	recordedAt := time.Date(2022, 8, 19, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, MatchingDiff(recordedAt, recordedAt, 0))
	assert.Equal(t, -4, MatchingDiff(recordedAt, recordedAt, 4))
	assert.Equal(t, 12, MatchingDiff(recordedAt, recordedAt.Add(16*time.Second), 4))
	assert.Equal(t, -30, MatchingDiff(recordedAt, recordedAt.Add(-30*time.Second), 0))
}

func TestLoadAround(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	day1 := time.Date(2022, 8, 19, 23, 59, 0, 0, time.UTC)
	values := make([]float64, 60)
	for idx := range values {
		values[idx] = 50 + float64(idx)/1000
	}
	writeDay := func(s *Series) {
		f, err := os.Create(filepath.Join(dir, FileName(s.Times[0])))
		require.NoError(t, err)
		defer f.Close()
		require.NoError(t, WriteCSV(f, s))
	}
	writeDay(testSeries(day1, values...))

	recordedAt := day1.Add(50 * time.Second)
	_, err := LoadAround(ctx, dir, recordedAt, 20, 5)
	assert.ErrorIs(t, err, enf.ErrReferenceDataMissing)
	assert.Equal(t, enf.FailureReasonReferenceDataMissing, enf.FailureReasonOf(err))

	writeDay(testSeries(day1.Add(time.Minute), values...))
	s, err := LoadAround(ctx, dir, recordedAt, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, 30, s.Len())
	assert.Equal(t, recordedAt.Add(-5*time.Second), s.Times[0])
	assert.Equal(t, "2022-08-20.csv", FileName(s.Times[29]))

	_, err = Locate(dir, day1.Add(48*time.Hour))
	assert.ErrorIs(t, err, enf.ErrReferenceDataMissing)
	_, err = LoadCSV(ctx, filepath.Join(dir, "nope.csv"))
	assert.ErrorIs(t, err, enf.ErrReferenceDataMissing)
}

func TestResample(t *testing.T) {
	start := time.Date(2022, 8, 19, 0, 0, 0, 0, time.UTC)
	s := &Series{
		Times: []time.Time{
			start.Add(100 * time.Millisecond),
			start.Add(600 * time.Millisecond),
			start.Add(1200 * time.Millisecond),
			start.Add(4100 * time.Millisecond),
		},
		Values: []float64{50, 50.02, 50.03, 50.06},
	}
	r, err := Resample(s, time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, r.Len())
	assert.Equal(t, start, r.Times[0])
	assert.Equal(t, start.Add(4*time.Second), r.Times[4])
	assert.InDeltaSlice(t, []float64{50.01, 50.03, 50.04, 50.05, 50.06}, r.Values, 1e-9)

	_, err = Resample(&Series{}, time.Second)
	assert.Error(t, err)
	_, err = Resample(s, 0)
	assert.Error(t, err)
}
