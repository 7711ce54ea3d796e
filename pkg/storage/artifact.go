package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
)

// Artifact names used by the pipeline.
const (
	ArtifactMeanPerRegion    = "mean_per_region"
	ArtifactMedianPerRegion  = "median_per_region"
	ArtifactRegionIDs        = "region_ids"
	ArtifactMeanPerFrame     = "mean_per_frame"
	ArtifactRepresentative   = "representative_enf"
	ArtifactWeighted         = "weighted_enf"
	ArtifactMaxAmplitude     = "max_amplitude_enf"
	ArtifactQuadratic        = "quadratic_enf"
	ArtifactFilteredSignal   = "filtered_signal"
	ArtifactCorrelationCurve = "correlation"
)

// Matrix is a row-major array of float64 values.
type Matrix struct {
	Rows   int
	Cols   int
	Values []float64
}

func Vector(values []float64) Matrix {
	return Matrix{Rows: 1, Cols: len(values), Values: values}
}

func MatrixFromRows(rows [][]float64) (Matrix, error) {
	m := Matrix{Rows: len(rows)}
	if len(rows) > 0 {
		m.Cols = len(rows[0])
	}
	m.Values = make([]float64, 0, m.Rows*m.Cols)
	for idx, row := range rows {
		if len(row) != m.Cols {
			return Matrix{}, fmt.Errorf("row %d has %d values, expected %d", idx, len(row), m.Cols)
		}
		m.Values = append(m.Values, row...)
	}
	return m, nil
}

// Row returns a view of the row.
func (m Matrix) Row(idx int) []float64 {
	return m.Values[idx*m.Cols : (idx+1)*m.Cols]
}

func (m Matrix) Validate() error {
	if m.Rows < 0 || m.Cols < 0 || m.Rows*m.Cols != len(m.Values) {
		return fmt.Errorf("%dx%d matrix with %d values", m.Rows, m.Cols, len(m.Values))
	}
	return nil
}

// SaveArtifact stores (or replaces) the named array of the experiment and
// returns the amount of bytes written.
func (s *Store) SaveArtifact(
	ctx context.Context,
	experimentID int64,
	name string,
	m Matrix,
) (uint64, error) {
	if err := m.Validate(); err != nil {
		return 0, fmt.Errorf("invalid artifact %q: %w", name, err)
	}
	var buf bytes.Buffer
	wc := datacounter.NewWriterCounter(&buf)
	if err := encodeFloats(wc, m.Values); err != nil {
		return 0, fmt.Errorf("unable to encode artifact %q: %w", name, err)
	}

	blob := buf.Bytes()
	if blob == nil {
		// a nil slice is bound as NULL
		blob = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (experiment_id, name, rows, cols, blob) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id, name) DO UPDATE SET
			rows = excluded.rows, cols = excluded.cols, blob = excluded.blob, created_at = CURRENT_TIMESTAMP
	`, experimentID, name, m.Rows, m.Cols, blob)
	if err != nil {
		return 0, fmt.Errorf("unable to store artifact %q of experiment %d: %w", name, experimentID, err)
	}
	logger.Debugf(ctx, "stored artifact %q of experiment %d: %dx%d, %d bytes", name, experimentID, m.Rows, m.Cols, wc.Count())
	return wc.Count(), nil
}

// Artifact loads the named array; ErrNotFound if it was never stored.
func (s *Store) Artifact(
	ctx context.Context,
	experimentID int64,
	name string,
) (Matrix, error) {
	var (
		m    Matrix
		blob []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT rows, cols, blob FROM artifacts WHERE experiment_id = ? AND name = ?`,
		experimentID, name,
	).Scan(&m.Rows, &m.Cols, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Matrix{}, fmt.Errorf("artifact %q of experiment %d: %w", name, experimentID, ErrNotFound)
	}
	if err != nil {
		return Matrix{}, fmt.Errorf("unable to load artifact %q of experiment %d: %w", name, experimentID, err)
	}
	m.Values, err = decodeFloats(blob)
	if err != nil {
		return Matrix{}, fmt.Errorf("unable to decode artifact %q of experiment %d: %w", name, experimentID, err)
	}
	if err := m.Validate(); err != nil {
		return Matrix{}, fmt.Errorf("corrupted artifact %q of experiment %d: %w", name, experimentID, err)
	}
	return m, nil
}

// DeleteArtifacts removes the named arrays of the experiment (all of
// them if no names are given).
func (s *Store) DeleteArtifacts(
	ctx context.Context,
	experimentID int64,
	names ...string,
) error {
	if len(names) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE experiment_id = ?`, experimentID)
		return err
	}
	for _, name := range names {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE experiment_id = ? AND name = ?`, experimentID, name); err != nil {
			return fmt.Errorf("unable to delete artifact %q of experiment %d: %w", name, experimentID, err)
		}
	}
	return nil
}

func encodeFloats(w io.Writer, values []float64) error {
	var b [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

func decodeFloats(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("the length %d is not a multiple of 8", len(blob))
	}
	result := make([]float64, len(blob)/8)
	for idx := range result {
		result[idx] = math.Float64frombits(binary.LittleEndian.Uint64(blob[idx*8:]))
	}
	return result, nil
}
