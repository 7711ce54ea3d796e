package enf

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when parameters are invalid before any
	// frame is processed (for example a passband above Nyquist or
	// an STFT window that is not longer than the frame rate).
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInsufficientData is returned when there are fewer steady regions
	// than required, or when the intensity buffer is empty.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrReferenceDataMissing is returned when no reference series covers
	// the recording date of a video.
	ErrReferenceDataMissing = errors.New("reference data missing")

	// ErrNumericDegeneracy marks a series without variance, so that
	// no correlation may be computed for it.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")

	// ErrNoENF marks a video whose regions do not agree on a frequency
	// track well enough to be correlated.
	ErrNoENF = errors.New("probably no ENF traces")
)

// FailureReason is a structured per-video failure classification.
type FailureReason string

const (
	FailureReasonNone                 = FailureReason("")
	FailureReasonConfiguration        = FailureReason("configuration")
	FailureReasonInsufficientData     = FailureReason("insufficient_data")
	FailureReasonReferenceDataMissing = FailureReason("reference_data_missing")
	FailureReasonNumericDegeneracy    = FailureReason("numeric_degeneracy")
	FailureReasonNoENF                = FailureReason("no_enf")
	FailureReasonCancelled            = FailureReason("cancelled")
	FailureReasonOther                = FailureReason("other")
)

// FailureReasonOf classifies an error returned by the pipeline.
func FailureReasonOf(err error) FailureReason {
	switch {
	case err == nil:
		return FailureReasonNone
	case errors.Is(err, ErrConfiguration):
		return FailureReasonConfiguration
	case errors.Is(err, ErrInsufficientData):
		return FailureReasonInsufficientData
	case errors.Is(err, ErrReferenceDataMissing):
		return FailureReasonReferenceDataMissing
	case errors.Is(err, ErrNumericDegeneracy):
		return FailureReasonNumericDegeneracy
	case errors.Is(err, ErrNoENF):
		return FailureReasonNoENF
	case errors.Is(err, errCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return FailureReasonCancelled
	default:
		return FailureReasonOther
	}
}

var errCancelled = errors.New("cancelled")

// Cancelled wraps a context error, so that FailureReasonOf reports it
// as a cancellation.
func Cancelled(err error) error {
	return fmt.Errorf("%w: %w", errCancelled, err)
}

// Configurationf builds an error wrapping ErrConfiguration.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// InsufficientDataf builds an error wrapping ErrInsufficientData.
func InsufficientDataf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInsufficientData, fmt.Sprintf(format, args...))
}
