//go:build gocv
// +build gocv

// Package gocv subtracts the background with the MOG2 model of OpenCV.
package gocv

import (
	"context"
	"fmt"
	"image"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/motion"
	"github.com/facebookincubator/go-belt/tool/logger"
	"gocv.io/x/gocv"
)

const (
	// History is the amount of frames the MOG2 model remembers.
	History = 500

	// VarThreshold is the squared Mahalanobis distance above which
	// a pixel is foreground.
	VarThreshold = 16

	// foregroundValue is what MOG2 writes for foreground pixels; shadows
	// (127) are not detected.
	foregroundValue = 255
)

type Subtractor struct {
	mog2    gocv.BackgroundSubtractorMOG2
	blurred gocv.Mat
	mask    gocv.Mat
}

var _ motion.Subtractor = (*Subtractor)(nil)

func New(
	ctx context.Context,
) (*Subtractor, error) {
	logger.Debugf(ctx, "MOG2 background subtractor: history:%d var_threshold:%v", History, VarThreshold)
	return &Subtractor{
		mog2:    gocv.NewBackgroundSubtractorMOG2WithParams(History, VarThreshold, false),
		blurred: gocv.NewMat(),
		mask:    gocv.NewMat(),
	}, nil
}

func (s *Subtractor) Apply(
	ctx context.Context,
	f *frame.Frame,
) ([]bool, error) {
	gray, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8U, f.Gray())
	if err != nil {
		return nil, fmt.Errorf("unable to wrap the frame: %w", err)
	}
	defer gray.Close()

	gocv.GaussianBlur(gray, &s.blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)
	s.mog2.Apply(s.blurred, &s.mask)
	if s.mask.Rows() != f.Height || s.mask.Cols() != f.Width {
		return nil, fmt.Errorf("the foreground mask is %dx%d, expected %dx%d", s.mask.Cols(), s.mask.Rows(), f.Width, f.Height)
	}

	pix := s.mask.ToBytes()
	result := make([]bool, len(pix))
	for idx, v := range pix {
		result[idx] = v == foregroundValue
	}
	return result, nil
}

func (s *Subtractor) Close() error {
	if err := s.mask.Close(); err != nil {
		return fmt.Errorf("unable to release the mask: %w", err)
	}
	if err := s.blurred.Close(); err != nil {
		return fmt.Errorf("unable to release the blurred frame: %w", err)
	}
	return s.mog2.Close()
}
