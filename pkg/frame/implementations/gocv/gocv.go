//go:build gocv
// +build gocv

// Package gocv decodes video files through OpenCV.
package gocv

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/facebookincubator/go-belt/tool/logger"
	"gocv.io/x/gocv"
)

type Source struct {
	capture  *gocv.VideoCapture
	mat      gocv.Mat
	info     frame.Info
	position int
}

var _ frame.Source = (*Source)(nil)

func New(
	ctx context.Context,
	path string,
) (*Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("unable to open %q", path)
	}

	fpsReal := math.Round(capture.Get(gocv.VideoCaptureFPS)*100) / 100
	info := frame.Info{
		FPS:         int(math.Round(fpsReal)),
		FPSReal:     fpsReal,
		TotalFrames: int(capture.Get(gocv.VideoCaptureFrameCount)),
		Width:       int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}
	if t, ok := frame.RecordedAtFromName(path); ok {
		info.RecordedAt = t
	}
	if fpsReal <= 0 {
		capture.Close()
		return nil, fmt.Errorf("%q reports an invalid frame rate %v", path, fpsReal)
	}
	logger.Debugf(ctx, "video %q: fps_real:%v fps:%d frames:%d size:%dx%d", path, info.FPSReal, info.FPS, info.TotalFrames, info.Width, info.Height)

	return &Source{
		capture: capture,
		mat:     gocv.NewMat(),
		info:    info,
	}, nil
}

func (s *Source) Close() error {
	if err := s.mat.Close(); err != nil {
		return fmt.Errorf("unable to release the frame buffer: %w", err)
	}
	return s.capture.Close()
}

func (s *Source) Info(
	ctx context.Context,
) (frame.Info, error) {
	return s.info, nil
}

func (s *Source) Next(
	ctx context.Context,
) (int, *frame.Frame, error) {
	if s.info.TotalFrames > 0 && s.position >= s.info.TotalFrames {
		return s.position, nil, io.EOF
	}
	idx := s.position
	s.position++

	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		if s.info.TotalFrames <= 0 {
			return idx, nil, io.EOF
		}
		logger.Warnf(ctx, "unable to read frame %d of %d", idx, s.info.TotalFrames)
		return idx, nil, frame.ErrUnreadable
	}

	channels := s.mat.Channels()
	if channels != 1 && channels != 3 {
		return idx, nil, fmt.Errorf("frame %d has an unsupported amount of channels: %d", idx, channels)
	}
	return idx, &frame.Frame{
		Width:    s.mat.Cols(),
		Height:   s.mat.Rows(),
		Channels: channels,
		Pix:      s.mat.ToBytes(),
	}, nil
}
