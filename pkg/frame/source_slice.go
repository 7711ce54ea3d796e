package frame

import (
	"context"
	"io"
)

// SliceSource serves frames from memory. A nil entry is reported as
// an unreadable frame.
type SliceSource struct {
	InfoValue Info
	Frames    []*Frame
	position  int
}

var _ Source = (*SliceSource)(nil)

func NewSliceSource(info Info, frames []*Frame) *SliceSource {
	if info.TotalFrames == 0 {
		info.TotalFrames = len(frames)
	}
	if len(frames) > 0 && frames[0] != nil {
		if info.Width == 0 {
			info.Width = frames[0].Width
		}
		if info.Height == 0 {
			info.Height = frames[0].Height
		}
	}
	return &SliceSource{
		InfoValue: info,
		Frames:    frames,
	}
}

func (s *SliceSource) Close() error {
	return nil
}

func (s *SliceSource) Info(
	ctx context.Context,
) (Info, error) {
	return s.InfoValue, nil
}

func (s *SliceSource) Next(
	ctx context.Context,
) (int, *Frame, error) {
	if s.position >= len(s.Frames) {
		return s.position, nil, io.EOF
	}
	idx := s.position
	s.position++
	f := s.Frames[idx]
	if f == nil {
		return idx, nil, ErrUnreadable
	}
	return idx, f, nil
}
