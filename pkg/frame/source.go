package frame

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrUnreadable is returned by Source.Next when the frame at the returned
// index exists but could not be decoded. The source advances past it.
var ErrUnreadable = errors.New("unable to read the frame")

type Info struct {
	// FPS is the nominal (integer) frame rate from the container.
	FPS int

	// FPSReal is the actual frame rate, used as the sampling rate.
	FPSReal float64

	// TotalFrames is zero if unknown.
	TotalFrames int

	Width  int
	Height int

	// RecordedAt is zero if the source cannot tell.
	RecordedAt time.Time
}

// Duration returns the duration of the video if the amount of frames is known.
func (i Info) Duration() time.Duration {
	if i.FPSReal <= 0 {
		return 0
	}
	return time.Duration(float64(i.TotalFrames) / i.FPSReal * float64(time.Second))
}

// Source yields frames in order.
type Source interface {
	io.Closer

	Info(ctx context.Context) (Info, error)

	// Next returns the index and the content of the next frame.
	// It returns io.EOF after the last frame, and ErrUnreadable
	// (together with the index) for a frame that cannot be decoded.
	Next(ctx context.Context) (int, *Frame, error)
}

/* for easier copy&paste:

func () Close() error {
}

func () Info(
	ctx context.Context,
) (frame.Info, error) {
}

func () Next(
	ctx context.Context,
) (int, *frame.Frame, error) {
}

*/
