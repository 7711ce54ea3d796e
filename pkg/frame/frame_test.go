package frame

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGray(t *testing.T) {
	f := New(2, 1, 3)
	copy(f.Pix, []byte{255, 255, 255, 0, 0, 255})
	gray := f.Gray()
	assert.Equal(t, []uint8{255, 76}, gray)

	g, err := NewGray(2, 1, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2}, g.Gray())

	_, err = NewGray(2, 2, []byte{1, 2})
	assert.Error(t, err)
}

func TestImageRoundTrip(t *testing.T) {
	f := New(3, 2, 3)
	for idx := range f.Pix {
		f.Pix[idx] = byte(idx * 10)
	}
	assert.Equal(t, f, FromImage(f.Image()))
}

func TestGaussianBlur5(t *testing.T) {
	t.Run("constant", func(t *testing.T) {
		plane := make([]float64, 7*5)
		for idx := range plane {
			plane[idx] = 42
		}
		for _, v := range GaussianBlur5(plane, 7, 5) {
			assert.InDelta(t, 42, v, 1e-9)
		}
	})
	t.Run("impulse", func(t *testing.T) {
		plane := make([]float64, 9*9)
		plane[4*9+4] = 1
		blurred := GaussianBlur5(plane, 9, 9)
		assert.InDelta(t, 36.0/256, blurred[4*9+4], 1e-12)
		var sum float64
		for _, v := range blurred {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-12)
	})
}

func TestSliceSource(t *testing.T) {
	ctx := context.Background()
	a := New(2, 2, 1)
	s := NewSliceSource(Info{FPS: 30, FPSReal: 30}, []*Frame{a, nil, a})
	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, info.TotalFrames)
	assert.Equal(t, 2, info.Width)

	idx, f, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Same(t, a, f)

	idx, _, err = s.Next(ctx)
	assert.Equal(t, 1, idx)
	assert.ErrorIs(t, err, ErrUnreadable)

	_, _, err = s.Next(ctx)
	require.NoError(t, err)
	_, _, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecordedAtFromName(t *testing.T) {
	ts, ok := RecordedAtFromName("/data/videos/V2023-01-05T103000Z.mp4")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 1, 5, 10, 30, 0, 0, time.UTC), ts)

	_, ok = RecordedAtFromName("/data/2023-01-05T103000Z/video.mp4")
	assert.False(t, ok)
	_, ok = RecordedAtFromName("2023-13-05T103000Z.mp4")
	assert.False(t, ok)
}
