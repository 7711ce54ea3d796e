package imagedir

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGrayPNG(t *testing.T, path string, w, h int, value uint8) {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for idx := range img.Pix {
		img.Pix[idx] = value
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for idx := 0; idx < 5; idx++ {
		writeGrayPNG(t, filepath.Join(dir, fmt.Sprintf("frame_%03d.png", idx)), 8, 6, uint8(100+idx))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, InfoFileName), []byte("fps: 30\nfps_real: 29.97\nrecorded_at: 2023-01-05T10:30:00Z\n"), 0640))

	s, err := New(ctx, dir)
	require.NoError(t, err)
	defer s.Close()

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, info.FPS)
	assert.Equal(t, 29.97, info.FPSReal)
	assert.Equal(t, 5, info.TotalFrames)
	assert.Equal(t, 8, info.Width)
	assert.Equal(t, 6, info.Height)
	assert.Equal(t, time.Date(2023, 1, 5, 10, 30, 0, 0, time.UTC), info.RecordedAt.UTC())

	for expected := 0; expected < 5; expected++ {
		idx, f, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, idx)
		assert.Equal(t, 3, f.Channels)
		assert.Equal(t, uint8(100+expected), f.Gray()[0])
	}
	_, _, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSource_Unreadable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeGrayPNG(t, filepath.Join(dir, "a.png"), 4, 4, 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("garbage"), 0640))
	writeGrayPNG(t, filepath.Join(dir, "c.png"), 4, 4, 30)

	s, err := New(ctx, dir)
	require.NoError(t, err)

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultFPS, info.FPS)
	assert.True(t, info.RecordedAt.IsZero())

	_, _, err = s.Next(ctx)
	require.NoError(t, err)
	idx, _, err := s.Next(ctx)
	assert.Equal(t, 1, idx)
	assert.ErrorIs(t, err, frame.ErrUnreadable)
	idx, f, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, color.Gray{Y: 30}, color.GrayModel.Convert(f.Image().At(0, 0)))
}

func TestNew_NotADirectory(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
