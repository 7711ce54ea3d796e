package motion

import (
	"context"
	"testing"
	"time"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/segmenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halves(t testing.TB, width, height int) *segmenter.Segmentation {
	labels := make([]int32, width*height)
	for idx := range labels {
		if idx%width < width/2 {
			labels[idx] = 1
		} else {
			labels[idx] = 2
		}
	}
	seg, err := segmenter.NewSegmentation(width, height, labels, width/2)
	require.NoError(t, err)
	return seg
}

func grayFrame(width, height int, value byte) *frame.Frame {
	f := frame.New(width, height, 1)
	for idx := range f.Pix {
		f.Pix[idx] = value
	}
	return f
}

func withSquare(f *frame.Frame, x0, y0, size int, value byte) *frame.Frame {
	f = f.Clone()
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			f.Pix[y*f.Width+x] = value
		}
	}
	return f
}

func TestSteadinessMask(t *testing.T) {
	m := NewSteadinessMask(3)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []int{1, 2, 3}, m.SteadyIDs())

	assert.True(t, m.MarkUnsteady(2))
	assert.False(t, m.MarkUnsteady(2))
	assert.False(t, m.MarkUnsteady(0))
	assert.False(t, m.MarkUnsteady(4))

	assert.Equal(t, RegionStateUnsteady, m.State(2))
	assert.True(t, m.IsSteady(1))
	assert.False(t, m.IsSteady(2))
	assert.Equal(t, []int{1, 3}, m.SteadyIDs())
	assert.Equal(t, []RegionState{RegionStateSteady, RegionStateUnsteady, RegionStateSteady}, m.Snapshot())
	assert.Equal(t, "unsteady", RegionStateUnsteady.String())
}

func TestBackground(t *testing.T) {
	bg := NewBackground()
	plane := make([]float64, 16)
	for idx := range plane {
		plane[idx] = 100
	}
	assert.NotContains(t, bg.Apply(plane), true)
	assert.NotContains(t, bg.Apply(plane), true)

	changed := make([]float64, len(plane))
	copy(changed, plane)
	changed[3] = 200
	changed[4] = 105
	fg := bg.Apply(changed)
	assert.True(t, fg[3])
	assert.False(t, fg[4])
	assert.Equal(t, 1, countTrue(fg))
}

func countTrue(values []bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}

func TestDetector(t *testing.T) {
	ctx := context.Background()
	const width, height = 20, 10
	seg := halves(t, width, height)

	d, err := NewDetector(DefaultThreshold, nil)
	require.NoError(t, err)

	require.NoError(t, d.Observe(ctx, grayFrame(width, height, 100)), "observe before the first frame is a no-op")
	assert.Nil(t, d.Mask())

	background := grayFrame(width, height, 100)
	require.NoError(t, d.FirstFrame(ctx, background, seg))
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Observe(ctx, background))
	}
	assert.Equal(t, []int{1, 2}, d.Mask().SteadyIDs())

	require.NoError(t, d.Observe(ctx, withSquare(background, 1, 1, 8, 250)))
	assert.Equal(t, []int{2}, d.Mask().SteadyIDs())

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Observe(ctx, background))
	}
	assert.Equal(t, []int{2}, d.Mask().SteadyIDs(), "a region never becomes steady again")

	fg := d.ForegroundFrame()
	require.NotNil(t, fg)
	assert.Equal(t, width*height, len(fg.Pix))

	d.ApplyDisabled([]int{2})
	assert.Empty(t, d.Mask().SteadyIDs())

	require.Error(t, d.Observe(ctx, grayFrame(width+1, height, 100)))
}

func TestDetector_SmallMotionIsTolerated(t *testing.T) {
	ctx := context.Background()
	const width, height = 20, 10
	d, err := NewDetector(0.5, nil)
	require.NoError(t, err)

	background := grayFrame(width, height, 100)
	require.NoError(t, d.FirstFrame(ctx, background, halves(t, width, height)))
	require.NoError(t, d.Observe(ctx, withSquare(background, 2, 2, 4, 250)))
	assert.Equal(t, []int{1, 2}, d.Mask().SteadyIDs())
}

func TestNewDetector(t *testing.T) {
	_, err := NewDetector(0, nil)
	assert.Error(t, err)
	_, err = NewDetector(1.5, nil)
	assert.Error(t, err)
}

func TestRenderSteady(t *testing.T) {
	seg := halves(t, 4, 2)
	src := grayFrame(4, 2, 7)
	img := RenderSteady(src, seg, []RegionState{RegionStateUnsteady, RegionStateSteady}, false)
	assert.Equal(t, []byte{
		0, 0, 0, 0, 0, 0, 7, 7, 7, 7, 7, 7,
		0, 0, 0, 0, 0, 0, 7, 7, 7, 7, 7, 7,
	}, img.Pix)

	img = RenderSteady(src, seg, []RegionState{RegionStateSteady, RegionStateSteady}, true)
	assert.Equal(t, contourColor[:], img.Pix[3:6])
	assert.Equal(t, []byte{7, 7, 7}, img.Pix[0:3])
}

func TestStartPreview(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const width, height = 20, 10
	d, err := NewDetector(DefaultThreshold, nil)
	require.NoError(t, err)
	background := grayFrame(width, height, 100)
	require.NoError(t, d.FirstFrame(ctx, background, halves(t, width, height)))
	d.ApplyDisabled([]int{1})

	ch := d.StartPreview(ctx, 5*time.Millisecond)
	select {
	case img := <-ch:
		require.NotNil(t, img)
		assert.Equal(t, byte(0), img.Pix[0])
		assert.Equal(t, byte(100), img.Pix[(width-1)*3])
	case <-time.After(5 * time.Second):
		t.Fatal("no preview received")
	}

	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, len(ch), 1)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, time.Millisecond)
}

// scriptedSubtractor reports the pixels of the frame brighter than 200 as
// moving.
type scriptedSubtractor struct {
	extra  int
	closed bool
}

func (s *scriptedSubtractor) Apply(ctx context.Context, f *frame.Frame) ([]bool, error) {
	gray := f.Gray()
	result := make([]bool, len(gray)+s.extra)
	for idx, v := range gray {
		result[idx] = v > 200
	}
	return result, nil
}

func (s *scriptedSubtractor) Close() error {
	s.closed = true
	return nil
}

func TestDetector_Subtractor(t *testing.T) {
	ctx := context.Background()
	const width, height = 20, 10
	s := &scriptedSubtractor{}
	d, err := NewDetector(DefaultThreshold, s)
	require.NoError(t, err)

	background := grayFrame(width, height, 100)
	require.NoError(t, d.FirstFrame(ctx, background, halves(t, width, height)))
	require.NoError(t, d.Observe(ctx, withSquare(background, 11, 1, 8, 250)))
	assert.Equal(t, []int{1}, d.Mask().SteadyIDs())

	s.extra = 1
	assert.Error(t, d.Observe(ctx, background))

	require.NoError(t, d.Close())
	assert.True(t, s.closed)
}

type unavailableSubtractorFactory struct{}

func (unavailableSubtractorFactory) NewSubtractor(ctx context.Context) (Subtractor, error) {
	return nil, assert.AnError
}

type scriptedSubtractorFactory struct{}

func (scriptedSubtractorFactory) NewSubtractor(ctx context.Context) (Subtractor, error) {
	return &scriptedSubtractor{}, nil
}

func TestNewSubtractor(t *testing.T) {
	ctx := context.Background()
	assert.IsType(t, &GaussianSubtractor{}, NewSubtractor(ctx), "without factories")

	RegisterSubtractorFactory(1, scriptedSubtractorFactory{})
	RegisterSubtractorFactory(10, unavailableSubtractorFactory{})
	assert.Panics(t, func() { RegisterSubtractorFactory(5, &scriptedSubtractorFactory{}) })

	factories := SubtractorFactories()
	require.Len(t, factories, 2)
	assert.IsType(t, unavailableSubtractorFactory{}, factories[0])
	assert.IsType(t, &scriptedSubtractor{}, NewSubtractor(ctx), "unavailable factories are skipped")
}

func TestGaussianSubtractor(t *testing.T) {
	ctx := context.Background()
	const width, height = 12, 12
	s := NewGaussianSubtractor()
	defer s.Close()

	background := grayFrame(width, height, 100)
	for i := 0; i < 3; i++ {
		fg, err := s.Apply(ctx, background)
		require.NoError(t, err)
		assert.Zero(t, countTrue(fg))
	}
	fg, err := s.Apply(ctx, withSquare(background, 4, 4, 4, 250))
	require.NoError(t, err)
	require.Len(t, fg, width*height)
	assert.True(t, fg[6*width+6])
	assert.False(t, fg[0])
}
