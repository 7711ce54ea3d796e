//go:build gocv
// +build gocv

package gocv

import (
	"context"
	"testing"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayFrame(width, height int, value byte, square int) *frame.Frame {
	f := frame.New(width, height, 1)
	for idx := range f.Pix {
		f.Pix[idx] = value
		if x, y := idx%width, idx/width; x >= square && x < 2*square && y >= square && y < 2*square {
			f.Pix[idx] = 250
		}
	}
	return f
}

func TestSubtractor(t *testing.T) {
	ctx := context.Background()
	const width, height = 64, 48
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &Subtractor{}, motion.NewSubtractor(ctx))

	background := grayFrame(width, height, 100, 0)
	for i := 0; i < 50; i++ {
		_, err := s.Apply(ctx, background)
		require.NoError(t, err)
	}
	fg, err := s.Apply(ctx, grayFrame(width, height, 100, 16))
	require.NoError(t, err)
	require.Len(t, fg, width*height)
	assert.True(t, fg[24*width+24])
	assert.False(t, fg[2*width+2])
}
