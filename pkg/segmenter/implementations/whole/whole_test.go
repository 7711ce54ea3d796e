package whole

import (
	"context"
	"testing"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {
	seg, err := New().Segment(context.Background(), frame.New(4, 3, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, seg.Count())
	assert.Len(t, seg.Members(1), 12)
	for _, contour := range seg.ContourMask() {
		assert.False(t, contour)
	}
}
