package segmenter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSegmentation(t *testing.T) {
	labels := []int32{
		7, 7, 3,
		7, 0, 3,
	}
	s, err := NewSegmentation(3, 2, labels, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Count())
	assert.Equal(t, []int{1, 2, 3}, s.IDs())
	assert.Equal(t, []int32{1, 1, 2, 1, 3, 2}, s.Labels)
	assert.Equal(t, []int{0, 1, 3}, s.Members(1))
	assert.Equal(t, []int{2, 5}, s.Members(2))
	assert.Equal(t, 1, s.Size(3))
	assert.Nil(t, s.Members(0))
	assert.Nil(t, s.Members(4))

	assert.Equal(t, []bool{
		false, true, false,
		true, true, false,
	}, s.ContourMask())

	_, err = NewSegmentation(3, 3, labels, 1)
	assert.Error(t, err)
}
