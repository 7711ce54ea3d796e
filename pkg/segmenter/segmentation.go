package segmenter

import (
	"fmt"
)

// Segmentation is an immutable label grid.
type Segmentation struct {
	Width  int
	Height int

	// Labels holds the region ID of every pixel, row by row.
	Labels []int32

	// RegionSize is the nominal edge length of a region in pixels
	// (zero for a single region covering the frame).
	RegionSize int

	members [][]int
}

// NewSegmentation relabels the given labels so that IDs become dense,
// 1-based, and ordered by the raster position of the first pixel of
// each region.
func NewSegmentation(width, height int, labels []int32, regionSize int) (*Segmentation, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	if len(labels) != width*height {
		return nil, fmt.Errorf("got %d labels for %dx%d pixels", len(labels), width, height)
	}

	mapping := map[int32]int32{}
	relabeled := make([]int32, len(labels))
	var members [][]int
	members = append(members, nil)
	for idx, label := range labels {
		id, ok := mapping[label]
		if !ok {
			id = int32(len(members))
			mapping[label] = id
			members = append(members, nil)
		}
		relabeled[idx] = id
		members[id] = append(members[id], idx)
	}

	return &Segmentation{
		Width:      width,
		Height:     height,
		Labels:     relabeled,
		RegionSize: regionSize,
		members:    members,
	}, nil
}

// Count returns the amount of regions.
func (s *Segmentation) Count() int {
	return len(s.members) - 1
}

// IDs returns the region IDs in ascending order.
func (s *Segmentation) IDs() []int {
	ids := make([]int, s.Count())
	for idx := range ids {
		ids[idx] = idx + 1
	}
	return ids
}

// Members returns the flat pixel indices of the region. The returned
// slice must not be modified.
func (s *Segmentation) Members(id int) []int {
	if id <= 0 || id >= len(s.members) {
		return nil
	}
	return s.members[id]
}

// Size returns the amount of pixels in the region.
func (s *Segmentation) Size(id int) int {
	return len(s.Members(id))
}

// ContourMask marks pixels whose right or bottom neighbor belongs to
// another region.
func (s *Segmentation) ContourMask() []bool {
	mask := make([]bool, len(s.Labels))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			idx := y*s.Width + x
			if x+1 < s.Width && s.Labels[idx] != s.Labels[idx+1] {
				mask[idx] = true
			}
			if y+1 < s.Height && s.Labels[idx] != s.Labels[idx+s.Width] {
				mask[idx] = true
			}
		}
	}
	return mask
}
