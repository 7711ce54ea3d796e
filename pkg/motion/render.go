package motion

import (
	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/segmenter"
)

// contourColor is red in BGR order.
var contourColor = [3]byte{0, 0, 255}

// RenderSteady copies the pixels of steady regions of src into a new
// BGR frame; everything else stays black. If withContours is set,
// region borders are drawn in red.
func RenderSteady(
	src *frame.Frame,
	segmentation *segmenter.Segmentation,
	states []RegionState,
	withContours bool,
) *frame.Frame {
	result := frame.New(src.Width, src.Height, 3)
	for idx, label := range segmentation.Labels {
		if label <= 0 || int(label) > len(states) || states[label-1] != RegionStateSteady {
			continue
		}
		if src.Channels == 1 {
			v := src.Pix[idx]
			result.Pix[idx*3], result.Pix[idx*3+1], result.Pix[idx*3+2] = v, v, v
			continue
		}
		copy(result.Pix[idx*3:idx*3+3], src.Pix[idx*3:idx*3+3])
	}
	if withContours {
		for idx, isContour := range segmentation.ContourMask() {
			if isContour {
				copy(result.Pix[idx*3:idx*3+3], contourColor[:])
			}
		}
	}
	return result
}
