// Package slic implements simple linear iterative clustering: pixels are
// clustered by k-means in the joint (L*a*b*, x, y) space, searching only
// a 2S x 2S window around every cluster center, where S is the region size.
package slic

import (
	"context"
	"fmt"
	"math"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/segmenter"
	"github.com/facebookincubator/go-belt/tool/logger"
)

const (
	// DefaultRegionSizeDivisor yields the region size as
	// min(width, height) / DefaultRegionSizeDivisor.
	DefaultRegionSizeDivisor = 18

	// DefaultRatio weights the spatial distance against the color distance.
	// Small values follow the image content, large values give square regions.
	DefaultRatio = 0.08

	DefaultIterations = 10

	// Connected fragments smaller than RegionSize^2/minRegionFraction
	// are merged into an adjacent region.
	minRegionFraction = 4

	// labRange normalizes color distances.
	labRange = 100.0
)

type Segmenter struct {
	RegionSizeDivisor int
	Ratio             float64
	Iterations        int
}

var _ segmenter.Segmenter = (*Segmenter)(nil)

func New(
	regionSizeDivisor int,
	ratio float64,
	iterations int,
) (*Segmenter, error) {
	if regionSizeDivisor <= 0 {
		return nil, fmt.Errorf("region size divisor must be greater than 0: got %d", regionSizeDivisor)
	}
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("ratio must be within [0, 1]: got %v", ratio)
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be greater than 0: got %d", iterations)
	}
	return &Segmenter{
		RegionSizeDivisor: regionSizeDivisor,
		Ratio:             ratio,
		Iterations:        iterations,
	}, nil
}

// RegionSize returns the nominal edge length of a region for a frame
// of the given size.
func (s *Segmenter) RegionSize(width, height int) int {
	return max(1, min(width, height)/s.RegionSizeDivisor)
}

type center struct {
	l, a, b float64
	x, y    float64
}

func (s *Segmenter) Segment(
	ctx context.Context,
	f *frame.Frame,
) (_ret *segmenter.Segmentation, _err error) {
	logger.Tracef(ctx, "Segment")
	defer func() { logger.Tracef(ctx, "/Segment: %v", _err) }()

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	width, height := f.Width, f.Height
	regionSize := s.RegionSize(width, height)

	l, a, b := toLab(f)
	l = frame.GaussianBlur5(l, width, height)
	a = frame.GaussianBlur5(a, width, height)
	b = frame.GaussianBlur5(b, width, height)

	centers := initCenters(l, a, b, width, height, regionSize)

	n := width * height
	labels := make([]int32, n)
	distances := make([]float64, n)
	invS2 := 1 / float64(regionSize*regionSize)
	invC2 := 1 / (labRange * labRange)
	for iteration := 0; iteration < s.Iterations; iteration++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for idx := range labels {
			labels[idx] = -1
			distances[idx] = math.Inf(1)
		}
		for k, c := range centers {
			cx, cy := int(math.Round(c.x)), int(math.Round(c.y))
			x0, x1 := max(0, cx-regionSize), min(width-1, cx+regionSize)
			y0, y1 := max(0, cy-regionSize), min(height-1, cy+regionSize)
			for y := y0; y <= y1; y++ {
				for x := x0; x <= x1; x++ {
					idx := y*width + x
					dl, da, db := l[idx]-c.l, a[idx]-c.a, b[idx]-c.b
					dx, dy := float64(x)-c.x, float64(y)-c.y
					d := (1-s.Ratio)*(dl*dl+da*da+db*db)*invC2 + s.Ratio*(dx*dx+dy*dy)*invS2
					if d < distances[idx] {
						distances[idx] = d
						labels[idx] = int32(k)
					}
				}
			}
		}

		sums := make([]center, len(centers))
		counts := make([]int, len(centers))
		for idx, label := range labels {
			if label < 0 {
				continue
			}
			sum := &sums[label]
			sum.l += l[idx]
			sum.a += a[idx]
			sum.b += b[idx]
			sum.x += float64(idx % width)
			sum.y += float64(idx / width)
			counts[label]++
		}
		for k := range centers {
			if counts[k] == 0 {
				continue
			}
			c := float64(counts[k])
			centers[k] = center{
				l: sums[k].l / c,
				a: sums[k].a / c,
				b: sums[k].b / c,
				x: sums[k].x / c,
				y: sums[k].y / c,
			}
		}
	}

	labels = enforceConnectivity(labels, width, height, regionSize*regionSize/minRegionFraction)
	result, err := segmenter.NewSegmentation(width, height, labels, regionSize)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "regions: %d, region size: %d", result.Count(), regionSize)
	return result, nil
}

// initCenters places the centers on a regular grid and moves each one to
// the lowest-gradient position of its 3x3 neighborhood, so that centers
// do not start on an edge.
func initCenters(l, a, b []float64, width, height, regionSize int) []center {
	gradient := func(x, y int) float64 {
		if x <= 0 || y <= 0 || x >= width-1 || y >= height-1 {
			return math.Inf(1)
		}
		idx := y*width + x
		dx := l[idx+1] - l[idx-1]
		dy := l[idx+width] - l[idx-width]
		return dx*dx + dy*dy
	}

	var centers []center
	for y := regionSize / 2; y < height; y += regionSize {
		for x := regionSize / 2; x < width; x += regionSize {
			bestX, bestY := x, y
			bestGradient := gradient(x, y)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if g := gradient(x+dx, y+dy); g < bestGradient {
						bestX, bestY, bestGradient = x+dx, y+dy, g
					}
				}
			}
			idx := bestY*width + bestX
			centers = append(centers, center{
				l: l[idx],
				a: a[idx],
				b: b[idx],
				x: float64(bestX),
				y: float64(bestY),
			})
		}
	}
	return centers
}

// enforceConnectivity splits clusters into 4-connected components and
// merges components not larger than minSize into the adjacent component
// met first in raster order.
func enforceConnectivity(labels []int32, width, height, minSize int) []int32 {
	result := make([]int32, len(labels))
	for idx := range result {
		result[idx] = -1
	}

	neighbors := func(idx int, fn func(int)) {
		x, y := idx%width, idx/width
		if x > 0 {
			fn(idx - 1)
		}
		if y > 0 {
			fn(idx - width)
		}
		if x+1 < width {
			fn(idx + 1)
		}
		if y+1 < height {
			fn(idx + width)
		}
	}

	var (
		next      int32
		component []int
	)
	for start := range labels {
		if result[start] >= 0 {
			continue
		}

		adjacent := int32(-1)
		neighbors(start, func(nb int) {
			if result[nb] >= 0 {
				adjacent = result[nb]
			}
		})

		component = append(component[:0], start)
		result[start] = next
		for head := 0; head < len(component); head++ {
			neighbors(component[head], func(nb int) {
				if result[nb] < 0 && labels[nb] == labels[start] {
					result[nb] = next
					component = append(component, nb)
				}
			})
		}

		if len(component) <= minSize && adjacent >= 0 {
			for _, idx := range component {
				result[idx] = adjacent
			}
			continue
		}
		next++
	}
	return result
}
