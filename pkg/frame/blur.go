package frame

// binomial5 approximates a Gaussian of sigma 1.1, which is what OpenCV picks
// for a 5x5 kernel when sigma is not given.
var binomial5 = [5]float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// GaussianBlur5 blurs a single plane of width*height values with a separable
// 5x5 kernel. Borders are reflected (without repeating the edge pixel).
func GaussianBlur5(plane []float64, width, height int) []float64 {
	tmp := make([]float64, len(plane))
	for y := 0; y < height; y++ {
		row := plane[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			var sum float64
			for k := -2; k <= 2; k++ {
				sum += binomial5[k+2] * row[reflect101(x+k, width)]
			}
			tmp[y*width+x] = sum
		}
	}
	result := make([]float64, len(plane))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for k := -2; k <= 2; k++ {
				sum += binomial5[k+2] * tmp[reflect101(y+k, height)*width+x]
			}
			result[y*width+x] = sum
		}
	}
	return result
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// GrayPlane returns the luminance as float64 values.
func (f *Frame) GrayPlane() []float64 {
	gray := f.Gray()
	result := make([]float64, len(gray))
	for idx, v := range gray {
		result[idx] = float64(v)
	}
	return result
}
