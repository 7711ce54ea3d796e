package frame

import (
	"fmt"
	"image"
	"image/color"
)

// Frame is a decoded video frame. Pixels are stored row by row; a pixel
// is either one gray byte (Channels == 1) or three bytes in BGR order
// (Channels == 3).
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// New allocates a black frame.
func New(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]byte, width*height*channels),
	}
}

// NewGray wraps gray pixels into a frame.
func NewGray(width, height int, pix []byte) (*Frame, error) {
	f := &Frame{
		Width:    width,
		Height:   height,
		Channels: 1,
		Pix:      pix,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks that the dimensions agree with the pixel buffer.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	switch f.Channels {
	case 1, 3:
	default:
		return fmt.Errorf("unsupported amount of channels: %d", f.Channels)
	}
	if len(f.Pix) != f.Width*f.Height*f.Channels {
		return fmt.Errorf("pixel buffer has %d bytes, expected %d", len(f.Pix), f.Width*f.Height*f.Channels)
	}
	return nil
}

// PixelCount returns Width*Height.
func (f *Frame) PixelCount() int {
	return f.Width * f.Height
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{
		Width:    f.Width,
		Height:   f.Height,
		Channels: f.Channels,
		Pix:      pix,
	}
}

// Gray returns the luminance of every pixel, using the ITU-R BT.601 weights
// (the same conversion as OpenCV's BGR2GRAY).
func (f *Frame) Gray() []uint8 {
	if f.Channels == 1 {
		return f.Pix
	}
	result := make([]uint8, f.PixelCount())
	for idx := range result {
		b := uint32(f.Pix[idx*3])
		g := uint32(f.Pix[idx*3+1])
		r := uint32(f.Pix[idx*3+2])
		// fixed point with 14 fractional bits
		result[idx] = uint8((r*4899 + g*9617 + b*1868 + 1<<13) >> 14)
	}
	return result
}

// FromImage converts an image into a BGR frame.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := New(bounds.Dx(), bounds.Dy(), 3)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			f.Pix[idx] = c.B
			f.Pix[idx+1] = c.G
			f.Pix[idx+2] = c.R
			idx += 3
		}
	}
	return f
}

// Image converts the frame into an image.Image.
func (f *Frame) Image() image.Image {
	if f.Channels == 1 {
		img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
		copy(img.Pix, f.Pix)
		return img
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for idx := 0; idx < f.PixelCount(); idx++ {
		img.Pix[idx*4] = f.Pix[idx*3+2]
		img.Pix[idx*4+1] = f.Pix[idx*3+1]
		img.Pix[idx*4+2] = f.Pix[idx*3]
		img.Pix[idx*4+3] = 0xff
	}
	return img
}
