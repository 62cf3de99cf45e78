package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var (
	// ErrNoData reports an image container with an empty primary data unit.
	ErrNoData = errors.New("no image data")
	// ErrShapeMismatch reports frames whose dimensions differ.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Frame is an 8-bit image with interleaved samples in (height, width, channels) order.
// Channels is 1 for monochrome or 3 for RGB.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height, channels int) Frame {
	return Frame{Width: width, Height: height, Channels: channels, Pix: make([]uint8, width*height*channels)}
}

// Validate checks that the dimensions are usable and match the sample buffer.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return ErrNoData
	}
	if f.Channels != 1 && f.Channels != 3 {
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Pix) != want {
		return fmt.Errorf("pixel buffer has %d samples, want %d", len(f.Pix), want)
	}
	return nil
}

// SameShape reports whether two frames have identical dimensions.
func (f Frame) SameShape(other Frame) bool {
	return f.Width == other.Width && f.Height == other.Height && f.Channels == other.Channels
}

// At returns the sample at column x, row y, channel c.
func (f Frame) At(x, y, c int) uint8 {
	return f.Pix[(y*f.Width+x)*f.Channels+c]
}

// Clone returns a deep copy.
func (f Frame) Clone() Frame {
	out := f
	out.Pix = append([]uint8(nil), f.Pix...)
	return out
}

// Planar reorders samples to (channels, height, width).
func (f Frame) Planar() []uint8 {
	if f.Channels == 1 {
		return append([]uint8(nil), f.Pix...)
	}
	plane := f.Width * f.Height
	out := make([]uint8, len(f.Pix))
	for i := 0; i < plane; i++ {
		for c := 0; c < f.Channels; c++ {
			out[c*plane+i] = f.Pix[i*f.Channels+c]
		}
	}
	return out
}

// FromPlanar builds a frame from (channels, height, width) samples.
func FromPlanar(width, height, channels int, data []uint8) (Frame, error) {
	plane := width * height
	if plane == 0 || channels == 0 {
		return Frame{}, ErrNoData
	}
	if len(data) != plane*channels {
		return Frame{}, fmt.Errorf("planar data has %d samples, want %d", len(data), plane*channels)
	}
	frame := NewFrame(width, height, channels)
	for c := 0; c < channels; c++ {
		for i := 0; i < plane; i++ {
			frame.Pix[i*channels+c] = data[c*plane+i]
		}
	}
	return frame, frame.Validate()
}

// Image exposes the frame as a standard library image.
func (f Frame) Image() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Channels == 1 {
		return &image.Gray{Pix: f.Pix, Stride: f.Width, Rect: rect}
	}
	img := image.NewNRGBA(rect)
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4] = f.Pix[i*3]
		img.Pix[i*4+1] = f.Pix[i*3+1]
		img.Pix[i*4+2] = f.Pix[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// FromImage converts a decoded image into a frame. Gray images keep one
// channel; everything else becomes RGB with alpha discarded.
func FromImage(img image.Image) Frame {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	switch src := img.(type) {
	case *image.Gray:
		frame := NewFrame(width, height, 1)
		for y := 0; y < height; y++ {
			copy(frame.Pix[y*width:(y+1)*width], src.Pix[y*src.Stride:y*src.Stride+width])
		}
		return frame
	case *image.NRGBA:
		return fromRGBA32(src.Pix, src.Stride, width, height)
	case *image.RGBA:
		if src.Opaque() {
			return fromRGBA32(src.Pix, src.Stride, width, height)
		}
	}

	frame := NewFrame(width, height, 3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := (y*width + x) * 3
			frame.Pix[i], frame.Pix[i+1], frame.Pix[i+2] = c.R, c.G, c.B
		}
	}
	return frame
}

func fromRGBA32(pix []uint8, stride, width, height int) Frame {
	frame := NewFrame(width, height, 3)
	for y := 0; y < height; y++ {
		row := pix[y*stride:]
		for x := 0; x < width; x++ {
			copy(frame.Pix[(y*width+x)*3:(y*width+x)*3+3], row[x*4:x*4+3])
		}
	}
	return frame
}

// Lighten folds next into acc with a per-pixel maximum. acc is modified in place.
func Lighten(acc, next Frame) error {
	if !acc.SameShape(next) {
		return fmt.Errorf("%w: %dx%dx%d vs %dx%dx%d", ErrShapeMismatch,
			acc.Height, acc.Width, acc.Channels, next.Height, next.Width, next.Channels)
	}
	for i, v := range next.Pix {
		if v > acc.Pix[i] {
			acc.Pix[i] = v
		}
	}
	return nil
}
