package imaging

import (
	"fmt"
	"image/png"
	"io"
)

// WritePNG encodes frame as PNG.
func WritePNG(w io.Writer, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if err := png.Encode(w, frame.Image()); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// ReadPNG decodes a PNG into a frame.
func ReadPNG(r io.Reader) (Frame, error) {
	img, err := png.Decode(r)
	if err != nil {
		return Frame{}, fmt.Errorf("decode png: %w", err)
	}
	return FromImage(img), nil
}
