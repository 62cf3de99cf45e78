package imaging

import (
	"fmt"
	"io"

	"golang.org/x/image/tiff"
)

// WriteTIFF encodes frame losslessly with deflate compression.
func WriteTIFF(w io.Writer, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if err := tiff.Encode(w, frame.Image(), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("encode tiff: %w", err)
	}
	return nil
}

// ReadTIFF decodes a TIFF into a frame.
func ReadTIFF(r io.Reader) (Frame, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return Frame{}, fmt.Errorf("decode tiff: %w", err)
	}
	return FromImage(img), nil
}
