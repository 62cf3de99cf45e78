package imaging

import (
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
)

// Card is one FITS header keyword.
type Card struct {
	Name    string
	Value   any
	Comment string
}

// WriteFITS encodes frame as a primary image HDU with BITPIX 8. Multi-channel
// frames are written channel-first, so NAXIS1=width, NAXIS2=height, NAXIS3=channels.
func WriteFITS(w io.Writer, frame Frame, cards []Card) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	axes := []int{frame.Width, frame.Height}
	if frame.Channels > 1 {
		axes = append(axes, frame.Channels)
	}

	file, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("create fits stream: %w", err)
	}
	img := fitsio.NewImage(8, axes)
	defer img.Close()

	hdr := img.Header()
	for _, card := range cards {
		if err := hdr.Append(fitsio.Card{Name: card.Name, Value: card.Value, Comment: card.Comment}); err != nil {
			file.Close()
			return fmt.Errorf("append header %s: %w", card.Name, err)
		}
	}
	if err := img.Write(frame.Planar()); err != nil {
		file.Close()
		return fmt.Errorf("write fits data: %w", err)
	}
	if err := file.Write(img); err != nil {
		file.Close()
		return fmt.Errorf("write fits hdu: %w", err)
	}
	return file.Close()
}

// ReadFITS decodes the primary HDU. It returns ErrNoData when the primary data
// unit is empty.
func ReadFITS(r io.Reader) (Frame, []Card, error) {
	file, err := fitsio.Open(r)
	if err != nil {
		return Frame{}, nil, fmt.Errorf("open fits stream: %w", err)
	}
	defer file.Close()

	if len(file.HDUs()) == 0 {
		return Frame{}, nil, ErrNoData
	}
	img, ok := file.HDU(0).(fitsio.Image)
	if !ok {
		return Frame{}, nil, fmt.Errorf("primary hdu is not an image")
	}
	hdr := img.Header()
	cards := make([]Card, 0, len(hdr.Keys()))
	for _, key := range hdr.Keys() {
		if card := hdr.Get(key); card != nil {
			cards = append(cards, Card{Name: card.Name, Value: card.Value, Comment: card.Comment})
		}
	}

	axes := hdr.Axes()
	if len(axes) == 0 {
		return Frame{}, cards, ErrNoData
	}
	total := 1
	for _, n := range axes {
		total *= n
	}
	if total == 0 {
		return Frame{}, cards, ErrNoData
	}
	if hdr.Bitpix() != 8 {
		return Frame{}, cards, fmt.Errorf("unsupported BITPIX %d", hdr.Bitpix())
	}

	raw := make([]byte, total)
	if err := img.Read(&raw); err != nil {
		return Frame{}, cards, fmt.Errorf("read fits data: %w", err)
	}

	width, height, channels := axes[0], 1, 1
	if len(axes) > 1 {
		height = axes[1]
	}
	if len(axes) > 2 {
		channels = axes[2]
	}
	frame, err := FromPlanar(width, height, channels, raw)
	if err != nil {
		return Frame{}, cards, err
	}
	return frame, cards, nil
}

// LookupCard returns the named card.
func LookupCard(cards []Card, name string) (Card, bool) {
	for _, card := range cards {
		if card.Name == name {
			return card, true
		}
	}
	return Card{}, false
}

// CardFloat converts a numeric header value to float64. Integer-valued reals
// may decode as integers, so both kinds are accepted.
func CardFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}
