package imaging_test

import (
	"bytes"
	"errors"
	"testing"

	"analemma/internal/imaging"
)

func gradient(width, height, channels int) imaging.Frame {
	frame := imaging.NewFrame(width, height, channels)
	for i := range frame.Pix {
		frame.Pix[i] = uint8(i * 7 % 251)
	}
	return frame
}

func uniform(width, height, channels int, value uint8) imaging.Frame {
	frame := imaging.NewFrame(width, height, channels)
	for i := range frame.Pix {
		frame.Pix[i] = value
	}
	return frame
}

func TestPlanarRoundTrip(t *testing.T) {
	frame := gradient(5, 4, 3)
	planar := frame.Planar()
	// Channel 1 of pixel (x=2, y=1) lives at plane 1, offset y*W+x.
	if got, want := planar[1*20+1*5+2], frame.At(2, 1, 1); got != want {
		t.Fatalf("planar sample = %d, want %d", got, want)
	}
	back, err := imaging.FromPlanar(5, 4, 3, planar)
	if err != nil {
		t.Fatalf("FromPlanar: %v", err)
	}
	if !bytes.Equal(back.Pix, frame.Pix) {
		t.Fatal("planar round trip changed samples")
	}
}

func TestFITSRoundTripKeepsPixelsAndHeader(t *testing.T) {
	frame := gradient(16, 9, 3)
	cards := []imaging.Card{
		{Name: "OBJECT", Value: "SUN", Comment: "Target"},
		{Name: "EXPTIME", Value: 0.0025, Comment: "Exposure time in seconds"},
		{Name: "GAIN", Value: 120, Comment: "Camera gain"},
	}
	var buf bytes.Buffer
	if err := imaging.WriteFITS(&buf, frame, cards); err != nil {
		t.Fatalf("WriteFITS: %v", err)
	}

	decoded, got, err := imaging.ReadFITS(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadFITS: %v", err)
	}
	if !decoded.SameShape(frame) || !bytes.Equal(decoded.Pix, frame.Pix) {
		t.Fatalf("decoded frame differs: %dx%dx%d", decoded.Width, decoded.Height, decoded.Channels)
	}
	exp, ok := imaging.LookupCard(got, "EXPTIME")
	if !ok {
		t.Fatal("EXPTIME missing")
	}
	if v, ok := imaging.CardFloat(exp.Value); !ok || v != 0.0025 {
		t.Fatalf("EXPTIME = %v", exp.Value)
	}
	gain, ok := imaging.LookupCard(got, "GAIN")
	if !ok {
		t.Fatal("GAIN missing")
	}
	if v, ok := imaging.CardFloat(gain.Value); !ok || v != 120 {
		t.Fatalf("GAIN = %v", gain.Value)
	}
	if obj, _ := imaging.LookupCard(got, "OBJECT"); obj.Value != "SUN" {
		t.Fatalf("OBJECT = %v", obj.Value)
	}
}

func TestFITSMonochrome(t *testing.T) {
	frame := gradient(7, 3, 1)
	var buf bytes.Buffer
	if err := imaging.WriteFITS(&buf, frame, nil); err != nil {
		t.Fatalf("WriteFITS: %v", err)
	}
	decoded, _, err := imaging.ReadFITS(&buf)
	if err != nil {
		t.Fatalf("ReadFITS: %v", err)
	}
	if decoded.Channels != 1 || !bytes.Equal(decoded.Pix, frame.Pix) {
		t.Fatal("monochrome round trip changed frame")
	}
}

func TestTIFFAndPNGPreservePixelsVerbatim(t *testing.T) {
	for _, channels := range []int{1, 3} {
		frame := gradient(11, 6, channels)

		var tiffBuf bytes.Buffer
		if err := imaging.WriteTIFF(&tiffBuf, frame); err != nil {
			t.Fatalf("WriteTIFF: %v", err)
		}
		fromTIFF, err := imaging.ReadTIFF(&tiffBuf)
		if err != nil {
			t.Fatalf("ReadTIFF: %v", err)
		}
		if !fromTIFF.SameShape(frame) || !bytes.Equal(fromTIFF.Pix, frame.Pix) {
			t.Fatalf("tiff round trip changed %d-channel frame", channels)
		}

		var pngBuf bytes.Buffer
		if err := imaging.WritePNG(&pngBuf, frame); err != nil {
			t.Fatalf("WritePNG: %v", err)
		}
		fromPNG, err := imaging.ReadPNG(&pngBuf)
		if err != nil {
			t.Fatalf("ReadPNG: %v", err)
		}
		if !fromPNG.SameShape(frame) || !bytes.Equal(fromPNG.Pix, frame.Pix) {
			t.Fatalf("png round trip changed %d-channel frame", channels)
		}
	}
}

func TestLightenIsOrderIndependent(t *testing.T) {
	a := uniform(4, 4, 3, 100)
	b := uniform(4, 4, 3, 200)

	ab := a.Clone()
	if err := imaging.Lighten(ab, b); err != nil {
		t.Fatalf("Lighten: %v", err)
	}
	ba := b.Clone()
	if err := imaging.Lighten(ba, a); err != nil {
		t.Fatalf("Lighten: %v", err)
	}
	for i := range ab.Pix {
		if ab.Pix[i] != 200 || ba.Pix[i] != 200 {
			t.Fatalf("sample %d: ab=%d ba=%d, want 200", i, ab.Pix[i], ba.Pix[i])
		}
	}
}

func TestLightenRejectsMismatchedShape(t *testing.T) {
	acc := uniform(4, 4, 3, 10)
	err := imaging.Lighten(acc, uniform(5, 4, 3, 250))
	if !errors.Is(err, imaging.ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
	if acc.Pix[0] != 10 {
		t.Fatal("accumulator modified on mismatch")
	}
}

func TestValidateRejectsEmptyFrame(t *testing.T) {
	if err := (imaging.Frame{}).Validate(); !errors.Is(err, imaging.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	bad := imaging.Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]uint8, 5)}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for short pixel buffer")
	}
}
