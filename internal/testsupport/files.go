package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"analemma/internal/imaging"
)

// WriteScript writes an executable /bin/sh script with the given body.
func WriteScript(t testing.TB, path, body string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
}

// Frame returns a width x height RGB frame filled with value.
func Frame(width, height int, value uint8) imaging.Frame {
	frame := imaging.NewFrame(width, height, 3)
	for i := range frame.Pix {
		frame.Pix[i] = value
	}
	return frame
}

// WriteTIFF encodes frame as a TIFF at path.
func WriteTIFF(t testing.TB, path string, frame imaging.Frame) {
	t.Helper()
	writeImage(t, path, func(f *os.File) error { return imaging.WriteTIFF(f, frame) })
}

// WritePNG encodes frame as a PNG at path.
func WritePNG(t testing.TB, path string, frame imaging.Frame) {
	t.Helper()
	writeImage(t, path, func(f *os.File) error { return imaging.WritePNG(f, frame) })
}

// WriteFITS encodes frame as a FITS file at path with no extra header cards.
func WriteFITS(t testing.TB, path string, frame imaging.Frame) {
	t.Helper()
	writeImage(t, path, func(f *os.File) error { return imaging.WriteFITS(f, frame, nil) })
}

func writeImage(t testing.TB, path string, encode func(*os.File) error) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := encode(f); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
