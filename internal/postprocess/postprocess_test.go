package postprocess_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"analemma/internal/imaging"
	"analemma/internal/logging"
	"analemma/internal/postprocess"
	"analemma/internal/services"
	"analemma/internal/testsupport"
)

func readTIFF(t *testing.T, path string) imaging.Frame {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	frame, err := imaging.ReadTIFF(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return frame
}

func TestConvertFITSToTIFFCopiesPixelsVerbatim(t *testing.T) {
	dir := t.TempDir()
	src := imaging.NewFrame(4, 3, 3)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	fitsPath := filepath.Join(dir, "analemma_20250621_120000.fits")
	testsupport.WriteFITS(t, fitsPath, src)

	out, err := postprocess.ConvertFITSToTIFF(fitsPath)
	if err != nil {
		t.Fatalf("ConvertFITSToTIFF: %v", err)
	}
	if want := filepath.Join(dir, "analemma_20250621_120000.tif"); out != want {
		t.Fatalf("expected %s, got %s", want, out)
	}
	got := readTIFF(t, out)
	if !got.SameShape(src) {
		t.Fatalf("shape changed: %dx%dx%d", got.Width, got.Height, got.Channels)
	}
	for i := range src.Pix {
		if got.Pix[i] != src.Pix[i] {
			t.Fatalf("pixel %d scaled: want %d got %d", i, src.Pix[i], got.Pix[i])
		}
	}
}

func TestConvertFITSToTIFFRejectsEmptyData(t *testing.T) {
	dir := t.TempDir()
	fitsPath := filepath.Join(dir, "empty.fits")
	f, err := os.Create(fitsPath)
	if err != nil {
		t.Fatal(err)
	}
	// A minimal primary header with NAXIS=0 and no data unit.
	header := []string{"SIMPLE  =                    T", "BITPIX  =                    8", "NAXIS   =                    0", "END"}
	var block []byte
	for _, card := range header {
		block = append(block, []byte(card+strings.Repeat(" ", 80-len(card)))...)
	}
	block = append(block, []byte(strings.Repeat(" ", 2880-len(block)))...)
	if _, err := f.Write(block); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = postprocess.ConvertFITSToTIFF(fitsPath)
	if !errors.Is(err, services.ErrPostProcess) {
		t.Fatalf("expected postprocess error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no image data") {
		t.Fatalf("expected no image data message, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "empty.tif")); !os.IsNotExist(statErr) {
		t.Fatal("no TIFF should be written for empty data")
	}
}

func TestBatchConvertSkipsExistingUnlessForced(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "2025-06", "a.fits")
	second := filepath.Join(root, "2025-07", "b.fits")
	testsupport.WriteFITS(t, first, testsupport.Frame(4, 4, 10))
	testsupport.WriteFITS(t, second, testsupport.Frame(4, 4, 20))
	testsupport.WriteTIFF(t, filepath.Join(root, "2025-06", "a.tif"), testsupport.Frame(4, 4, 99))
	if err := os.WriteFile(filepath.Join(root, "broken.fits"), []byte("not fits"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := postprocess.BatchConvert(root, false, logging.NewNop())
	if err != nil {
		t.Fatalf("BatchConvert: %v", err)
	}
	if len(result.Converted) != 1 || len(result.Skipped) != 1 || len(result.Failed) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := readTIFF(t, filepath.Join(root, "2025-06", "a.tif")); got.Pix[0] != 99 {
		t.Fatal("existing TIFF was overwritten without force")
	}

	result, err = postprocess.BatchConvert(root, true, logging.NewNop())
	if err != nil {
		t.Fatalf("BatchConvert force: %v", err)
	}
	if len(result.Converted) != 2 || len(result.Skipped) != 0 {
		t.Fatalf("unexpected forced result %+v", result)
	}
	if got := readTIFF(t, filepath.Join(root, "2025-06", "a.tif")); got.Pix[0] != 10 {
		t.Fatalf("forced conversion did not replace TIFF, pixel=%d", got.Pix[0])
	}
}

func TestCreateCompositeLightenBlend(t *testing.T) {
	root := t.TempDir()
	a := testsupport.Frame(3, 2, 10)
	a.Pix[0] = 200
	b := testsupport.Frame(3, 2, 50)
	testsupport.WriteTIFF(t, filepath.Join(root, "2025-01", "a.tif"), a)
	testsupport.WriteTIFF(t, filepath.Join(root, "2025-02", "b.tif"), b)
	testsupport.WriteTIFF(t, filepath.Join(root, "odd.tif"), testsupport.Frame(5, 5, 255))
	output := filepath.Join(root, "composite.tif")
	// A stale composite must not feed back into itself.
	testsupport.WriteTIFF(t, output, testsupport.Frame(3, 2, 250))

	path, err := postprocess.CreateComposite(root, output, logging.NewNop())
	if err != nil {
		t.Fatalf("CreateComposite: %v", err)
	}
	if path != output {
		t.Fatalf("expected %s, got %s", output, path)
	}
	got := readTIFF(t, output)
	if got.Width != 3 || got.Height != 2 {
		t.Fatalf("unexpected composite shape %dx%d", got.Width, got.Height)
	}
	if got.Pix[0] != 200 || got.Pix[1] != 50 {
		t.Fatalf("expected per-pixel max, got %v", got.Pix[:3])
	}
	if _, err := os.Stat(filepath.Join(root, "composite.png")); err != nil {
		t.Fatalf("expected PNG copy: %v", err)
	}
}

func TestCreateCompositeIsOrderIndependent(t *testing.T) {
	frames := []imaging.Frame{testsupport.Frame(2, 2, 5), testsupport.Frame(2, 2, 9), testsupport.Frame(2, 2, 1)}
	frames[2].Pix[3] = 240

	build := func(names []string) []uint8 {
		root := t.TempDir()
		for i, name := range names {
			testsupport.WriteTIFF(t, filepath.Join(root, name), frames[i])
		}
		out := filepath.Join(root, "composite.tif")
		if _, err := postprocess.CreateComposite(root, out, logging.NewNop()); err != nil {
			t.Fatalf("CreateComposite: %v", err)
		}
		return readTIFF(t, out).Pix
	}
	first := build([]string{"a.tif", "b.tif", "c.tif"})
	second := build([]string{"c.tif", "a.tif", "b.tif"})
	if string(first) != string(second) {
		t.Fatalf("composite depends on order: %v vs %v", first, second)
	}
}

func TestCreateCompositeWithoutInputs(t *testing.T) {
	root := t.TempDir()
	_, err := postprocess.CreateComposite(root, filepath.Join(root, "composite.tif"), logging.NewNop())
	if !errors.Is(err, services.ErrPostProcess) || !strings.Contains(err.Error(), "no TIFF files found") {
		t.Fatalf("expected no TIFF files error, got %v", err)
	}
}
