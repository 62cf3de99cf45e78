package storage_test

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"analemma/internal/config"
	"analemma/internal/imaging"
	"analemma/internal/logging"
	"analemma/internal/metadata"
	"analemma/internal/services"
	"analemma/internal/storage"
)

func newStorage(t *testing.T, monthly bool) *storage.Storage {
	t.Helper()
	return storage.New(config.Storage{
		BasePath:          filepath.Join(t.TempDir(), "images"),
		MonthlySubfolders: monthly,
		MinFreeSpaceMB:    1,
	}, logging.NewNop())
}

func sample(t *testing.T, ts time.Time, temp *float64) (imaging.Frame, metadata.CaptureMetadata) {
	t.Helper()
	frame := imaging.NewFrame(12, 8, 3)
	for i := range frame.Pix {
		frame.Pix[i] = uint8(i % 256)
	}
	meta, err := metadata.New(metadata.Input{
		CaptureTime: ts,
		CameraModel: "ZWO ASI224MC",
		ExposureUS:  1234,
		Gain:        56,
		Temperature: temp,
		Timezone:    "Asia/Tokyo",
	}, frame)
	if err != nil {
		t.Fatalf("metadata.New: %v", err)
	}
	return frame, meta
}

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return loc
}

func TestSaveFITSPreservesHeaderValues(t *testing.T) {
	store := newStorage(t, true)
	temp := 18.25
	ts := time.Date(2025, 3, 21, 12, 0, 0, 0, tokyo(t))
	frame, meta := sample(t, ts, &temp)

	path, err := store.Save(frame, meta, "fits")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join(store.BasePath(), "2025-03", "analemma_20250321_120000.fits"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	decoded, cards, err := imaging.ReadFITS(file)
	if err != nil {
		t.Fatalf("ReadFITS: %v", err)
	}
	if !decoded.SameShape(frame) || string(decoded.Pix) != string(frame.Pix) {
		t.Fatal("pixels changed on FITS round trip")
	}

	checkFloat := func(name string, want float64) {
		t.Helper()
		card, ok := imaging.LookupCard(cards, name)
		if !ok {
			t.Fatalf("%s missing", name)
		}
		got, ok := imaging.CardFloat(card.Value)
		if !ok || got != want {
			t.Fatalf("%s = %v, want %v", name, card.Value, want)
		}
	}
	checkFloat("EXPTIME", 1234.0/1e6)
	checkFloat("GAIN", 56)
	checkFloat("CCD-TEMP", 18.25)
	if card, _ := imaging.LookupCard(cards, "DATE-OBS"); card.Value != "2025-03-21T12:00:00+09:00" {
		t.Fatalf("DATE-OBS = %v", card.Value)
	}
}

func TestSaveFITSWithoutTemperatureOmitsCard(t *testing.T) {
	store := newStorage(t, false)
	frame, meta := sample(t, time.Date(2025, 3, 22, 12, 0, 0, 0, tokyo(t)), nil)
	path, err := store.Save(frame, meta, "FITS")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	_, cards, err := imaging.ReadFITS(file)
	if err != nil {
		t.Fatalf("ReadFITS: %v", err)
	}
	if _, ok := imaging.LookupCard(cards, "CCD-TEMP"); ok {
		t.Fatal("CCD-TEMP present without a temperature")
	}
}

func TestSavePNGWritesSidecar(t *testing.T) {
	store := newStorage(t, true)
	temp := -2.0
	frame, meta := sample(t, time.Date(2025, 12, 1, 11, 59, 30, 0, tokyo(t)), &temp)

	path, err := store.Save(frame, meta, "png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("2025-12", "analemma_20251201_115930.png")) {
		t.Fatalf("unexpected path %q", path)
	}
	sidecarPath := strings.TrimSuffix(path, ".png") + ".json"
	if _, err := os.Stat(sidecarPath); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}

	back, err := storage.ReadSidecar(path)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if back.ExposureUS != 1234 || back.Gain != 56 || back.Temperature == nil || *back.Temperature != -2 {
		t.Fatalf("unexpected sidecar metadata %+v", back)
	}
	if back.Width != 12 || back.Height != 8 {
		t.Fatalf("unexpected sidecar dimensions %dx%d", back.Width, back.Height)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open png: %v", err)
	}
	defer file.Close()
	decoded, err := imaging.ReadPNG(file)
	if err != nil {
		t.Fatalf("ReadPNG: %v", err)
	}
	if string(decoded.Pix) != string(frame.Pix) {
		t.Fatal("png pixels changed")
	}
}

func TestSaveUnsupportedFormatWritesNothing(t *testing.T) {
	store := newStorage(t, true)
	frame, meta := sample(t, time.Date(2025, 3, 21, 12, 0, 0, 0, tokyo(t)), nil)

	_, err := store.Save(frame, meta, "jpeg")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unsupported image type") {
		t.Fatalf("unexpected message %v", err)
	}
	if _, statErr := os.Stat(store.BasePath()); !os.IsNotExist(statErr) {
		t.Fatalf("expected nothing written, stat err=%v", statErr)
	}
}

func TestSaveFailureIsStorageError(t *testing.T) {
	base := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(base, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := storage.New(config.Storage{BasePath: base}, logging.NewNop())
	frame, meta := sample(t, time.Now(), nil)
	if _, err := store.Save(frame, meta, "fits"); !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestListImagesFiltersByMonth(t *testing.T) {
	store := newStorage(t, true)
	loc := tokyo(t)
	for _, ts := range []time.Time{
		time.Date(2025, 3, 21, 12, 0, 0, 0, loc),
		time.Date(2025, 3, 22, 12, 0, 0, 0, loc),
		time.Date(2025, 4, 1, 12, 0, 0, 0, loc),
	} {
		frame, meta := sample(t, ts, nil)
		if _, err := store.Save(frame, meta, "fits"); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	frame, meta := sample(t, time.Date(2025, 4, 2, 12, 0, 0, 0, loc), nil)
	if _, err := store.Save(frame, meta, "png"); err != nil {
		t.Fatalf("Save png: %v", err)
	}

	all, err := store.ListImages("")
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 images, got %v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] > all[i] {
			t.Fatalf("images not sorted: %v", all)
		}
	}

	march, err := store.ListImages("2025-03")
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(march) != 2 {
		t.Fatalf("expected 2 March images, got %v", march)
	}

	empty, err := store.ListImages("2024-01")
	if err != nil {
		t.Fatalf("ListImages missing month: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no images, got %v", empty)
	}

	if _, err := store.ListImages("March"); err == nil {
		t.Fatal("expected error for malformed month")
	}

	info := store.Info()
	if info.ImageCount != 4 {
		t.Fatalf("Info.ImageCount = %d, want 4", info.ImageCount)
	}
	if info.TotalBytes == 0 || info.FreeBytes == 0 {
		t.Fatalf("expected filesystem sizes, got %+v", info)
	}
}

func TestInfoZeroedOnError(t *testing.T) {
	store := storage.New(config.Storage{BasePath: filepath.Join(t.TempDir(), "missing")}, logging.NewNop())
	info := store.Info()
	if info.TotalBytes != 0 || info.FreeBytes != 0 || info.ImageCount != 0 {
		t.Fatalf("expected zeroed info, got %+v", info)
	}
	if info.BasePath == "" {
		t.Fatal("expected base path to be reported")
	}
}

func TestCheckCapacityIsAdvisory(t *testing.T) {
	dir := t.TempDir()
	roomy := storage.New(config.Storage{BasePath: dir, MinFreeSpaceMB: 0}, logging.NewNop())
	if !roomy.CheckCapacity() {
		t.Fatal("expected capacity ok with zero threshold")
	}
	tight := storage.New(config.Storage{BasePath: dir, MinFreeSpaceMB: 1 << 40}, logging.NewNop())
	if tight.CheckCapacity() {
		t.Fatal("expected low capacity with huge threshold")
	}
}

func TestLowSpaceDoesNotLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tight := storage.New(config.Storage{BasePath: t.TempDir(), MinFreeSpaceMB: 1 << 40}, logger)

	info := tight.Info()
	for range 3 {
		if !tight.LowSpace(info) {
			t.Fatal("expected low space with huge threshold")
		}
	}
	if strings.Contains(buf.String(), "storage_low") {
		t.Fatalf("LowSpace logged a warning: %s", buf.String())
	}

	tight.CheckCapacity()
	if got := strings.Count(buf.String(), "storage_low"); got != 1 {
		t.Fatalf("expected one storage_low warning from CheckCapacity, got %d", got)
	}
}

func TestReadMetadataFromFITSHeader(t *testing.T) {
	store := newStorage(t, false)
	temp := -3.5
	ts := time.Date(2025, 12, 21, 12, 0, 0, 0, tokyo(t))
	frame, meta := sample(t, ts, &temp)

	path, err := store.Save(frame, meta, "fits")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := storage.ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if !got.CaptureTime.Equal(ts) || got.CameraModel != "ZWO ASI224MC" || got.ExposureUS != 1234 || got.Gain != 56 {
		t.Fatalf("unexpected metadata %+v", got)
	}
	if got.Width != 12 || got.Height != 8 || got.Timezone != "Asia/Tokyo" {
		t.Fatalf("unexpected shape or zone %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != -3.5 {
		t.Fatalf("temperature = %v", got.Temperature)
	}
	if got.Software() != meta.Software() {
		t.Fatalf("software = %q, want %q", got.Software(), meta.Software())
	}
}

func TestReadMetadataFallsBackToSidecar(t *testing.T) {
	store := newStorage(t, false)
	frame, meta := sample(t, time.Date(2025, 6, 1, 12, 0, 0, 0, tokyo(t)), nil)
	path, err := store.Save(frame, meta, "png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := storage.ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got.Temperature != nil || got.Gain != 56 {
		t.Fatalf("unexpected metadata %+v", got)
	}

	if _, err := storage.ReadMetadata(filepath.Join(store.BasePath(), "missing.fits")); !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
